package epub

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".svg": true, ".webp": true, ".bmp": true,
}

// ResolveCoverPath finds the cover image using a prioritized cascade,
// stopping at the first success:
//  1. package metadata (meta name="cover" or properties="cover-image")
//  2. first image referenced by the first spine document
//  3. first image file found anywhere under the extraction root
//
// The returned path is relative to root with forward slashes, "" if no
// cover can be found. doc may be nil when no package document exists.
func ResolveCoverPath(doc *PackageDoc, opfDir, root string, spine []SpineEntry) string {
	if doc != nil {
		if p := coverFromManifest(doc, opfDir, root); p != "" {
			return p
		}
	}
	if len(spine) > 0 {
		if p := coverFromFirstDocument(spine[0].Path, root); p != "" {
			return p
		}
	}
	return firstImageAnywhere(root)
}

// coverFromManifest resolves the manifest item named by the cover metadata
// (EPUB 2 meta or EPUB 3 cover-image property) to a path under root.
func coverFromManifest(doc *PackageDoc, opfDir, root string) string {
	var href string

	if doc.CoverID != "" {
		if item, ok := doc.Manifest[doc.CoverID]; ok {
			href = item.Href
		}
	}

	if href == "" {
		for _, id := range doc.ManifestOrder {
			item := doc.Manifest[id]
			for _, prop := range item.Properties {
				if strings.EqualFold(prop, "cover-image") {
					href = item.Href
					break
				}
			}
			if href != "" {
				break
			}
		}
	}

	if href == "" {
		return ""
	}

	full := filepath.Join(opfDir, filepath.FromSlash(href))
	if _, err := os.Stat(full); err != nil {
		return ""
	}
	rel, err := filepath.Rel(root, full)
	if err != nil {
		return filepath.Base(full)
	}
	return filepath.ToSlash(rel)
}

// coverFromFirstDocument sniffs the first spine document for its first img
// element and resolves that reference to a path under root.
func coverFromFirstDocument(docPath, root string) string {
	data, err := os.ReadFile(docPath)
	if err != nil {
		return ""
	}
	gq, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return ""
	}

	src, ok := gq.Find("img[src]").First().Attr("src")
	if !ok || src == "" {
		return ""
	}
	src = decodeHref(src)

	full := filepath.Join(filepath.Dir(docPath), filepath.FromSlash(src))
	if info, err := os.Stat(full); err != nil || info.IsDir() {
		return ""
	}
	rel, err := filepath.Rel(root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}

// firstImageAnywhere returns the first image file found in a walk of root.
func firstImageAnywhere(root string) string {
	var found string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if imageExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			rel, relErr := filepath.Rel(root, path)
			if relErr == nil {
				found = filepath.ToSlash(rel)
				return filepath.SkipAll
			}
		}
		return nil
	})
	return found
}
