package epub

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// navFileNames are conventional navigation document filenames, searched
// when the manifest does not identify one.
var navFileNames = map[string]bool{
	"nav.xhtml": true, "navigation.xhtml": true, "toc.xhtml": true,
	"table-of-contents.xhtml": true,
	"toc.ncx":                 true, "navigation.ncx": true, "table-of-contents.ncx": true,
	"nav.html": true, "toc.html": true, "navigation.html": true,
}

// navContentMarkers are substrings suggesting a document contains
// navigation content, used by the content-sniffing strategy.
var navContentMarkers = []string{
	"<nav", "table of contents", "toc", "navigation",
	`epub:type="toc"`, `id="toc"`, `class="toc"`,
}

// tocStrategy attempts one way of locating and parsing the table of
// contents. The first strategy to yield at least one node wins.
type tocStrategy func() []NavNode

// LoadTOC discovers and parses the table of contents, then applies
// boilerplate filtering. It returns the filtered tree (possibly empty) and
// the set of hrefs that were filtered out, for the caller to propagate to
// spine filtering. doc may be nil when no package document exists.
func LoadTOC(doc *PackageDoc, opfDir, root string) ([]NavNode, []string) {
	strategies := []struct {
		name string
		run  tocStrategy
	}{
		{"manifest nav property", func() []NavNode { return tocFromNavProperty(doc, opfDir, root) }},
		{"spine toc attribute", func() []NavNode { return tocFromSpineNCX(doc, opfDir, root) }},
		{"filename conventions", func() []NavNode { return tocFromFileNames(opfDir, root) }},
		{"content sniffing", func() []NavNode { return tocFromContentSniffing(opfDir, root) }},
		{"manifest heuristics", func() []NavNode { return tocFromManifestHeuristics(doc, opfDir, root) }},
	}

	for _, s := range strategies {
		nodes := s.run()
		if len(nodes) == 0 {
			continue
		}
		filteredNodes, filteredHrefs := FilterBoilerplate(nodes)
		log.Printf("parsed %d TOC entries via %s (%d filtered)", len(filteredNodes), s.name, len(filteredHrefs))
		return filteredNodes, filteredHrefs
	}

	log.Printf("no table of contents found, caller will synthesize one")
	return nil, nil
}

// tocFromNavProperty parses the EPUB3 navigation document flagged in the
// manifest with properties="nav".
func tocFromNavProperty(doc *PackageDoc, opfDir, root string) []NavNode {
	if doc == nil {
		return nil
	}
	for _, id := range doc.ManifestOrder {
		item := doc.Manifest[id]
		for _, prop := range item.Properties {
			if strings.EqualFold(prop, "nav") {
				return parseNavFile(filepath.Join(opfDir, filepath.FromSlash(item.Href)), root)
			}
		}
	}
	return nil
}

// tocFromSpineNCX parses the EPUB2 NCX document named by the spine's toc
// attribute.
func tocFromSpineNCX(doc *PackageDoc, opfDir, root string) []NavNode {
	if doc == nil || doc.TocID == "" {
		return nil
	}
	item, ok := doc.Manifest[doc.TocID]
	if !ok {
		return nil
	}
	return parseNavFile(filepath.Join(opfDir, filepath.FromSlash(item.Href)), root)
}

// tocFromFileNames searches the tree for conventionally named navigation
// files and parses the first that yields entries.
func tocFromFileNames(opfDir, root string) []NavNode {
	var result []NavNode
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || result != nil {
			return nil
		}
		if !navFileNames[strings.ToLower(d.Name())] {
			return nil
		}
		if nodes := parseNavFile(path, root); len(nodes) > 0 {
			result = nodes
			return filepath.SkipAll
		}
		return nil
	})
	return result
}

// tocFromContentSniffing scans (X)HTML files for markers indicating
// navigation content and attempts a structural parse on candidates.
func tocFromContentSniffing(opfDir, root string) []NavNode {
	var result []NavNode
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || result != nil {
			return nil
		}
		name := strings.ToLower(d.Name())
		if !strings.HasSuffix(name, ".xhtml") && !strings.HasSuffix(name, ".html") {
			return nil
		}
		// Files that are almost certainly not navigation.
		for _, skip := range []string{"cover", "titlepage", "copyright"} {
			if strings.Contains(name, skip) {
				return nil
			}
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			log.Printf("warning: could not read %s: %v", d.Name(), readErr)
			return nil
		}
		lower := strings.ToLower(string(content))
		sniffed := false
		for _, marker := range navContentMarkers {
			if strings.Contains(lower, marker) {
				sniffed = true
				break
			}
		}
		if !sniffed {
			return nil
		}

		if nodes := ParseNavDocument(content, filepath.Dir(path), root); len(nodes) > 0 {
			result = nodes
			return filepath.SkipAll
		}
		return nil
	})
	return result
}

// tocFromManifestHeuristics tries manifest items whose href or properties
// merely suggest navigation.
func tocFromManifestHeuristics(doc *PackageDoc, opfDir, root string) []NavNode {
	if doc == nil {
		return nil
	}
	for _, id := range doc.ManifestOrder {
		item := doc.Manifest[id]
		hrefLower := strings.ToLower(item.Href)
		propsLower := strings.ToLower(strings.Join(item.Properties, " "))

		suggestsNav := strings.Contains(propsLower, "nav") || strings.Contains(propsLower, "toc") ||
			strings.Contains(hrefLower, "nav") || strings.Contains(hrefLower, "toc")
		parseable := strings.HasSuffix(hrefLower, ".xhtml") || strings.HasSuffix(hrefLower, ".html") ||
			strings.HasSuffix(hrefLower, ".ncx")
		if !suggestsNav || !parseable {
			continue
		}

		if nodes := parseNavFile(filepath.Join(opfDir, filepath.FromSlash(item.Href)), root); len(nodes) > 0 {
			return nodes
		}
	}
	return nil
}

// parseNavFile reads a navigation file and dispatches to the NCX or nav
// document parser based on its extension.
func parseNavFile(path, root string) []NavNode {
	content, err := os.ReadFile(path)
	if err != nil {
		log.Printf("warning: could not read navigation file %s: %v", path, err)
		return nil
	}
	dir := filepath.Dir(path)
	if strings.EqualFold(filepath.Ext(path), ".ncx") {
		return ParseNCX(content, dir, root)
	}
	return ParseNavDocument(content, dir, root)
}
