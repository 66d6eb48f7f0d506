package epub

import (
	"io/fs"
	"log"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// nonContentMarkers are filename fragments indicating files that are not
// narrative content (navigation, covers, title pages).
var nonContentMarkers = []string{"nav", "toc", "cover", "titlepage"}

// EnumerateContentFiles is the manifest-less fallback: it walks the
// extraction root for HTML-like files, excludes common non-content names,
// and orders the result with a numeric-aware collation so that ch2 sorts
// before ch10. It never fails; worst case it returns an empty slice.
func EnumerateContentFiles(root string) []SpineEntry {
	log.Printf("using directory enumeration fallback for content files")

	var paths []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		name := strings.ToLower(d.Name())
		if !strings.HasSuffix(name, ".xhtml") && !strings.HasSuffix(name, ".html") && !strings.HasSuffix(name, ".htm") {
			return nil
		}
		for _, marker := range nonContentMarkers {
			if strings.Contains(name, marker) {
				return nil
			}
		}
		paths = append(paths, path)
		return nil
	})

	coll := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
	sort.SliceStable(paths, func(i, j int) bool {
		return coll.CompareString(filepath.Base(paths[i]), filepath.Base(paths[j])) < 0
	})

	entries := make([]SpineEntry, 0, len(paths))
	for i, p := range paths {
		entries = append(entries, SpineEntry{Ordinal: i + 1, Path: p})
	}
	return entries
}
