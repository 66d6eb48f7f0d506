package epub

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// FindPackageDocument walks an extracted EPUB tree and returns the path of
// the first .opf file found. The second return value is false when no
// package document exists; callers must treat that as "no manifest
// available" and fall back to directory enumeration, never as a fatal error.
func FindPackageDocument(root string) (string, bool) {
	var found string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), ".opf") {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}
