package epub

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotArchive    = errors.New("not a valid EPUB archive")
	ErrUnsafeZipPath = errors.New("archive entry escapes extraction root")
)

// Extract materializes the full file tree of an EPUB archive under destDir.
// The destination directory is created if needed. Extraction is the one
// whole-book operation that fails hard: a file that is not a ZIP archive at
// all cannot be recovered from.
func Extract(epubPath, destDir string) error {
	zr, err := zip.OpenReader(epubPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotArchive, err)
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create extraction dir: %w", err)
	}

	for _, f := range zr.File {
		if err := extractEntry(f, destDir); err != nil {
			return err
		}
	}
	return nil
}

// extractEntry writes a single archive entry to disk, guarding against
// paths that would escape the extraction root.
func extractEntry(f *zip.File, destDir string) error {
	name := filepath.FromSlash(strings.TrimPrefix(f.Name, "./"))
	target := filepath.Join(destDir, name)

	rel, err := filepath.Rel(destDir, target)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: %s", ErrUnsafeZipPath, f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", f.Name, err)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}
