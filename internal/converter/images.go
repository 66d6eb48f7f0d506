package converter

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/isurajpanda/epub-to-html/internal/epub"
)

// ImageMode selects how rewritten image references are materialized.
type ImageMode string

const (
	// ImageModeInline embeds every image as a base64 data URI.
	ImageModeInline ImageMode = "inline"
	// ImageModeFiles writes images to an images/ folder beside the output
	// document and references them by relative path.
	ImageModeFiles ImageMode = "files"
)

const (
	maxImageWidth = 1080
	jpegQuality   = 80
)

// Dimensions holds pixel dimensions for layout-shift hints.
type Dimensions struct {
	Width  int
	Height int
}

// ImageAssets is the path-mapping contract shared between the image
// collaborator and the reference rewriter: every original reference variant
// maps to one final reference. Built once per book, read-only afterward.
type ImageAssets struct {
	Mapping    map[string]string
	Dimensions map[string]Dimensions // keyed by final reference
}

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".svg": true, ".webp": true, ".bmp": true,
}

// FindImages walks the extraction root and returns every image file, in
// lexical walk order so output naming is deterministic within a run.
func FindImages(root string) []string {
	var images []string
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if imageExts[strings.ToLower(filepath.Ext(d.Name()))] {
			images = append(images, path)
		}
		return nil
	})
	return images
}

// ProcessImages converts every image and builds the reference mapping. Each
// image registers its extraction-root-relative path, bare filename, stem
// and ./-prefixed form. A failed image is logged and skipped; its
// references will keep their original value during rewriting.
//
// Output naming is sequential (img001, img002, ...) in walk order;
// deterministic for a given archive.
func ProcessImages(images []string, root string, mode ImageMode, outDir string) (*ImageAssets, error) {
	assets := &ImageAssets{
		Mapping:    make(map[string]string),
		Dimensions: make(map[string]Dimensions),
	}

	if mode == ImageModeFiles && len(images) > 0 {
		if err := os.MkdirAll(filepath.Join(outDir, "images"), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create images dir: %w", err)
		}
	}

	for i, imgPath := range images {
		final, dims, err := convertImage(imgPath, i+1, mode, outDir)
		if err != nil {
			log.Printf("warning: could not process image %s: %v", filepath.Base(imgPath), err)
			continue
		}

		rel, relErr := filepath.Rel(root, imgPath)
		if relErr != nil {
			rel = filepath.Base(imgPath)
		}
		rel = decodeRef(filepath.ToSlash(rel))
		name := decodeRef(filepath.Base(imgPath))

		registerImage(assets.Mapping, rel, final)
		registerImage(assets.Mapping, name, final)
		registerImage(assets.Mapping, stemOf(name), final)
		registerImage(assets.Mapping, "./"+rel, final)

		if dims.Width > 0 {
			assets.Dimensions[final] = dims
		}
	}

	return assets, nil
}

// registerImage adds a mapping key with first-writer-wins semantics, so
// colliding bare filenames resolve to the earlier image.
func registerImage(mapping map[string]string, key, final string) {
	if key == "" {
		return
	}
	if _, exists := mapping[key]; !exists {
		mapping[key] = final
	}
}

// convertImage re-encodes one image and returns its final reference. GIF
// and SVG are passed through untouched (animation and vector data do not
// survive re-encoding); raster formats are resized to maxImageWidth and
// encoded as JPEG, or PNG when transparency must be preserved.
func convertImage(path string, seq int, mode ImageMode, outDir string) (string, Dimensions, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".svg" || ext == ".gif" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return "", Dimensions{}, err
		}
		final, err := emitImage(raw, ext, passthroughMediaType(ext), seq, mode, outDir)
		return final, Dimensions{}, err
	}

	src, err := imaging.Open(path)
	if err != nil {
		return "", Dimensions{}, fmt.Errorf("decode failed: %w", err)
	}

	if src.Bounds().Dx() > maxImageWidth {
		src = imaging.Resize(src, maxImageWidth, 0, imaging.Lanczos)
	}
	dims := Dimensions{Width: src.Bounds().Dx(), Height: src.Bounds().Dy()}

	var buf bytes.Buffer
	outExt, mediaType := ".jpg", "image/jpeg"
	if hasAlpha(src) {
		outExt, mediaType = ".png", "image/png"
		err = imaging.Encode(&buf, src, imaging.PNG)
	} else {
		err = imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(jpegQuality))
	}
	if err != nil {
		return "", Dimensions{}, fmt.Errorf("encode failed: %w", err)
	}

	final, err := emitImage(buf.Bytes(), outExt, mediaType, seq, mode, outDir)
	return final, dims, err
}

// emitImage materializes encoded image data as either a data URI or a file
// under outDir/images, returning the final reference.
func emitImage(data []byte, ext, mediaType string, seq int, mode ImageMode, outDir string) (string, error) {
	if mode == ImageModeInline {
		return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
	}

	name := fmt.Sprintf("img%03d%s", seq, ext)
	if err := os.WriteFile(filepath.Join(outDir, "images", name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return "images/" + name, nil
}

func passthroughMediaType(ext string) string {
	switch ext {
	case ".svg":
		return "image/svg+xml"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// hasAlpha reports whether any pixel is not fully opaque.
func hasAlpha(img image.Image) bool {
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xFFFF {
				return true
			}
		}
	}
	return false
}

// ResolveCoverURL maps the detected cover path onto its final rewritten
// reference, trying the extraction-root-relative path and then the bare
// filename, mirroring how content references resolve.
func ResolveCoverURL(meta *epub.Metadata, assets *ImageAssets) {
	if meta.CoverPath == "" {
		return
	}
	if url, ok := assets.Mapping[meta.CoverPath]; ok {
		meta.CoverURL = url
		return
	}
	if url, ok := assets.Mapping[filepath.Base(meta.CoverPath)]; ok {
		meta.CoverURL = url
	}
}
