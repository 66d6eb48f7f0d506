package converter

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/isurajpanda/epub-to-html/internal/epub"
)

// ConvertOptions holds options for the conversion pipeline.
type ConvertOptions struct {
	InputPath     string
	OutputDir     string
	CustomCSSPath string
	ImageMode     ImageMode
	Workers       int
	KeepFragments bool
}

// Pipeline orchestrates the EPUB to HTML conversion.
type Pipeline struct {
	Options ConvertOptions
}

// NewPipeline creates a new conversion pipeline.
func NewPipeline(opts ConvertOptions) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.ImageMode == "" {
		opts.ImageMode = ImageModeInline
	}
	return &Pipeline{Options: opts}
}

// Run converts the input path. A directory is treated as a batch of EPUBs;
// a failed book is reported but does not stop its siblings.
func (p *Pipeline) Run() error {
	info, err := os.Stat(p.Options.InputPath)
	if err != nil {
		return fmt.Errorf("failed to stat input: %w", err)
	}
	if info.IsDir() {
		return p.convertDir(p.Options.InputPath)
	}
	out, err := p.ConvertBook(p.Options.InputPath)
	if err != nil {
		return err
	}
	log.Printf("wrote %s", out)
	return nil
}

func (p *Pipeline) convertDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read input directory: %w", err)
	}

	var books []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".epub") {
			books = append(books, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(books)

	if len(books) == 0 {
		return fmt.Errorf("no EPUB files found in %s", dir)
	}

	var failures []string
	for _, book := range books {
		out, err := p.ConvertBook(book)
		if err != nil {
			log.Printf("error: %s: %v", filepath.Base(book), err)
			failures = append(failures, filepath.Base(book))
			continue
		}
		log.Printf("wrote %s", out)
	}

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d books failed: %s", len(failures), len(books), strings.Join(failures, ", "))
	}
	return nil
}

// ConvertBook converts a single EPUB and returns the path of the rendered
// HTML file.
func (p *Pipeline) ConvertBook(epubPath string) (string, error) {
	workDir, err := os.MkdirTemp("", "epub2html-*")
	if err != nil {
		return "", fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	root := filepath.Join(workDir, "extracted")
	if err := epub.Extract(epubPath, root); err != nil {
		return "", fmt.Errorf("failed to extract EPUB: %w", err)
	}

	doc, opfDir := p.loadPackage(root)
	spine := p.resolveSpine(doc, opfDir, root)

	toc, filteredHrefs := epub.LoadTOC(doc, opfDir, root)
	spine = FilterSpine(spine, root, filteredHrefs)
	if len(spine) == 0 {
		return "", fmt.Errorf("no content documents found")
	}

	meta := epub.NewMetadata()
	if doc != nil {
		meta = doc.Metadata
	}
	meta.CoverPath = epub.ResolveCoverPath(doc, opfDir, root, spine)

	stem := strings.TrimSuffix(filepath.Base(epubPath), filepath.Ext(epubPath))
	outDir := filepath.Join(p.Options.OutputDir, stem)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	assets, err := ProcessImages(FindImages(root), root, p.Options.ImageMode, outDir)
	if err != nil {
		return "", fmt.Errorf("failed to process images: %w", err)
	}
	ResolveCoverURL(&meta, assets)

	anchors := BuildAnchorMap(spine, root)

	body, err := p.rewriteSpine(spine, root, assets, anchors, meta.CoverPath)
	if err != nil {
		return "", err
	}

	if len(toc) == 0 {
		toc = SynthesizeTOC(spine)
	} else {
		toc = RemapTOC(toc, anchors, p.Options.KeepFragments)
	}

	customCSS, err := LoadCustomCSS(p.Options.CustomCSSPath)
	if err != nil {
		return "", err
	}

	page, err := RenderDocument(meta, toc, body, customCSS, extractVolumeNumber(stem))
	if err != nil {
		return "", err
	}

	if err := WriteStaticAssets(outDir); err != nil {
		return "", err
	}

	outPath := filepath.Join(outDir, "index.html")
	if err := os.WriteFile(outPath, []byte(page), 0644); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}
	return outPath, nil
}

// loadPackage locates and parses the package document. Both steps are
// best-effort: a missing or unparseable package falls back to directory
// enumeration downstream.
func (p *Pipeline) loadPackage(root string) (*epub.PackageDoc, string) {
	opfPath, ok := epub.FindPackageDocument(root)
	if !ok {
		log.Printf("warning: no package document found, falling back to directory scan")
		return nil, root
	}
	doc, err := epub.LoadPackage(opfPath)
	if err != nil {
		log.Printf("warning: failed to parse package document: %v", err)
		return nil, root
	}
	return doc, filepath.Dir(opfPath)
}

func (p *Pipeline) resolveSpine(doc *epub.PackageDoc, opfDir, root string) []epub.SpineEntry {
	if doc != nil {
		if spine := epub.ResolveSpine(doc, opfDir); len(spine) > 0 {
			return spine
		}
		log.Printf("warning: spine resolved to no readable documents, falling back to directory scan")
	}
	return epub.EnumerateContentFiles(root)
}

// rewriteSpine rewrites every content document concurrently and assembles
// the results in reading order.
func (p *Pipeline) rewriteSpine(spine []epub.SpineEntry, root string, assets *ImageAssets, anchors *AnchorMap, coverPath string) (string, error) {
	rw := &Rewriter{
		Root:          root,
		Images:        assets,
		Anchors:       anchors,
		CoverPath:     coverPath,
		KeepFragments: p.Options.KeepFragments,
	}

	fragments := make([]Fragment, len(spine))
	var g errgroup.Group
	g.SetLimit(p.Options.Workers)
	for i, entry := range spine {
		i, entry := i, entry
		g.Go(func() error {
			body, err := rw.RewriteDocument(entry.Path)
			if err != nil {
				return fmt.Errorf("failed to rewrite %s: %w", filepath.Base(entry.Path), err)
			}
			fragments[i] = Fragment{
				Ordinal: entry.Ordinal,
				Anchor:  ChapterAnchor(entry.Ordinal),
				Body:    body,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return Assemble(fragments), nil
}

var volumeRe = regexp.MustCompile(`(?i)(?:vol(?:ume)?\.?|v)[ ._-]*([0-9]{1,4})|\b([0-9]{1,4})\s*$`)

// extractVolumeNumber pulls a volume number out of a filename stem,
// returning 0 when none is recognizable.
func extractVolumeNumber(stem string) int {
	m := volumeRe.FindStringSubmatch(stem)
	if m == nil {
		return 0
	}
	for _, group := range m[1:] {
		if group == "" {
			continue
		}
		if n, err := strconv.Atoi(group); err == nil {
			return n
		}
	}
	return 0
}
