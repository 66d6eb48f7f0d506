package converter

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// createTestEPUB builds a small but complete EPUB: package document,
// navigation document, three chapters (one boilerplate), and a cover image.
func createTestEPUB(t *testing.T, dir, name string) string {
	t.Helper()
	epubPath := filepath.Join(dir, name)
	f, err := os.Create(epubPath)
	if err != nil {
		t.Fatalf("failed to create test epub: %v", err)
	}
	defer f.Close()

	w := zip.NewWriter(f)
	defer w.Close()

	write := func(name, content string) {
		t.Helper()
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("failed to create %s: %v", name, err)
		}
		fw.Write([]byte(content))
	}

	mw, err := w.CreateHeader(&zip.FileHeader{Name: "mimetype", Method: zip.Store})
	if err != nil {
		t.Fatalf("failed to create mimetype: %v", err)
	}
	mw.Write([]byte("application/epub+zip"))

	write("META-INF/container.xml", `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`)

	write("OEBPS/content.opf", `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Pipeline Test Book</dc:title>
    <dc:creator>Test Author</dc:creator>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
    <item id="cover-img" href="Images/cover.png" media-type="image/png"/>
    <item id="c1" href="Text/ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="c2" href="Text/ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="extra" href="Text/copyright.xhtml" media-type="application/xhtml+xml"/>
  </manifest>
  <spine>
    <itemref idref="c1"/>
    <itemref idref="c2"/>
    <itemref idref="extra"/>
  </spine>
</package>`)

	write("OEBPS/nav.xhtml", `<html xmlns:epub="http://www.idpf.org/2007/ops"><body>
<nav epub:type="toc"><ol>
  <li><a href="Text/ch1.xhtml">Chapter One</a></li>
  <li><a href="Text/ch2.xhtml#middle">Chapter Two</a></li>
  <li><a href="Text/copyright.xhtml">Copyright</a></li>
</ol></nav>
</body></html>`)

	write("OEBPS/Text/ch1.xhtml", `<html><head><title>One</title></head><body>
<h1>Chapter One</h1>
<p>See <a href="ch2.xhtml">chapter two</a>.</p>
<img src="../Images/cover.png"/>
</body></html>`)

	write("OEBPS/Text/ch2.xhtml", `<html><body>
<h1>Chapter Two</h1>
<p><a id="middle"></a>Middle text.</p>
</body></html>`)

	write("OEBPS/Text/copyright.xhtml", `<html><body><p>All rights reserved.</p></body></html>`)

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 3, 3))
	for y := 0; y < 3; y++ {
		for x := 0; x < 3; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	iw, err := w.Create("OEBPS/Images/cover.png")
	if err != nil {
		t.Fatal(err)
	}
	iw.Write(buf.Bytes())

	return epubPath
}

func TestPipeline_ConvertBook(t *testing.T) {
	dir := t.TempDir()
	epubPath := createTestEPUB(t, dir, "My Series Vol. 3.epub")
	outRoot := filepath.Join(dir, "out")

	p := NewPipeline(ConvertOptions{
		InputPath: epubPath,
		OutputDir: outRoot,
		ImageMode: ImageModeInline,
		Workers:   2,
	})

	outPath, err := p.ConvertBook(epubPath)
	if err != nil {
		t.Fatalf("ConvertBook failed: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	page := string(data)

	if !strings.Contains(page, "Pipeline Test Book") {
		t.Error("title missing from output")
	}
	// Two chapters survive; the copyright page is filtered out of both
	// TOC and content.
	if !strings.Contains(page, `id="page01"`) || !strings.Contains(page, `id="page02"`) {
		t.Error("chapter anchors missing")
	}
	if strings.Contains(page, `id="page03"`) {
		t.Error("boilerplate chapter was not filtered")
	}
	if strings.Contains(page, "All rights reserved") {
		t.Error("boilerplate content leaked into output")
	}
	if !strings.Contains(page, `<a href="#page02">Chapter Two</a>`) {
		t.Error("TOC entry not remapped to chapter anchor")
	}
	if !strings.Contains(page, `href="#page02">chapter two`) {
		t.Error("cross-chapter link not rewritten")
	}
	if !strings.Contains(page, "data:image/jpeg;base64,") {
		t.Error("image not inlined")
	}
	if strings.Contains(page, "<h1>Chapter One</h1>") {
		t.Error("chapter heading not demoted")
	}

	// Static assets land beside the page.
	for _, name := range []string{"style.css", "script.js"} {
		if _, err := os.Stat(filepath.Join(filepath.Dir(outPath), "static", name)); err != nil {
			t.Errorf("missing static asset %s: %v", name, err)
		}
	}
}

func TestPipeline_BatchDirectory(t *testing.T) {
	dir := t.TempDir()
	createTestEPUB(t, dir, "good.epub")
	// A broken sibling must not stop the batch, but must be reported.
	if err := os.WriteFile(filepath.Join(dir, "bad.epub"), []byte("not a zip"), 0644); err != nil {
		t.Fatal(err)
	}

	outRoot := filepath.Join(dir, "out")
	p := NewPipeline(ConvertOptions{
		InputPath: dir,
		OutputDir: outRoot,
		ImageMode: ImageModeInline,
	})

	err := p.Run()
	if err == nil {
		t.Fatal("Run succeeded despite a broken book")
	}
	if !strings.Contains(err.Error(), "bad.epub") {
		t.Errorf("error does not name the failed book: %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(outRoot, "good", "index.html")); statErr != nil {
		t.Errorf("good book was not converted: %v", statErr)
	}
}

func TestExtractVolumeNumber(t *testing.T) {
	tests := []struct {
		stem string
		want int
	}{
		{"My Series Vol. 3", 3},
		{"my_series_volume12", 12},
		{"Series v2", 2},
		{"Book Title 7", 7},
		{"No Number Here", 0},
	}
	for _, tt := range tests {
		t.Run(tt.stem, func(t *testing.T) {
			if got := extractVolumeNumber(tt.stem); got != tt.want {
				t.Errorf("extractVolumeNumber(%q) = %d, want %d", tt.stem, got, tt.want)
			}
		})
	}
}
