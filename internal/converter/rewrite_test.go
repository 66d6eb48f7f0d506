package converter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func testRewriter(root string) *Rewriter {
	entries := spineFor(root, "OEBPS/Text/ch1.xhtml", "OEBPS/Text/ch2.xhtml")
	return &Rewriter{
		Root:    root,
		Anchors: BuildAnchorMap(entries, root),
		Images: &ImageAssets{
			Mapping: map[string]string{
				"OEBPS/Images/pic.jpg":   "images/img001.jpg",
				"pic.jpg":                "images/img001.jpg",
				"pic":                    "images/img001.jpg",
				"./OEBPS/Images/pic.jpg": "images/img001.jpg",
			},
			Dimensions: map[string]Dimensions{
				"images/img001.jpg": {Width: 800, Height: 600},
			},
		},
	}
}

func TestExtractBody(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			"full document",
			`<?xml version="1.0"?><!DOCTYPE html><html><head><title>T</title></head><body class="x"><p>Hi</p></body></html>`,
			`<p>Hi</p>`,
		},
		{
			"no body element",
			`<html><head><style>p{}</style></head><p>Bare</p></html>`,
			`<p>Bare</p>`,
		},
		{
			"plain fragment",
			`<p>Loose</p>`,
			`<p>Loose</p>`,
		},
		{
			"unclosed body",
			`<html><body><p>Broken`,
			`<p>Broken`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strings.TrimSpace(ExtractBody(tt.content))
			if got != tt.want {
				t.Errorf("ExtractBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRewriteImages_Cascade(t *testing.T) {
	root := filepath.Join("/", "book")
	rw := testRewriter(root)
	docDir := filepath.Join(root, "OEBPS", "Text")

	tests := []struct {
		name string
		in   string
		want string // expected src value after rewriting
	}{
		{"relative to document", `<img src="../Images/pic.jpg"/>`, "images/img001.jpg"},
		{"bare filename", `<img src="pic.jpg"/>`, "images/img001.jpg"},
		{"percent encoded", `<img src="../Images/pic%2Ejpg"/>`, "images/img001.jpg"},
		{"case insensitive", `<img src="../images/PIC.JPG"/>`, "images/img001.jpg"},
		{"single quotes", `<img src='pic.jpg'/>`, "images/img001.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := rw.rewriteImages(tt.in, docDir)
			if !strings.Contains(got, tt.want) {
				t.Errorf("rewriteImages(%q) = %q, want src %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRewriteImages_Passthrough(t *testing.T) {
	root := filepath.Join("/", "book")
	rw := testRewriter(root)

	tests := []string{
		`<img src="https://example.com/x.jpg"/>`,
		`<img src="//cdn.example.com/x.jpg"/>`,
		`<img src="data:image/png;base64,AAAA"/>`,
	}
	for _, in := range tests {
		if got := rw.rewriteImages(in, root); got != in {
			t.Errorf("rewriteImages(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestRewriteImages_UnresolvedKeepsOriginal(t *testing.T) {
	root := filepath.Join("/", "book")
	rw := testRewriter(root)
	in := `<img src="ghost.png"/>`
	if got := rw.rewriteImages(in, root); got != in {
		t.Errorf("rewriteImages(%q) = %q, want unchanged", in, got)
	}
}

func TestDecorateImageTag(t *testing.T) {
	root := filepath.Join("/", "book")
	rw := testRewriter(root)
	rw.CoverPath = "OEBPS/Images/cover.jpg"
	rw.Images.Mapping["cover.jpg"] = "images/img002.jpg"

	docDir := filepath.Join(root, "OEBPS", "Text")

	got := rw.rewriteImages(`<img src="pic.jpg"/>`, docDir)
	if !strings.Contains(got, `loading="lazy"`) {
		t.Errorf("content image missing lazy hint: %q", got)
	}
	if !strings.Contains(got, `width="800"`) || !strings.Contains(got, `height="600"`) {
		t.Errorf("content image missing dimension hints: %q", got)
	}

	got = rw.rewriteImages(`<img src="cover.jpg"/>`, docDir)
	if !strings.Contains(got, `loading="eager"`) || !strings.Contains(got, `fetchpriority="high"`) {
		t.Errorf("cover image missing eager hints: %q", got)
	}
}

func TestRewriteAnchors(t *testing.T) {
	root := filepath.Join("/", "book")
	rw := testRewriter(root)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"resolved link",
			`<a href="ch2.xhtml">next</a>`,
			`<a href="#page02">next</a>`,
		},
		{
			"fragment collapsed to chapter",
			`<a href="ch2.xhtml#part3">jump</a>`,
			`<a href="#page02">jump</a>`,
		},
		{
			"external passthrough",
			`<a href="https://example.com">out</a>`,
			`<a href="https://example.com">out</a>`,
		},
		{
			"bookmark anchor demoted preserving id",
			`<a id="mark7"></a>`,
			`<span id="mark7"></span>`,
		},
		{
			"unresolved demoted",
			`<a href="nothere_zzz.xhtml" class="x">dead</a>`,
			`<span class="x">dead</span>`,
		},
		{
			"chapter fragment kept",
			`<a href="#page01">top</a>`,
			`<a href="#page01">top</a>`,
		},
		{
			"unknown fragment demoted",
			`<a href="#footnote9">note</a>`,
			`<span>note</span>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rw.rewriteAnchors(tt.in); got != tt.want {
				t.Errorf("rewriteAnchors(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRewriteAnchors_Nested(t *testing.T) {
	root := filepath.Join("/", "book")
	rw := testRewriter(root)

	// The outer anchor resolves, the inner one is demoted; each closing
	// tag must match its opener.
	in := `<a href="ch1.xhtml">outer <a id="inner">inner</a> tail</a>`
	want := `<a href="#page01">outer <span id="inner">inner</span> tail</a>`
	if got := rw.rewriteAnchors(in); got != want {
		t.Errorf("rewriteAnchors() = %q, want %q", got, want)
	}
}

func TestRewriteAnchors_KeepFragments(t *testing.T) {
	root := filepath.Join("/", "book")
	rw := testRewriter(root)
	rw.KeepFragments = true

	in := `<a href="ch2.xhtml#part3">jump</a>`
	want := `<a href="#part3">jump</a>`
	if got := rw.rewriteAnchors(in); got != want {
		t.Errorf("rewriteAnchors() = %q, want %q", got, want)
	}
}

func TestDemoteHeadings(t *testing.T) {
	in := `<h1 class="title">Top</h1><h2>Sub</h2><H1>Loud</H1>`
	want := `<h2 class="title">Top</h2><h2>Sub</h2><h2>Loud</h2>`
	if got := demoteHeadings(in); got != want {
		t.Errorf("demoteHeadings() = %q, want %q", got, want)
	}
}

func TestRewriteDocument(t *testing.T) {
	root := t.TempDir()
	docPath := filepath.Join(root, "OEBPS", "Text", "ch1.xhtml")
	writeDoc(t, docPath, `<?xml version="1.0"?>
<html><head><title>Ch1</title></head>
<body>
<h1>Chapter One</h1>
<p><a href="ch2.xhtml">onward</a></p>
<img src="../Images/pic.jpg"/>
</body></html>`)
	writeDoc(t, filepath.Join(root, "OEBPS", "Text", "ch2.xhtml"), "<html><body></body></html>")

	entries := spineFor(root, "OEBPS/Text/ch1.xhtml", "OEBPS/Text/ch2.xhtml")
	rw := &Rewriter{
		Root:    root,
		Anchors: BuildAnchorMap(entries, root),
		Images: &ImageAssets{
			Mapping:    map[string]string{"OEBPS/Images/pic.jpg": "images/img001.jpg"},
			Dimensions: map[string]Dimensions{},
		},
	}

	got, err := rw.RewriteDocument(docPath)
	if err != nil {
		t.Fatalf("RewriteDocument failed: %v", err)
	}
	if strings.Contains(got, "<head") || strings.Contains(got, "<?xml") {
		t.Errorf("head or xml declaration leaked into fragment: %q", got)
	}
	if !strings.Contains(got, "<h2>Chapter One</h2>") {
		t.Errorf("heading not demoted: %q", got)
	}
	if !strings.Contains(got, `href="#page02"`) {
		t.Errorf("link not rewritten: %q", got)
	}
	if !strings.Contains(got, `src="images/img001.jpg"`) {
		t.Errorf("image not rewritten: %q", got)
	}
}
