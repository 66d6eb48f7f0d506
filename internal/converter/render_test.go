package converter

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/isurajpanda/epub-to-html/internal/epub"
)

func TestRenderDocument(t *testing.T) {
	meta := epub.NewMetadata()
	meta.Title = "My Book <1>"
	meta.Author = "A. Writer"
	meta.CoverURL = "images/img001.jpg"

	toc := []epub.NavNode{
		{Label: "Chapter 1", Target: "#page01", Children: []epub.NavNode{
			{Label: "Part & Parcel", Target: "#page01"},
		}},
	}

	page, err := RenderDocument(meta, toc, `<div class="chapter" id="page01"><p>hi</p></div>`, "p { color: red }", 3)
	if err != nil {
		t.Fatalf("RenderDocument failed: %v", err)
	}

	if !strings.Contains(page, "<title>My Book &lt;1&gt;</title>") {
		t.Errorf("title not escaped: %q", page)
	}
	if !strings.Contains(page, `id="page01"`) {
		t.Error("body content missing")
	}
	if !strings.Contains(page, `<a href="#page01">Chapter 1</a>`) {
		t.Error("TOC link missing")
	}
	if !strings.Contains(page, "Part &amp; Parcel") {
		t.Error("nested TOC label missing or unescaped")
	}
	if !strings.Contains(page, "p { color: red }") {
		t.Error("custom CSS missing")
	}
	if !strings.Contains(page, `./static/style.css`) || !strings.Contains(page, `./static/script.js`) {
		t.Error("static asset references missing")
	}
}

func TestRenderDocument_MetadataJSON(t *testing.T) {
	meta := epub.NewMetadata()
	meta.Title = "JSON Book"
	meta.Subjects = []string{"Fantasy"}

	toc := []epub.NavNode{{Label: "One", Target: "#page01"}}

	page, err := RenderDocument(meta, toc, "<p/>", "", 7)
	if err != nil {
		t.Fatalf("RenderDocument failed: %v", err)
	}

	start := strings.Index(page, `id="book-metadata">`)
	if start < 0 {
		t.Fatal("metadata script element missing")
	}
	start += len(`id="book-metadata">`)
	end := strings.Index(page[start:], "</script>")
	if end < 0 {
		t.Fatal("metadata script element not closed")
	}

	var info bookInfo
	if err := json.Unmarshal([]byte(page[start:start+end]), &info); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	if info.Title != "JSON Book" {
		t.Errorf("Title = %q", info.Title)
	}
	if info.Volume != 7 {
		t.Errorf("Volume = %d, want 7", info.Volume)
	}
	if len(info.TOC) != 1 || info.TOC[0].Href != "#page01" {
		t.Errorf("TOC = %+v", info.TOC)
	}
}

func TestRenderTOCList_Empty(t *testing.T) {
	if got := renderTOCList(nil); got != "" {
		t.Errorf("renderTOCList(nil) = %q, want empty", got)
	}
}
