package converter

import (
	"embed"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"strings"

	"github.com/isurajpanda/epub-to-html/internal/epub"
)

//go:embed templates/reader.html
var templateFS embed.FS

var readerTemplate = template.Must(template.ParseFS(templateFS, "templates/reader.html"))

// readerData is the data handed to the reader page template.
type readerData struct {
	Title        string
	Author       string
	BodyContent  template.HTML
	TOCContent   template.HTML
	MetadataJSON template.JS
	CustomCSS    template.CSS
	CoverURL     string
}

// bookInfo is the metadata record embedded in the rendered page for the
// reader UI.
type bookInfo struct {
	Title       string         `json:"title"`
	Author      string         `json:"author"`
	Publisher   string         `json:"publisher,omitempty"`
	Date        string         `json:"date,omitempty"`
	Description string         `json:"description,omitempty"`
	Language    string         `json:"language,omitempty"`
	Subjects    []string       `json:"subjects,omitempty"`
	CoverURL    string         `json:"cover_url,omitempty"`
	Volume      int            `json:"volume"`
	TOC         []tocEntryJSON `json:"toc"`
}

type tocEntryJSON struct {
	Label    string         `json:"label"`
	Href     string         `json:"href"`
	Children []tocEntryJSON `json:"children,omitempty"`
}

// RenderDocument wraps the combined body in the full reader page.
func RenderDocument(meta epub.Metadata, toc []epub.NavNode, body, customCSS string, volume int) (string, error) {
	info := bookInfo{
		Title:       meta.Title,
		Author:      meta.Author,
		Publisher:   meta.Publisher,
		Date:        meta.Date,
		Description: meta.Description,
		Language:    meta.Language,
		Subjects:    meta.Subjects,
		CoverURL:    meta.CoverURL,
		Volume:      volume,
		TOC:         tocToJSON(toc),
	}
	metaJSON, err := json.Marshal(info)
	if err != nil {
		return "", fmt.Errorf("failed to encode metadata: %w", err)
	}

	var out strings.Builder
	err = readerTemplate.Execute(&out, readerData{
		Title:        meta.Title,
		Author:       meta.Author,
		BodyContent:  template.HTML(body),
		TOCContent:   template.HTML(renderTOCList(toc)),
		MetadataJSON: template.JS(metaJSON),
		CustomCSS:    template.CSS(customCSS),
		CoverURL:     meta.CoverURL,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return out.String(), nil
}

// renderTOCList writes the TOC tree as nested lists of links.
func renderTOCList(nodes []epub.NavNode) string {
	if len(nodes) == 0 {
		return ""
	}
	var b strings.Builder
	writeTOCEntries(&b, nodes)
	return b.String()
}

func writeTOCEntries(b *strings.Builder, nodes []epub.NavNode) {
	b.WriteString("<ul>")
	for _, node := range nodes {
		b.WriteString("<li>")
		fmt.Fprintf(b, `<a href="%s">%s</a>`, html.EscapeString(node.Target), html.EscapeString(node.Label))
		if len(node.Children) > 0 {
			writeTOCEntries(b, node.Children)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
}

func tocToJSON(nodes []epub.NavNode) []tocEntryJSON {
	out := make([]tocEntryJSON, 0, len(nodes))
	for _, node := range nodes {
		out = append(out, tocEntryJSON{
			Label:    node.Label,
			Href:     node.Target,
			Children: tocToJSON(node.Children),
		})
	}
	return out
}
