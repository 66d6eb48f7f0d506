package converter

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/isurajpanda/epub-to-html/internal/epub"
)

// Fragment is one rewritten content document tagged with its final chapter
// anchor. Fragments may be produced concurrently and out of order; the
// assembler sorts them by ordinal before concatenation.
type Fragment struct {
	Ordinal int
	Anchor  string
	Body    string
}

// Assemble concatenates fragments in final reading order, wrapping each in
// a container carrying its chapter anchor, separated by a visible rule.
func Assemble(fragments []Fragment) string {
	sorted := make([]Fragment, len(fragments))
	copy(sorted, fragments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Ordinal < sorted[j].Ordinal })

	parts := make([]string, 0, len(sorted))
	for _, f := range sorted {
		parts = append(parts, fmt.Sprintf("<div class=\"chapter\" id=%q>\n%s\n</div>", f.Anchor, f.Body))
	}
	return strings.Join(parts, "\n<hr class=\"chapter-separator\">\n")
}

var (
	headingRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<h1[^>]*>(.*?)</h1>`),
		regexp.MustCompile(`(?is)<h2[^>]*>(.*?)</h2>`),
		regexp.MustCompile(`(?is)<h3[^>]*>(.*?)</h3>`),
		regexp.MustCompile(`(?is)<xhtml:h1[^>]*>(.*?)</xhtml:h1>`),
		regexp.MustCompile(`(?is)<xhtml:h2[^>]*>(.*?)</xhtml:h2>`),
		regexp.MustCompile(`(?is)<xhtml:h3[^>]*>(.*?)</xhtml:h3>`),
	}
	titleTagRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	chapterRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Chapter\s+\d+[:\s]*(.*?)(?:\n|$)`),
		regexp.MustCompile(`(?i)Chapter\s+[IVX]+[:\s]*(.*?)(?:\n|$)`),
		regexp.MustCompile(`(?i)Part\s+\d+[:\s]*(.*?)(?:\n|$)`),
		regexp.MustCompile(`(?i)Section\s+\d+[:\s]*(.*?)(?:\n|$)`),
	}
	underscoreRe = regexp.MustCompile(`[_-]`)
	digitsRe     = regexp.MustCompile(`\d+`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// SynthesizeTOC builds a basic table of contents from the content documents
// themselves, used when no navigation document of any kind was found. For
// each chapter the title comes from the first heading, then the document
// title element, then a "Chapter N" textual pattern, then the cleaned
// filename, and finally a plain "Chapter N" fallback.
func SynthesizeTOC(entries []epub.SpineEntry) []epub.NavNode {
	log.Printf("generating basic TOC from chapter headings")

	nodes := make([]epub.NavNode, 0, len(entries))
	for _, entry := range entries {
		anchor := ChapterAnchor(entry.Ordinal)
		title := chapterTitle(entry)
		label := fmt.Sprintf("Chapter %d", entry.Ordinal)
		if title != "" {
			label = fmt.Sprintf("Chapter %d: %s", entry.Ordinal, title)
		}
		nodes = append(nodes, epub.NavNode{Label: label, Target: "#" + anchor})
	}
	return nodes
}

// chapterTitle extracts a display title for one content document, returning
// "" when nothing usable is found.
func chapterTitle(entry epub.SpineEntry) string {
	raw, err := os.ReadFile(entry.Path)
	if err != nil {
		log.Printf("warning: could not read %s for TOC synthesis: %v", filepath.Base(entry.Path), err)
		return ""
	}
	content := string(raw)

	for _, re := range headingRes {
		if m := re.FindStringSubmatch(content); m != nil {
			if title := cleanTitle(m[1]); title != "" {
				return title
			}
		}
	}

	if m := titleTagRe.FindStringSubmatch(content); m != nil {
		if title := cleanTitle(m[1]); title != "" {
			return title
		}
	}

	for _, re := range chapterRes {
		if m := re.FindStringSubmatch(content); m != nil {
			if title := cleanTitle(m[1]); len(title) > 3 {
				return title
			}
		}
	}

	// Filename, cleaned of digits and separators.
	stem := stemOf(entry.Path)
	stem = underscoreRe.ReplaceAllString(stem, " ")
	stem = digitsRe.ReplaceAllString(stem, "")
	return cleanTitle(stem)
}

// cleanTitle strips markup and collapses whitespace, truncating long
// titles.
func cleanTitle(s string) string {
	s = tagStripRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
	if r := []rune(s); len(r) > 50 {
		s = string(r[:47]) + "..."
	}
	return s
}

var tagStripRe = regexp.MustCompile(`<[^>]+>`)
