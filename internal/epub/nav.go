package epub

import (
	"bytes"
	"log"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// problematicFragments are auto-generated bookmark anchors that do not
// correspond to real target elements and cannot be resolved in a combined
// document.
var problematicFragments = map[string]bool{
	"auto_bookmark_toc_top": true,
	"toc_top":               true,
	"bookmark_toc_top":      true,
	"auto_bookmark":         true,
	"bookmark":              true,
	"top":                   true,
}

var (
	navLinkRe = regexp.MustCompile(`(?is)<a[^>]+href=["']([^"']+)["'][^>]*>(.*?)</a>`)
	tagRe     = regexp.MustCompile(`<[^>]+>`)
)

// ParseNavDocument extracts the TOC tree from an EPUB3 navigation document.
// The structural parse (goquery over the HTML tree) is tried first; if it
// yields nothing, a best-effort regex extraction of anchors runs over the
// raw text. Hrefs are resolved against the nav document's own directory,
// which may differ from the package document's directory.
func ParseNavDocument(content []byte, navDir, root string) []NavNode {
	if nodes := parseNavStructural(content, navDir, root); len(nodes) > 0 {
		return nodes
	}
	return parseNavRegex(content, navDir, root)
}

// parseNavStructural locates the TOC list inside the nav document. The
// HTML parser underneath goquery tolerates missing namespaces and unclosed
// tags, so one structural pass covers both the namespaced and bare forms.
func parseNavStructural(content []byte, navDir, root string) []NavNode {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil
	}

	list := findTocList(doc)
	if list == nil {
		return nil
	}
	return parseNavList(list, navDir, root)
}

// findTocList picks the most specific navigation list available:
// nav[epub:type=toc], then nav#toc, then any nav, then any ol.
func findTocList(doc *goquery.Document) *goquery.Selection {
	var chosen *goquery.Selection

	doc.Find("nav").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if typ, ok := s.Attr("epub:type"); ok && strings.EqualFold(typ, "toc") {
			chosen = s
			return false
		}
		return true
	})
	if chosen == nil {
		if s := doc.Find("nav#toc"); s.Length() > 0 {
			chosen = s.First()
		}
	}
	if chosen == nil {
		if s := doc.Find("nav"); s.Length() > 0 {
			chosen = s.First()
		}
	}

	if chosen != nil {
		ol := chosen.ChildrenFiltered("ol")
		if ol.Length() == 0 {
			ol = chosen.Find("ol")
		}
		if ol.Length() > 0 {
			return ol.First()
		}
		return nil
	}

	if s := doc.Find("ol"); s.Length() > 0 {
		return s.First()
	}
	return nil
}

// parseNavList converts an ordered list into NavNodes, recursing into
// nested lists. Entries with empty labels are skipped individually.
func parseNavList(ol *goquery.Selection, navDir, root string) []NavNode {
	var nodes []NavNode
	ol.ChildrenFiltered("li").Each(func(i int, li *goquery.Selection) {
		a := li.ChildrenFiltered("a").First()
		if a.Length() == 0 {
			// Anchor wrapped in a span or similar; nested lists are
			// excluded so a headerless group stays headerless.
			a = li.Children().Not("ol").Find("a").First()
		}

		var node NavNode
		if a.Length() > 0 {
			href, _ := a.Attr("href")
			label := strings.TrimSpace(a.Text())
			if label == "" {
				log.Printf("warning: empty label in nav link: %s", href)
			} else {
				node = NavNode{
					Label:  label,
					Target: resolveNavTarget(navDir, root, href),
				}
			}
		}

		if nested := li.ChildrenFiltered("ol"); nested.Length() > 0 {
			node.Children = parseNavList(nested.First(), navDir, root)
		}

		if node.Label != "" || len(node.Children) > 0 {
			if node.Label == "" && len(node.Children) > 0 {
				// Headerless group: promote its children.
				nodes = append(nodes, node.Children...)
				return
			}
			nodes = append(nodes, node)
		}
	})
	return nodes
}

// parseNavRegex is the last-resort extraction of anchor patterns from raw
// text, for documents too broken for a structural parse.
func parseNavRegex(content []byte, navDir, root string) []NavNode {
	var nodes []NavNode
	for _, m := range navLinkRe.FindAllSubmatch(content, -1) {
		label := strings.TrimSpace(tagRe.ReplaceAllString(string(m[2]), ""))
		if label == "" {
			continue
		}
		nodes = append(nodes, NavNode{
			Label:  label,
			Target: resolveNavTarget(navDir, root, string(m[1])),
		})
	}
	if len(nodes) > 0 {
		log.Printf("extracted %d TOC entries with regex fallback", len(nodes))
	}
	return nodes
}

// resolveNavTarget resolves a raw href against the navigation document's
// directory and re-expresses it relative to the extraction root, with
// percent-escapes decoded and known-problematic fragments stripped.
func resolveNavTarget(navDir, root, href string) string {
	href = decodeHref(strings.TrimSpace(href))
	if href == "" {
		return ""
	}

	file, fragment := splitFragment(href)
	if fragment != "" && problematicFragments[strings.ToLower(fragment)] {
		log.Printf("stripped problematic anchor fragment: #%s", fragment)
		fragment = ""
	}

	if file == "" {
		if fragment == "" {
			return ""
		}
		return "#" + fragment
	}

	full := filepath.Join(navDir, filepath.FromSlash(file))
	rel, err := filepath.Rel(root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = file
	}
	target := filepath.ToSlash(rel)
	if fragment != "" {
		target += "#" + fragment
	}
	return target
}

// splitFragment splits a target reference into the path and fragment
// identifier on the first '#'.
func splitFragment(ref string) (path, fragment string) {
	path, fragment, _ = strings.Cut(ref, "#")
	return path, fragment
}
