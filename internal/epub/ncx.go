package epub

import (
	"encoding/xml"
	"log"
	"regexp"
	"strings"

	"github.com/beevik/etree"
)

// ncxDocument represents the NCX XML structure for the strict parse.
type ncxDocument struct {
	XMLName xml.Name `xml:"http://www.daisy.org/z3986/2005/ncx/ ncx"`
	NavMap  struct {
		NavPoints []ncxNavPoint `xml:"navPoint"`
	} `xml:"navMap"`
}

type ncxNavPoint struct {
	NavLabel struct {
		Text string `xml:"text"`
	} `xml:"navLabel"`
	Content struct {
		Src string `xml:"src,attr"`
	} `xml:"content"`
	Children []ncxNavPoint `xml:"navPoint"`
}

var ncxNavPointRe = regexp.MustCompile(`(?is)<navPoint[^>]*>.*?<navLabel>.*?<text>(.*?)</text>.*?<content[^>]*src=["']([^"']+)["']`)

// ParseNCX extracts the TOC tree from an EPUB2 NCX document. The parse is a
// sub-cascade: strict namespaced encoding/xml, then a namespace-agnostic
// etree walk, then regex extraction of navPoint patterns from raw text.
// Hrefs are resolved against the NCX document's own directory.
func ParseNCX(content []byte, ncxDir, root string) []NavNode {
	var doc ncxDocument
	if err := xml.Unmarshal(content, &doc); err == nil {
		if nodes := convertNavPoints(doc.NavMap.NavPoints, ncxDir, root); len(nodes) > 0 {
			return nodes
		}
	}

	if nodes := parseNCXLoose(content, ncxDir, root); len(nodes) > 0 {
		return nodes
	}

	return parseNCXRegex(content, ncxDir, root)
}

// convertNavPoints maps strict-parse navPoints onto NavNodes, skipping
// entries with empty labels or missing content srcs.
func convertNavPoints(points []ncxNavPoint, ncxDir, root string) []NavNode {
	var nodes []NavNode
	for _, p := range points {
		label := strings.TrimSpace(p.NavLabel.Text)
		if label == "" {
			log.Printf("warning: empty label in navPoint, skipping")
			continue
		}
		if p.Content.Src == "" {
			log.Printf("warning: navPoint %q has no content src, skipping", label)
			continue
		}
		nodes = append(nodes, NavNode{
			Label:    label,
			Target:   resolveNavTarget(ncxDir, root, p.Content.Src),
			Children: convertNavPoints(p.Children, ncxDir, root),
		})
	}
	return nodes
}

// parseNCXLoose walks the NCX with etree, matching elements by local name
// only, for files with broken or absent namespace declarations.
func parseNCXLoose(content []byte, ncxDir, root string) []NavNode {
	tree := etree.NewDocument()
	tree.ReadSettings.Permissive = true
	if err := tree.ReadFromBytes(content); err != nil {
		return nil
	}
	ncxRoot := tree.Root()
	if ncxRoot == nil {
		return nil
	}
	navMap := findChild(ncxRoot, "navMap")
	if navMap == nil {
		return nil
	}
	return parseLooseNavPoints(navMap, ncxDir, root)
}

func parseLooseNavPoints(parent *etree.Element, ncxDir, root string) []NavNode {
	var nodes []NavNode
	for _, point := range childrenNamed(parent, "navPoint") {
		var label, src string
		if navLabel := findChild(point, "navLabel"); navLabel != nil {
			if text := findChild(navLabel, "text"); text != nil {
				label = strings.TrimSpace(text.Text())
			}
		}
		if content := findChild(point, "content"); content != nil {
			src = content.SelectAttrValue("src", "")
		}
		if label == "" || src == "" {
			log.Printf("warning: incomplete navPoint (label=%q src=%q), skipping", label, src)
			continue
		}
		nodes = append(nodes, NavNode{
			Label:    label,
			Target:   resolveNavTarget(ncxDir, root, src),
			Children: parseLooseNavPoints(point, ncxDir, root),
		})
	}
	return nodes
}

// parseNCXRegex extracts flat navPoint patterns from raw text as a last
// resort. Nesting is not recoverable at this level.
func parseNCXRegex(content []byte, ncxDir, root string) []NavNode {
	var nodes []NavNode
	for _, m := range ncxNavPointRe.FindAllSubmatch(content, -1) {
		label := strings.TrimSpace(tagRe.ReplaceAllString(string(m[1]), ""))
		if label == "" {
			continue
		}
		nodes = append(nodes, NavNode{
			Label:  label,
			Target: resolveNavTarget(ncxDir, root, string(m[2])),
		})
	}
	if len(nodes) > 0 {
		log.Printf("extracted %d NCX entries with regex fallback", len(nodes))
	}
	return nodes
}
