package converter

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/isurajpanda/epub-to-html/internal/epub"
)

// AnchorMap maps candidate reference spellings (full relative path, bare
// filename, stem, common path-prefix variants) to the canonical chapter
// anchor derived from final reading order. Built once after spine
// filtering; read-only afterward.
type AnchorMap struct {
	anchors   map[string]string
	order     []string // insertion order of keys, for deterministic fuzzy matching
	anchorSet map[string]bool
}

// NewAnchorMap returns an empty AnchorMap.
func NewAnchorMap() *AnchorMap {
	return &AnchorMap{
		anchors:   make(map[string]string),
		anchorSet: make(map[string]bool),
	}
}

// register adds a key for an anchor. Earlier spine entries have priority:
// a key already claimed is never overwritten.
func (m *AnchorMap) register(key, anchor string) {
	if key == "" {
		return
	}
	if _, exists := m.anchors[key]; exists {
		return
	}
	m.anchors[key] = anchor
	m.order = append(m.order, key)
	m.anchorSet[anchor] = true
}

// HasAnchor reports whether anchor was assigned to any chapter.
func (m *AnchorMap) HasAnchor(anchor string) bool {
	return m.anchorSet[anchor]
}

// Get returns the anchor registered under the exact key.
func (m *AnchorMap) Get(key string) (string, bool) {
	anchor, ok := m.anchors[key]
	return anchor, ok
}

// Len returns the number of registered keys.
func (m *AnchorMap) Len() int {
	return len(m.anchors)
}

// ChapterAnchor formats the canonical anchor for a 1-based ordinal.
func ChapterAnchor(ordinal int) string {
	return fmt.Sprintf("page%02d", ordinal)
}

// FilterSpine removes spine entries whose document matches a filtered TOC
// href by relative path, bare filename or stem, then renumbers the
// survivors densely from 1. The input slice is not mutated.
func FilterSpine(entries []epub.SpineEntry, root string, filteredHrefs []string) []epub.SpineEntry {
	if len(filteredHrefs) == 0 {
		out := make([]epub.SpineEntry, len(entries))
		copy(out, entries)
		for i := range out {
			out[i].Ordinal = i + 1
		}
		return out
	}

	type variant struct{ path, name, stem string }
	filtered := make([]variant, 0, len(filteredHrefs))
	for _, href := range filteredHrefs {
		href = strings.ToLower(strings.TrimSpace(href))
		if href == "" {
			continue
		}
		name := filepath.Base(href)
		filtered = append(filtered, variant{
			path: href,
			name: name,
			stem: strings.TrimSuffix(name, filepath.Ext(name)),
		})
	}

	var out []epub.SpineEntry
	for _, entry := range entries {
		rel := strings.ToLower(relToRoot(entry.Path, root))
		name := filepath.Base(rel)
		stem := strings.TrimSuffix(name, filepath.Ext(name))

		drop := false
		for _, f := range filtered {
			if rel == f.path || name == f.name || stem == f.stem {
				drop = true
				break
			}
		}
		if drop {
			log.Printf("filtered out content file: %s", name)
			continue
		}
		entry.Ordinal = len(out) + 1
		out = append(out, entry)
	}
	return out
}

// BuildAnchorMap assigns chapter anchors to filtered spine entries and
// registers every candidate spelling of each document: the path relative to
// the extraction root (percent-decoded), the bare filename, the stem, and
// the historically common Text/ and OEBPS/ prefix variants. First writer
// wins on key collisions, so spine order determines priority.
func BuildAnchorMap(entries []epub.SpineEntry, root string) *AnchorMap {
	m := NewAnchorMap()
	for _, entry := range entries {
		anchor := ChapterAnchor(entry.Ordinal)
		rel := relToRoot(entry.Path, root)
		name := filepath.Base(rel)
		stem := strings.TrimSuffix(name, filepath.Ext(name))

		m.register(rel, anchor)
		m.register(name, anchor)
		m.register(stem, anchor)
	}
	// Prefix variants go in a second pass so a synthetic variant of one
	// entry can never shadow another entry's real relative path.
	for _, entry := range entries {
		anchor := ChapterAnchor(entry.Ordinal)
		name := filepath.Base(relToRoot(entry.Path, root))
		m.register("Text/"+name, anchor)
		m.register("OEBPS/"+name, anchor)
	}
	return m
}

// Resolve maps an arbitrary file reference onto a chapter anchor: exact
// match, then bare filename, then the percent-decoded form, then fuzzy
// matching. Returns "" when nothing matches.
func (m *AnchorMap) Resolve(file string) string {
	if anchor, ok := m.anchors[file]; ok {
		return anchor
	}
	name := filepath.Base(file)
	if anchor, ok := m.anchors[name]; ok {
		return anchor
	}
	if decoded := decodeRef(file); decoded != file {
		if anchor, ok := m.anchors[decoded]; ok {
			return anchor
		}
	}
	return m.resolveFuzzy(file)
}

// resolveFuzzy performs a case-insensitive substring test in both
// directions between the candidate's filename/stem and every registered
// key. Iteration follows insertion order, so behavior is deterministic and
// priority is registration order rather than best match.
func (m *AnchorMap) resolveFuzzy(file string) string {
	name := strings.ToLower(filepath.Base(file))
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if stem == "" {
		return ""
	}
	for _, key := range m.order {
		keyLower := strings.ToLower(key)
		if strings.Contains(keyLower, name) || strings.Contains(keyLower, stem) ||
			strings.Contains(name, keyLower) || strings.Contains(stem, keyLower) {
			return m.anchors[key]
		}
	}
	return ""
}

// RemapTOC produces a new TOC tree whose targets reference chapter anchors.
// By default the original fragment is discarded in favor of the chapter
// anchor, which is guaranteed to resolve in the combined document; with
// keepFragments the original fragment is preserved instead. References that
// cannot be resolved at all fall back to the first chapter rather than
// dangling.
func RemapTOC(nodes []epub.NavNode, m *AnchorMap, keepFragments bool) []epub.NavNode {
	out := make([]epub.NavNode, 0, len(nodes))
	for _, node := range nodes {
		node.Children = RemapTOC(node.Children, m, keepFragments)
		node.Target = remapTarget(node.Label, node.Target, m, keepFragments)
		out = append(out, node)
	}
	return out
}

func remapTarget(label, target string, m *AnchorMap, keepFragments bool) string {
	file, fragment, _ := strings.Cut(target, "#")
	if file == "" && fragment != "" {
		// Raw same-document fragment out of a nav parse; keep only if it
		// already names a chapter anchor.
		if m.HasAnchor(fragment) {
			return "#" + fragment
		}
		log.Printf("warning: could not map TOC entry %q (%s), defaulting to first chapter", label, target)
		return "#" + ChapterAnchor(1)
	}

	anchor := m.Resolve(file)
	if anchor == "" {
		log.Printf("warning: could not map TOC entry %q (%s), defaulting to first chapter", label, target)
		return "#" + ChapterAnchor(1)
	}
	if keepFragments && fragment != "" {
		return "#" + fragment
	}
	return "#" + anchor
}

// relToRoot re-expresses an absolute document path relative to the
// extraction root, slash-normalized and percent-decoded.
func relToRoot(path, root string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return decodeRef(filepath.ToSlash(rel))
}
