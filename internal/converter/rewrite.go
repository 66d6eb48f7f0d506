package converter

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Rewriter rewrites one content document's references into the combined
// document's identifier space. All fields are read-only during rewriting,
// so one Rewriter may serve concurrent per-document calls.
type Rewriter struct {
	Root          string // extraction root
	Images        *ImageAssets
	Anchors       *AnchorMap
	CoverPath     string // cover image path relative to Root, "" if unknown
	KeepFragments bool   // preserve original in-page fragments on links
}

var (
	bodyRe    = regexp.MustCompile(`(?is)<body[^>]*>(.*)</body>`)
	htmlRe    = regexp.MustCompile(`(?is)<html[^>]*>(.*)</html>`)
	headRe    = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	xmlDeclRe = regexp.MustCompile(`(?i)<\?xml[^>]*\?>`)
	doctypeRe = regexp.MustCompile(`(?i)<!DOCTYPE[^>]*>`)

	imgTagRe  = regexp.MustCompile(`(?is)<img\b[^>]*>`)
	srcAttrRe = regexp.MustCompile(`(?is)(\ssrc\s*=\s*)(["'])(.*?)(["'])`)
	anchorRe  = regexp.MustCompile(`(?is)(<a\b[^>]*>)|(</a\s*>)`)
	hrefRe    = regexp.MustCompile(`(?is)\shref\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	h1OpenRe  = regexp.MustCompile(`(?i)<h1\b`)
	h1CloseRe = regexp.MustCompile(`(?i)</h1\s*>`)

	// Absolute URLs, protocol-relative URLs and data URIs pass through
	// untouched everywhere.
	externalRefRe = regexp.MustCompile(`(?i)^(?:[a-z][a-z0-9+.-]*:|//)`)
)

// staticAssetPrefix is the reserved path for reader chrome assets; links
// into it are never rewritten.
const staticAssetPrefix = "./static"

// RewriteDocument reads a content document, extracts its body and rewrites
// every internal reference, returning the fragment to be assembled.
func (rw *Rewriter) RewriteDocument(docPath string) (string, error) {
	raw, err := os.ReadFile(docPath)
	if err != nil {
		return "", fmt.Errorf("failed to read content document: %w", err)
	}

	body := ExtractBody(string(raw))
	body = rw.rewriteImages(body, filepath.Dir(docPath))
	body = rw.rewriteAnchors(body)
	body = demoteHeadings(body)
	return body, nil
}

// ExtractBody strips everything outside the body element. When no body
// element exists it falls back to the html element's content minus any
// head, and finally to the whole input. XML and doctype declarations are
// removed. The extraction is textual and tolerates malformed or unclosed
// markup that a strict XML parse would reject.
func ExtractBody(content string) string {
	var body string
	if m := bodyRe.FindStringSubmatch(content); m != nil {
		body = m[1]
	} else if m := htmlRe.FindStringSubmatch(content); m != nil {
		body = headRe.ReplaceAllString(m[1], "")
	} else {
		body = content
	}
	body = xmlDeclRe.ReplaceAllString(strings.TrimSpace(body), "")
	body = doctypeRe.ReplaceAllString(body, "")
	return body
}

// rewriteImages resolves every img src through the fallback cascade and
// attaches loading and dimension hints.
func (rw *Rewriter) rewriteImages(markup, docDir string) string {
	return imgTagRe.ReplaceAllStringFunc(markup, func(tag string) string {
		m := srcAttrRe.FindStringSubmatch(tag)
		if m == nil {
			return tag
		}
		src := decodeRef(m[3])
		if src == "" || externalRefRe.MatchString(src) {
			return tag
		}

		final, ok := rw.resolveImageRef(src, docDir)
		if !ok {
			log.Printf("warning: could not resolve image reference: %s", src)
			return tag
		}

		tag = srcAttrRe.ReplaceAllString(tag, `${1}${2}`+escapeReplacement(final)+`${4}`)
		return rw.decorateImageTag(tag, src, final)
	})
}

// resolveImageRef applies the strict fallback order for image references,
// stopping at the first variant registered in the path mapping.
func (rw *Rewriter) resolveImageRef(src, docDir string) (string, bool) {
	mapping := rw.Images.Mapping

	// 1. Resolve relative to the document, re-expressed against the root.
	full := filepath.Join(docDir, filepath.FromSlash(src))
	if rel, err := filepath.Rel(rw.Root, full); err == nil {
		if final, ok := mapping[filepath.ToSlash(rel)]; ok {
			return final, true
		}
	}
	// 2. Raw (already percent-decoded) src verbatim.
	if final, ok := mapping[src]; ok {
		return final, true
	}
	// 3. Bare filename.
	if final, ok := mapping[filepath.Base(src)]; ok {
		return final, true
	}
	// 4. Slash-normalized form.
	if final, ok := mapping[normalizeRef(src)]; ok {
		return final, true
	}
	// 5. Filename stem.
	if final, ok := mapping[stemOf(src)]; ok {
		return final, true
	}
	// 6. Case-insensitive exact key match.
	srcLower := strings.ToLower(src)
	for _, key := range sortedKeys(mapping) {
		if strings.ToLower(key) == srcLower {
			return mapping[key], true
		}
	}
	// 7. Matching final path segment.
	srcBase := strings.ToLower(filepath.Base(src))
	for _, key := range sortedKeys(mapping) {
		if strings.ToLower(filepath.Base(key)) == srcBase {
			return mapping[key], true
		}
	}
	return "", false
}

// decorateImageTag adds loading hints (eager for the cover, lazy for
// everything else) and width/height hints when dimensions are known.
func (rw *Rewriter) decorateImageTag(tag, origSrc, final string) string {
	insert := ""
	lower := strings.ToLower(tag)

	if !strings.Contains(lower, "loading=") {
		if rw.isCoverImage(origSrc) {
			insert += ` loading="eager" fetchpriority="high"`
		} else {
			insert += ` loading="lazy"`
		}
	}
	if dims, ok := rw.Images.Dimensions[final]; ok && !strings.Contains(lower, "width=") {
		insert += fmt.Sprintf(` width="%d" height="%d"`, dims.Width, dims.Height)
	}
	if insert == "" {
		return tag
	}

	if strings.HasSuffix(tag, "/>") {
		return tag[:len(tag)-2] + insert + "/>"
	}
	return tag[:len(tag)-1] + insert + ">"
}

// isCoverImage matches an image reference against the resolved cover path
// by filename, by stem, or by "cover" substring when the cover filename
// itself contains "cover".
func (rw *Rewriter) isCoverImage(src string) bool {
	if rw.CoverPath == "" {
		return false
	}
	coverName := strings.ToLower(filepath.Base(rw.CoverPath))
	srcName := strings.ToLower(filepath.Base(src))
	if srcName == coverName {
		return true
	}
	if stemOf(srcName) == stemOf(coverName) {
		return true
	}
	return strings.Contains(coverName, "cover") && strings.Contains(srcName, "cover")
}

// rewriteAnchors walks anchor open/close tags with a depth stack so nested
// anchors close correctly. Anchors whose href cannot be resolved (and pure
// bookmark anchors with no href at all) are demoted to span elements,
// preserving their other attributes and children.
func (rw *Rewriter) rewriteAnchors(markup string) string {
	var out strings.Builder
	var stack []string // "a" or "span", one entry per open anchor
	last := 0

	for _, loc := range anchorRe.FindAllStringSubmatchIndex(markup, -1) {
		out.WriteString(markup[last:loc[0]])
		last = loc[1]
		token := markup[loc[0]:loc[1]]

		if strings.HasPrefix(token, "</") {
			name := "a"
			if len(stack) > 0 {
				name = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
			out.WriteString("</" + name + ">")
			continue
		}

		rewritten, demoted := rw.rewriteAnchorTag(token)
		selfClosing := strings.HasSuffix(token, "/>")
		out.WriteString(rewritten)
		if !selfClosing {
			if demoted {
				stack = append(stack, "span")
			} else {
				stack = append(stack, "a")
			}
		}
	}
	out.WriteString(markup[last:])
	return out.String()
}

// rewriteAnchorTag rewrites a single opening anchor tag. It returns the
// replacement markup and whether the element was demoted to a span.
func (rw *Rewriter) rewriteAnchorTag(tag string) (string, bool) {
	m := hrefRe.FindStringSubmatchIndex(tag)
	if m == nil {
		// Pure bookmark anchor: demote up front, keeping its attributes.
		return demoteToSpan(tag, -1, -1), true
	}

	var href string
	if m[2] >= 0 {
		href = tag[m[2]:m[3]]
	} else if m[4] >= 0 {
		href = tag[m[4]:m[5]]
	}
	href = decodeRef(href)

	if externalRefRe.MatchString(href) || strings.HasPrefix(href, staticAssetPrefix) {
		return tag, false
	}

	file, fragment, _ := strings.Cut(href, "#")

	if file == "" {
		// Same-document fragment: only chapter anchors survive merging.
		if rw.Anchors.HasAnchor(fragment) {
			return replaceHref(tag, m, "#"+fragment), false
		}
		return demoteToSpan(tag, m[0], m[1]), true
	}

	anchor := rw.Anchors.Resolve(file)
	if anchor == "" {
		log.Printf("warning: could not resolve internal link: %s", href)
		return demoteToSpan(tag, m[0], m[1]), true
	}
	if rw.KeepFragments && fragment != "" {
		return replaceHref(tag, m, "#"+fragment), false
	}
	return replaceHref(tag, m, "#"+anchor), false
}

// replaceHref swaps the href attribute value inside an opening tag, using
// the match indices of the original attribute.
func replaceHref(tag string, m []int, newHref string) string {
	return tag[:m[0]] + ` href="` + newHref + `"` + tag[m[1]:]
}

// demoteToSpan converts an anchor opening tag into a span, dropping the
// href attribute (when present, given by the index pair) and keeping
// everything else.
func demoteToSpan(tag string, hrefStart, hrefEnd int) string {
	if hrefStart >= 0 {
		tag = tag[:hrefStart] + tag[hrefEnd:]
	}
	rest := tag[2:] // after "<a"
	return "<span" + rest
}

// demoteHeadings lowers level-1 headings to level 2; the combined
// document's title is the only level-1 heading.
func demoteHeadings(markup string) string {
	markup = h1OpenRe.ReplaceAllString(markup, "<h2")
	return h1CloseRe.ReplaceAllString(markup, "</h2>")
}

// escapeReplacement escapes $ signs so mapped values survive
// Regexp.ReplaceAllString expansion.
func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

// sortedKeys returns map keys in sorted order for deterministic scans.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
