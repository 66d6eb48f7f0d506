package epub

import "strings"

// boilerplateLabels are label patterns for non-narrative TOC entries.
// A label matches on case-insensitive equality or standalone-word
// containment inside a longer label.
var boilerplateLabels = []string{
	"copyright", "newsletter", "about j-novel club", "about yen press",
	"yen newsletter", "j-novel club newsletter", "newsletter signup",
	"newsletter sign-up", "newsletter subscription", "subscribe now",
	"subscription page", "sign up page", "signup page", "contact us",
	"support page", "help page", "advertisement", "promo page",
	"promotion page", "legal notice", "legal information",
	"terms of service", "privacy policy", "back matter", "end matter",
	"colophon", "imprint", "publisher information", "about publisher",
	"credits and copyright", "copyright page", "other series",
}

// suspiciousHrefFragments are path fragments that mark boilerplate targets.
var suspiciousHrefFragments = []string{
	"newsletter", "signup", "copyright", "legal", "about",
	"contact", "support", "help", "ad", "promo", "subscribe",
}

// IsBoilerplate reports whether a TOC entry should be dropped as
// non-narrative content, based on its label and target href.
func IsBoilerplate(label, href string) bool {
	if label == "" {
		return false
	}
	labelLower := strings.ToLower(strings.TrimSpace(label))

	for _, pattern := range boilerplateLabels {
		if pattern == labelLower {
			return true
		}
		if strings.Contains(labelLower, pattern) &&
			(strings.HasPrefix(labelLower, pattern+" ") ||
				strings.HasSuffix(labelLower, " "+pattern) ||
				strings.Contains(labelLower, " "+pattern+" ")) {
			return true
		}
	}

	if href != "" {
		hrefLower := strings.ToLower(href)
		for _, fragment := range suspiciousHrefFragments {
			if strings.Contains(hrefLower, fragment) {
				return true
			}
		}
	}

	return false
}

// FilterBoilerplate produces a new tree with boilerplate entries removed
// and returns the hrefs of the removed entries so spine filtering can act
// on them. Children of a removed node are filtered independently and
// promoted into the removed node's position. The transform is pure and
// idempotent: filtering an already-filtered tree changes nothing.
func FilterBoilerplate(nodes []NavNode) ([]NavNode, []string) {
	var kept []NavNode
	var filtered []string

	for _, node := range nodes {
		children, childFiltered := FilterBoilerplate(node.Children)
		filtered = append(filtered, childFiltered...)

		if IsBoilerplate(node.Label, node.Target) {
			if file := strings.SplitN(node.Target, "#", 2)[0]; file != "" {
				filtered = append(filtered, file)
			}
			kept = append(kept, children...)
			continue
		}

		node.Children = children
		kept = append(kept, node)
	}

	return kept, filtered
}
