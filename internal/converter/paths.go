package converter

import (
	"net/url"
	"path/filepath"
	"strings"
)

// decodeRef percent-decodes a reference, returning the input unchanged when
// it cannot be decoded.
func decodeRef(ref string) string {
	decoded, err := url.PathUnescape(ref)
	if err != nil {
		return ref
	}
	return decoded
}

// normalizeRef converts backslashes to forward slashes and collapses
// redundant ./ and ../ segments.
func normalizeRef(ref string) string {
	ref = strings.ReplaceAll(ref, `\`, "/")
	return filepath.ToSlash(filepath.Clean(ref))
}

// stemOf returns the final path segment without its extension.
func stemOf(ref string) string {
	base := filepath.Base(ref)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
