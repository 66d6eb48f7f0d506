package converter

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

//go:embed static/style.css static/script.js
var staticFS embed.FS

var (
	cssCommentRe    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	cssSpaceRe      = regexp.MustCompile(`\s+`)
	cssAroundRe     = regexp.MustCompile(`\s*([{};:,>])\s*`)
	jsBlockComment  = regexp.MustCompile(`(?s)/\*.*?\*/`)
	jsLineComment   = regexp.MustCompile(`(?m)^\s*//.*$`)
	jsBlankLines    = regexp.MustCompile(`\n{2,}`)
	jsLeadingSpaces = regexp.MustCompile(`(?m)^[ \t]+`)
)

// minifyCSS strips comments and collapses whitespace. It is a best-effort
// textual pass, not a full CSS parser.
func minifyCSS(css string) string {
	css = cssCommentRe.ReplaceAllString(css, "")
	css = cssSpaceRe.ReplaceAllString(css, " ")
	css = cssAroundRe.ReplaceAllString(css, "$1")
	css = strings.ReplaceAll(css, ";}", "}")
	return strings.TrimSpace(css)
}

// minifyJS removes comments and indentation but keeps line structure so
// statements without semicolons stay valid.
func minifyJS(js string) string {
	js = jsBlockComment.ReplaceAllString(js, "")
	js = jsLineComment.ReplaceAllString(js, "")
	js = jsLeadingSpaces.ReplaceAllString(js, "")
	js = jsBlankLines.ReplaceAllString(js, "\n")
	return strings.TrimSpace(js)
}

// WriteStaticAssets writes the minified reader stylesheet and script into
// outDir/static. Creating the directory is idempotent so concurrent book
// conversions can share an output root.
func WriteStaticAssets(outDir string) error {
	staticDir := filepath.Join(outDir, "static")
	if err := os.MkdirAll(staticDir, 0755); err != nil {
		return fmt.Errorf("failed to create static directory: %w", err)
	}

	css, err := staticFS.ReadFile("static/style.css")
	if err != nil {
		return fmt.Errorf("failed to read embedded stylesheet: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staticDir, "style.css"), []byte(minifyCSS(string(css))), 0644); err != nil {
		return fmt.Errorf("failed to write stylesheet: %w", err)
	}

	js, err := staticFS.ReadFile("static/script.js")
	if err != nil {
		return fmt.Errorf("failed to read embedded script: %w", err)
	}
	if err := os.WriteFile(filepath.Join(staticDir, "script.js"), []byte(minifyJS(string(js))), 0644); err != nil {
		return fmt.Errorf("failed to write script: %w", err)
	}
	return nil
}

// LoadCustomCSS reads the user stylesheet, returning "" when no path was
// given.
func LoadCustomCSS(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read custom CSS: %w", err)
	}
	return string(data), nil
}
