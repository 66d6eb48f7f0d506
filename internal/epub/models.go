package epub

// Metadata represents the book-level metadata extracted from the package document.
type Metadata struct {
	Title       string
	Author      string
	Publisher   string
	Date        string
	Description string
	Language    string
	Subjects    []string
	CoverPath   string // cover image path relative to the extraction root, "" if unknown
	CoverURL    string // final rewritten cover reference, filled in by the converter
}

// NewMetadata returns Metadata with the documented defaults applied.
func NewMetadata() Metadata {
	return Metadata{
		Title:    "Untitled",
		Author:   "Unknown Author",
		Subjects: []string{},
	}
}

// ManifestItem represents an item in the package manifest.
type ManifestItem struct {
	ID         string
	Href       string // relative to the package document's directory, percent-decoded
	MediaType  string
	Properties []string
}

// PackageDoc represents the parsed OPF package document.
type PackageDoc struct {
	Metadata      Metadata
	Manifest      map[string]ManifestItem // id -> item
	ManifestOrder []string                // manifest IDs in document order
	SpineIDs      []string                // manifest IDs in spine order
	TocID         string                  // spine toc attribute (NCX manifest ID)
	CoverID       string                  // meta name="cover" content attribute
}

// SpineEntry is one content document in final reading order.
// Ordinals are dense, contiguous and 1-based; they are assigned when the
// spine is resolved and reassigned whenever entries are filtered out.
type SpineEntry struct {
	Ordinal    int
	Path       string // absolute path of the document on disk
	ManifestID string // "" when the entry came from the directory fallback
}

// NavNode is one table-of-contents entry. Target starts out as a raw href
// (optionally carrying a fragment) and is rewritten to a chapter-anchor
// reference during reconciliation. Children belong to exactly one parent.
type NavNode struct {
	Label    string
	Target   string
	Children []NavNode
}
