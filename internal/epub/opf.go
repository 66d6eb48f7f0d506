package epub

import (
	"encoding/xml"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/beevik/etree"
)

// opfPackage represents the OPF XML structure for the strict parse.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	Title       []string  `xml:"http://purl.org/dc/elements/1.1/ title"`
	Creator     []string  `xml:"http://purl.org/dc/elements/1.1/ creator"`
	Language    []string  `xml:"http://purl.org/dc/elements/1.1/ language"`
	Publisher   []string  `xml:"http://purl.org/dc/elements/1.1/ publisher"`
	Date        []string  `xml:"http://purl.org/dc/elements/1.1/ date"`
	Description []string  `xml:"http://purl.org/dc/elements/1.1/ description"`
	Subject     []string  `xml:"http://purl.org/dc/elements/1.1/ subject"`
	Meta        []opfMeta `xml:"meta"`
}

type opfMeta struct {
	Name    string `xml:"name,attr"`
	Content string `xml:"content,attr"`
}

type opfManifest struct {
	Items []opfManifestItem `xml:"item"`
}

type opfManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	Toc      string       `xml:"toc,attr"`
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef string `xml:"idref,attr"`
}

// ParsePackage parses package document content. It first attempts a strict
// namespaced parse with encoding/xml, then falls back to a fault-tolerant
// etree parse for files with missing or mangled namespace declarations.
func ParsePackage(content []byte) (*PackageDoc, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(content, &pkg); err == nil && len(pkg.Manifest.Items) > 0 {
		return buildPackageDoc(&pkg), nil
	}

	doc, err := parsePackageLoose(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse package document: %w", err)
	}
	return doc, nil
}

// buildPackageDoc converts the raw XML structure into a PackageDoc.
func buildPackageDoc(pkg *opfPackage) *PackageDoc {
	doc := &PackageDoc{
		Metadata: NewMetadata(),
		Manifest: make(map[string]ManifestItem, len(pkg.Manifest.Items)),
		TocID:    pkg.Spine.Toc,
	}

	md := &doc.Metadata
	if len(pkg.Metadata.Title) > 0 && strings.TrimSpace(pkg.Metadata.Title[0]) != "" {
		md.Title = strings.TrimSpace(pkg.Metadata.Title[0])
	}
	if len(pkg.Metadata.Creator) > 0 && strings.TrimSpace(pkg.Metadata.Creator[0]) != "" {
		md.Author = strings.TrimSpace(pkg.Metadata.Creator[0])
	}
	if len(pkg.Metadata.Publisher) > 0 {
		md.Publisher = strings.TrimSpace(pkg.Metadata.Publisher[0])
	}
	if len(pkg.Metadata.Date) > 0 {
		md.Date = strings.TrimSpace(pkg.Metadata.Date[0])
	}
	if len(pkg.Metadata.Description) > 0 {
		md.Description = strings.TrimSpace(pkg.Metadata.Description[0])
	}
	if len(pkg.Metadata.Language) > 0 {
		md.Language = strings.TrimSpace(pkg.Metadata.Language[0])
	}
	for _, s := range pkg.Metadata.Subject {
		if s = strings.TrimSpace(s); s != "" {
			md.Subjects = append(md.Subjects, s)
		}
	}
	for _, m := range pkg.Metadata.Meta {
		if m.Name == "cover" && m.Content != "" {
			doc.CoverID = m.Content
			break
		}
	}

	for _, item := range pkg.Manifest.Items {
		if item.ID == "" || item.Href == "" {
			continue
		}
		mi := ManifestItem{
			ID:        item.ID,
			Href:      decodeHref(item.Href),
			MediaType: item.MediaType,
		}
		if item.Properties != "" {
			mi.Properties = strings.Fields(item.Properties)
		}
		doc.Manifest[item.ID] = mi
		doc.ManifestOrder = append(doc.ManifestOrder, item.ID)
	}

	for _, ref := range pkg.Spine.ItemRefs {
		if ref.IDRef != "" {
			doc.SpineIDs = append(doc.SpineIDs, ref.IDRef)
		}
	}

	return doc
}

// parsePackageLoose parses the package document with etree, matching
// elements by local name only. Real-world files mix or omit namespace
// declarations.
func parsePackageLoose(content []byte) (*PackageDoc, error) {
	tree := etree.NewDocument()
	tree.ReadSettings.Permissive = true
	if err := tree.ReadFromBytes(content); err != nil {
		return nil, err
	}
	root := tree.Root()
	if root == nil {
		return nil, fmt.Errorf("empty package document")
	}

	doc := &PackageDoc{
		Metadata: NewMetadata(),
		Manifest: make(map[string]ManifestItem),
	}

	if meta := findChild(root, "metadata"); meta != nil {
		readLooseMetadata(meta, doc)
	}

	manifest := findChild(root, "manifest")
	if manifest == nil {
		return nil, fmt.Errorf("package document has no manifest")
	}
	for _, item := range childrenNamed(manifest, "item") {
		id := item.SelectAttrValue("id", "")
		href := item.SelectAttrValue("href", "")
		if id == "" || href == "" {
			continue
		}
		mi := ManifestItem{
			ID:        id,
			Href:      decodeHref(href),
			MediaType: item.SelectAttrValue("media-type", ""),
		}
		if props := item.SelectAttrValue("properties", ""); props != "" {
			mi.Properties = strings.Fields(props)
		}
		doc.Manifest[id] = mi
		doc.ManifestOrder = append(doc.ManifestOrder, id)
	}

	if spine := findChild(root, "spine"); spine != nil {
		doc.TocID = spine.SelectAttrValue("toc", "")
		for _, ref := range childrenNamed(spine, "itemref") {
			if idref := ref.SelectAttrValue("idref", ""); idref != "" {
				doc.SpineIDs = append(doc.SpineIDs, idref)
			}
		}
	}

	return doc, nil
}

func readLooseMetadata(meta *etree.Element, doc *PackageDoc) {
	md := &doc.Metadata
	setFirst := func(tag string, dst *string) {
		if el := findChild(meta, tag); el != nil {
			if text := strings.TrimSpace(el.Text()); text != "" {
				*dst = text
			}
		}
	}
	setFirst("title", &md.Title)
	setFirst("creator", &md.Author)
	setFirst("publisher", &md.Publisher)
	setFirst("date", &md.Date)
	setFirst("description", &md.Description)
	setFirst("language", &md.Language)
	for _, el := range childrenNamed(meta, "subject") {
		if text := strings.TrimSpace(el.Text()); text != "" {
			md.Subjects = append(md.Subjects, text)
		}
	}
	for _, el := range childrenNamed(meta, "meta") {
		if el.SelectAttrValue("name", "") == "cover" {
			if content := el.SelectAttrValue("content", ""); content != "" {
				doc.CoverID = content
				break
			}
		}
	}
}

// findChild returns the first child element with the given local name,
// regardless of namespace prefix.
func findChild(parent *etree.Element, local string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if child.Tag == local {
			return child
		}
	}
	return nil
}

// childrenNamed returns all child elements with the given local name.
func childrenNamed(parent *etree.Element, local string) []*etree.Element {
	var out []*etree.Element
	for _, child := range parent.ChildElements() {
		if child.Tag == local {
			out = append(out, child)
		}
	}
	return out
}

// ResolveSpine walks the spine in document order and resolves each entry to
// an existing (X)HTML file on disk. Entries pointing at missing files are
// skipped with a diagnostic. Ordinals are assigned densely from 1.
func ResolveSpine(doc *PackageDoc, opfDir string) []SpineEntry {
	var entries []SpineEntry
	for _, idref := range doc.SpineIDs {
		item, ok := doc.Manifest[idref]
		if !ok {
			log.Printf("warning: spine item %q not found in manifest, skipping", idref)
			continue
		}
		if !isDocumentItem(item) {
			continue
		}
		full := filepath.Join(opfDir, filepath.FromSlash(item.Href))
		if _, err := os.Stat(full); err != nil {
			log.Printf("warning: spine item not found on disk: %s", full)
			continue
		}
		entries = append(entries, SpineEntry{
			Ordinal:    len(entries) + 1,
			Path:       full,
			ManifestID: item.ID,
		})
	}
	return entries
}

// isDocumentItem reports whether a manifest item is an (X)HTML content
// document, by media type or by extension.
func isDocumentItem(item ManifestItem) bool {
	mt := strings.ToLower(item.MediaType)
	if strings.Contains(mt, "xhtml") || strings.Contains(mt, "html") {
		return true
	}
	lower := strings.ToLower(item.Href)
	return strings.HasSuffix(lower, ".xhtml") || strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".htm")
}

// LoadPackage reads and parses the package document at opfPath.
func LoadPackage(opfPath string) (*PackageDoc, error) {
	content, err := os.ReadFile(opfPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read package document: %w", err)
	}
	return ParsePackage(content)
}

// decodeHref percent-decodes a manifest or navigation href. Undecodable
// input is returned as-is.
func decodeHref(href string) string {
	decoded, err := url.PathUnescape(href)
	if err != nil {
		return href
	}
	return decoded
}
