// Package content implements the THYPRESS content pipeline: it walks the
// content root, parses entries from markdown, plaintext and HTML sources,
// rewrites image references, builds tables of contents and the navigation
// tree, and maintains the in-memory entry map that the HTTP path reads.
package content

import (
	"time"
)

// EntryType discriminates the source format of an entry.
type EntryType string

const (
	TypeMarkdown  EntryType = "markdown"
	TypePlaintext EntryType = "plaintext"
	TypeHTML      EntryType = "html"
)

// Entry is a single ingested content unit plus its derived metadata.
type Entry struct {
	// Slug is the stable URL path component derived from the file's
	// content-root-relative path. Unique across the entry map.
	Slug string `json:"slug"`
	// URL is the absolute site-relative path, always ending in "/".
	URL  string    `json:"url"`
	Type EntryType `json:"type"`

	Title       string    `json:"title"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	Tags        []string  `json:"tags,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Series      string    `json:"series,omitempty"`
	Description string    `json:"description,omitempty"`

	// Rendered is the HTML body fragment produced by content conversion.
	Rendered string `json:"-"`
	// RenderedFull is set only for HTML entries that supplied a complete
	// document; such entries are served verbatim.
	RenderedFull string `json:"-"`

	TOC       []*TOCNode `json:"toc,omitempty"`
	ImageRefs []ImageRef `json:"imageRefs,omitempty"`

	WordCount   int `json:"wordCount"`
	ReadingTime int `json:"readingTime"`

	// FrontMatter preserves the raw key/value map for template access.
	FrontMatter map[string]interface{} `json:"-"`

	// Section is the first path segment after the content root, used for
	// template selection.
	Section string `json:"section,omitempty"`

	// Path is the absolute source file path.
	Path string `json:"-"`
}

// HasFullDocument reports whether the entry supplied a complete HTML
// document to serve verbatim.
func (e *Entry) HasFullDocument() bool {
	return e.RenderedFull != ""
}

// OGImage returns the open-graph variant URL for the entry: the middle size
// of the first image reference. Empty when the entry has no images.
func (e *Entry) OGImage() string {
	if len(e.ImageRefs) == 0 {
		return ""
	}
	ref := e.ImageRefs[0]
	if len(ref.Sizes) == 0 {
		return ""
	}
	size := ref.Sizes[len(ref.Sizes)/2]
	return ref.VariantURL(size, "jpg")
}

// TOCNode is one heading in the ordered H2-H4 tree of an entry.
type TOCNode struct {
	Level    int        `json:"level"`
	ID       string     `json:"id"`
	Text     string     `json:"text"`
	Children []*TOCNode `json:"children,omitempty"`
}

// NavigationNode is one node of the directory-structured site menu.
// Folders precede files; both are alphabetical by name within their kind.
type NavigationNode struct {
	Type     string            `json:"type"` // "folder" or "file"
	Name     string            `json:"name"`
	Title    string            `json:"title"`
	Children []*NavigationNode `json:"children,omitempty"`
	Slug     string            `json:"slug,omitempty"`
	Path     string            `json:"path,omitempty"`
}
