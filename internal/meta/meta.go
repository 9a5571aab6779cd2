// Package meta generates the site-wide documents: search index, RSS
// feed, sitemap, robots.txt, and llms.txt.
package meta

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/feeds"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/content"
)

// Artifact names used as cache keys and request paths.
const (
	NameSearch  = "search.json"
	NameRSS     = "rss.xml"
	NameSitemap = "sitemap.xml"
	NameRobots  = "robots.txt"
	NameLLMs    = "llms.txt"
)

// Generator builds meta documents from the entry store.
type Generator struct {
	site  *config.Site
	store *content.Store
}

// NewGenerator creates a meta document generator.
func NewGenerator(site *config.Site, store *content.Store) *Generator {
	return &Generator{site: site, store: store}
}

// searchRecord is one entry in the client-side search index.
type searchRecord struct {
	Slug        string   `json:"slug"`
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Section     string   `json:"section,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
}

// SearchIndex renders search.json: every entry's routable metadata,
// newest first.
func (g *Generator) SearchIndex() ([]byte, error) {
	entries := g.store.Sorted()
	records := make([]searchRecord, 0, len(entries))
	for _, e := range entries {
		rec := searchRecord{
			Slug:        e.Slug,
			URL:         e.URL,
			Title:       e.Title,
			Description: e.Description,
			Tags:        e.Tags,
			Categories:  e.Categories,
			Section:     e.Section,
		}
		if !e.CreatedAt.IsZero() {
			rec.CreatedAt = e.CreatedAt.Format(time.RFC3339)
		}
		records = append(records, rec)
	}
	return json.MarshalIndent(records, "", "  ")
}

// maxFeedItems caps the RSS feed length.
const maxFeedItems = 20

// RSS renders rss.xml for the newest entries.
func (g *Generator) RSS() ([]byte, error) {
	feed := &feeds.Feed{
		Title:       g.site.Title,
		Link:        &feeds.Link{Href: g.absolute("/")},
		Description: g.site.Description,
		Updated:     time.Now(),
	}
	if g.site.Author != "" {
		feed.Author = &feeds.Author{Name: g.site.Author}
	}

	for i, e := range g.store.Sorted() {
		if i >= maxFeedItems {
			break
		}
		item := &feeds.Item{
			Title:       e.Title,
			Link:        &feeds.Link{Href: g.absolute(e.URL)},
			Id:          g.absolute(e.URL),
			Description: e.Description,
			Created:     e.CreatedAt,
			Updated:     e.UpdatedAt,
		}
		feed.Items = append(feed.Items, item)
	}

	out, err := feed.ToRss()
	if err != nil {
		return nil, fmt.Errorf("rss: %w", err)
	}
	return []byte(out), nil
}

// sitemap XML shapes per the sitemaps.org schema.
type urlSet struct {
	XMLName xml.Name     `xml:"urlset"`
	XMLNS   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// Sitemap renders sitemap.xml with per-entry freshness stamps.
func (g *Generator) Sitemap() ([]byte, error) {
	set := urlSet{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	set.URLs = append(set.URLs, sitemapURL{Loc: g.absolute("/")})
	for _, e := range g.store.Sorted() {
		u := sitemapURL{Loc: g.absolute(e.URL)}
		if !e.UpdatedAt.IsZero() {
			u.LastMod = e.UpdatedAt.Format("2006-01-02")
		} else if !e.CreatedAt.IsZero() {
			u.LastMod = e.CreatedAt.Format("2006-01-02")
		}
		set.URLs = append(set.URLs, u)
	}

	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("sitemap: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// Robots renders robots.txt pointing crawlers at the sitemap.
func (g *Generator) Robots() []byte {
	var b strings.Builder
	b.WriteString("User-agent: *\n")
	b.WriteString("Allow: /\n")
	if g.site.URL != "" {
		fmt.Fprintf(&b, "\nSitemap: %s\n", g.absolute("/"+NameSitemap))
	}
	return []byte(b.String())
}

// LLMs renders llms.txt: a plain-text site outline for language-model
// crawlers, one entry per line grouped by section.
func (g *Generator) LLMs() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", g.site.Title)
	if g.site.Description != "" {
		fmt.Fprintf(&b, "\n> %s\n", g.site.Description)
	}

	bySection := make(map[string][]*content.Entry)
	var order []string
	for _, e := range g.store.Sorted() {
		section := e.Section
		if section == "" {
			section = "Pages"
		}
		if _, seen := bySection[section]; !seen {
			order = append(order, section)
		}
		bySection[section] = append(bySection[section], e)
	}

	for _, section := range order {
		fmt.Fprintf(&b, "\n## %s\n\n", section)
		for _, e := range bySection[section] {
			if e.Description != "" {
				fmt.Fprintf(&b, "- [%s](%s): %s\n", e.Title, g.absolute(e.URL), e.Description)
			} else {
				fmt.Fprintf(&b, "- [%s](%s)\n", e.Title, g.absolute(e.URL))
			}
		}
	}
	return []byte(b.String())
}

// MIMEFor maps an artifact name to its content type.
func MIMEFor(name string) string {
	switch name {
	case NameSearch:
		return "application/json; charset=utf-8"
	case NameRSS:
		return "application/rss+xml; charset=utf-8"
	case NameSitemap:
		return "application/xml; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

func (g *Generator) absolute(path string) string {
	base := strings.TrimSuffix(g.site.URL, "/")
	if base == "" {
		return path
	}
	return base + path
}
