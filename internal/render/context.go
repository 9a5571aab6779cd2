package render

import (
	"html/template"

	"github.com/thypress/thypress/internal/content"
)

// PageType discriminates what a render call is producing.
type PageType string

const (
	PageEntry    PageType = "entry"
	PageIndex    PageType = "index"
	PageTag      PageType = "tag"
	PageCategory PageType = "category"
	PageSeries   PageType = "series"
	PageNotFound PageType = "404"
)

// ContextBuilder assembles the single map supplied to every template. The
// recognized keys form a closed set; entry front matter flows through as
// pass-through extras on the entry map.
type ContextBuilder struct {
	// Site is the merged config map (recognized options plus extras).
	Site map[string]interface{}
	// ThemeMeta is the active theme's metadata, exposed as "theme".
	ThemeMeta interface{}
	// Store supplies navigation, neighbors and related entries.
	Store *content.Store
	// AssetURLs maps canonical asset URLs to their served (possibly
	// fingerprinted) URLs, exposed as "assets".
	AssetURLs map[string]string
}

// Base returns the keys present for every page type.
func (b *ContextBuilder) Base(pageType PageType) map[string]interface{} {
	return map[string]interface{}{
		"config":     b.Site,
		"theme":      b.ThemeMeta,
		"navigation": b.Store.Navigation(),
		"assets":     b.AssetURLs,
		"pageType":   string(pageType),
	}
}

// Entry builds the context for a single-entry page.
func (b *ContextBuilder) Entry(entry *content.Entry) map[string]interface{} {
	ctx := b.Base(PageEntry)
	prev, next := b.Store.Neighbors(entry.Slug)

	ctx["entry"] = EntryMap(entry)
	if prev != nil {
		ctx["prevEntry"] = EntryMap(prev)
	}
	if next != nil {
		ctx["nextEntry"] = EntryMap(next)
	}

	related := b.Store.Related(entry, 3)
	relatedMaps := make([]map[string]interface{}, 0, len(related))
	for _, r := range related {
		relatedMaps = append(relatedMaps, EntryMap(r))
	}
	ctx["relatedEntries"] = relatedMaps

	ctx["toc"] = entry.TOC
	ctx["hasToc"] = len(entry.TOC) > 0
	return ctx
}

// Index builds the context for one page of the chronological entry list.
func (b *ContextBuilder) Index(entries []*content.Entry, page int) map[string]interface{} {
	ctx := b.Base(PageIndex)
	start, end := PageSlice(len(entries), page)
	ctx["entries"] = entryMaps(entries[start:end])
	ctx["pagination"] = Paginate(len(entries), page)
	ctx["hasEntriesList"] = true
	return ctx
}

// Taxonomy builds the context for a tag, category or series listing.
func (b *ContextBuilder) Taxonomy(pageType PageType, term string, entries []*content.Entry) map[string]interface{} {
	ctx := b.Base(pageType)
	ctx["entries"] = entryMaps(entries)
	ctx["hasEntriesList"] = true
	ctx[string(pageType)] = term
	return ctx
}

// NotFound builds the context for the 404 page.
func (b *ContextBuilder) NotFound() map[string]interface{} {
	return b.Base(PageNotFound)
}

// EntryMap flattens an entry for template access: derived fields under
// their documented names, with every front matter key merged in unless it
// would shadow a derived field.
func EntryMap(e *content.Entry) map[string]interface{} {
	m := map[string]interface{}{
		"slug":        e.Slug,
		"url":         e.URL,
		"type":        string(e.Type),
		"title":       e.Title,
		"createdAt":   e.CreatedAt,
		"updatedAt":   e.UpdatedAt,
		"tags":        e.Tags,
		"categories":  e.Categories,
		"series":      e.Series,
		"description": e.Description,
		"rendered":    template.HTML(e.Rendered),
		"wordCount":   e.WordCount,
		"readingTime": e.ReadingTime,
		"section":     e.Section,
		"ogImage":     e.OGImage(),
	}
	for k, v := range e.FrontMatter {
		if _, taken := m[k]; !taken {
			m[k] = v
		}
	}
	return m
}

func entryMaps(entries []*content.Entry) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, EntryMap(e))
	}
	return out
}
