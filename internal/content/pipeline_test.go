package content

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "json",
		Output: io.Discard,
	})
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "content"), 0o755))
	return &config.Config{
		Root: root,
		Mode: config.ModeDynamic,
		Site: config.DefaultSite(),
	}
}

func writeContent(t *testing.T, cfg *config.Config, rel, body string) string {
	t.Helper()
	path := filepath.Join(cfg.ContentRoot(), filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestProcessFileMarkdown(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	path := writeContent(t, cfg, "posts/Hello World.md", `---
title: Hello
tags: [go]
date: 2024-05-01
---
# Hello

Some **markdown** content here.

## Section One

More words.
`)

	entry, err := p.ProcessFile(path)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, "posts/hello-world", entry.Slug)
	assert.Equal(t, "/posts/hello-world/", entry.URL)
	assert.Equal(t, "posts", entry.Section)
	assert.Equal(t, "Hello", entry.Title)
	assert.Equal(t, []string{"go"}, entry.Tags)
	assert.Contains(t, entry.Rendered, "<strong>markdown</strong>")
	assert.Equal(t, 2024, entry.CreatedAt.Year())
	assert.GreaterOrEqual(t, entry.ReadingTime, 1)

	// H2 headings land in the TOC with anchor ids.
	require.Len(t, entry.TOC, 1)
	assert.Equal(t, "Section One", entry.TOC[0].Text)
	assert.Equal(t, "section-one", entry.TOC[0].ID)
}

func TestProcessFileDraft(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	path := writeContent(t, cfg, "draft.md", "---\ndraft: true\n---\nhidden\n")

	entry, err := p.ProcessFile(path)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestProcessFileTitleFromH1(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	path := writeContent(t, cfg, "untitled.md", "# Heading Title\n\nbody\n")

	entry, err := p.ProcessFile(path)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "Heading Title", entry.Title)
}

func TestProcessFileTitleFromFilename(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	path := writeContent(t, cfg, "2024-05-01-my-first-post.md", "no heading\n")

	entry, err := p.ProcessFile(path)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "my first post", entry.Title, "date prefix stripped, separators spaced")
}

func TestProcessFilePlaintextEscaped(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	path := writeContent(t, cfg, "notes.txt", "a < b & c\n")

	entry, err := p.ProcessFile(path)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Contains(t, entry.Rendered, "&lt;")
	assert.Contains(t, entry.Rendered, "<pre>")
}

func TestProcessFileFullHTMLDocument(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	doc := "<html><head></head><body><p>standalone</p></body></html>"
	path := writeContent(t, cfg, "standalone.html", doc)

	entry, err := p.ProcessFile(path)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.HasFullDocument())
	assert.Equal(t, doc, entry.RenderedFull)
}

func TestProcessFilePermalinkOverride(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	path := writeContent(t, cfg, "about.md", "---\npermalink: /who-we-are/\n---\ncontent\n")

	entry, err := p.ProcessFile(path)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "/who-we-are/", entry.URL)
	assert.Equal(t, "about", entry.Slug)
}

func TestProcessFileUnsupportedExtension(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	path := writeContent(t, cfg, "image.png", "not really an image")

	entry, err := p.ProcessFile(path)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestIngestAll(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	writeContent(t, cfg, "one.md", "# One\n\nbody\n")
	writeContent(t, cfg, "two.md", "# Two\n\nbody\n")
	writeContent(t, cfg, "drafts/skipped.md", "# Hidden\n")
	writeContent(t, cfg, ".hidden/also-skipped.md", "# Hidden\n")

	store := NewStore()
	require.NoError(t, p.IngestAll(context.Background(), store))
	assert.Equal(t, 2, store.Len())

	_, ok := store.Get("one")
	assert.True(t, ok)
	nav := store.Navigation()
	assert.NotEmpty(t, nav)
}

func TestIngestAllReingestIdentical(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg, testLogger())
	path := writeContent(t, cfg, "stable.md", "# Stable\n\nsame bytes\n")

	first, err := p.ProcessFile(path)
	require.NoError(t, err)
	second, err := p.ProcessFile(path)
	require.NoError(t, err)
	assert.Equal(t, first.Rendered, second.Rendered, "unchanged input renders identically")
	assert.Equal(t, first.Slug, second.Slug)
}

func TestIgnored(t *testing.T) {
	root := "/site/content"
	assert.True(t, Ignored(root, "/site/content/.git/x.md"))
	assert.True(t, Ignored(root, "/site/content/drafts/wip.md"))
	assert.False(t, Ignored(root, "/site/content/posts/ok.md"))
}
