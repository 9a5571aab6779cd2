package watcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thypress/thypress/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LevelError,
		Format: "json",
		Output: io.Discard,
	})
}

func TestFilters(t *testing.T) {
	assert.True(t, NoHiddenFilter(filepath.FromSlash("content/posts/hello.md")))
	assert.False(t, NoHiddenFilter(filepath.FromSlash("content/.git/config")))
	assert.False(t, NoHiddenFilter(filepath.FromSlash("content/.hidden.md")))
	assert.True(t, NoHiddenFilter("."))

	assert.True(t, NoDraftsFilter(filepath.FromSlash("content/posts/hello.md")))
	assert.False(t, NoDraftsFilter(filepath.FromSlash("content/drafts/wip.md")))

	filter := SkipDirsFilter([]string{"node_modules", "vendor"})
	assert.True(t, filter(filepath.FromSlash("content/posts/hello.md")))
	assert.False(t, filter(filepath.FromSlash("content/node_modules/pkg/index.js")))
	assert.False(t, filter(filepath.FromSlash("vendor/lib.go")))
}

func TestDebouncerCoalescesByPath(t *testing.T) {
	d := &Debouncer{
		delay:   10 * time.Millisecond,
		events:  make(chan ChangeEvent, 256),
		output:  make(chan []ChangeEvent, 16),
		pending: make([]ChangeEvent, 0),
	}

	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "a.md"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "a.md"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "b.md"})

	select {
	case batch := <-d.output:
		require.Len(t, batch, 2)
		assert.Equal(t, "a.md", batch[0].Path)
		assert.Equal(t, EventTypeModified, batch[0].Type)
		assert.Equal(t, "b.md", batch[1].Path)
	case <-time.After(time.Second):
		t.Fatal("debounced batch never flushed")
	}
}

func TestWatcherDeliversBatches(t *testing.T) {
	root := t.TempDir()

	fw, err := NewFileWatcher(50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddFilter(NoHiddenFilter)
	batches := make(chan []ChangeEvent, 16)
	fw.AddHandler(func(events []ChangeEvent) error {
		batches <- events
		return nil
	})

	require.NoError(t, fw.AddPath(root))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "post.md"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".secret"), []byte("skip"), 0o644))

	select {
	case batch := <-batches:
		require.NotEmpty(t, batch)
		for _, ev := range batch {
			assert.Equal(t, "post.md", filepath.Base(ev.Path))
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no change batch delivered")
	}
}

func TestRootLossSignalsDead(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "content")
	require.NoError(t, os.MkdirAll(root, 0o755))

	fw, err := NewFileWatcher(50*time.Millisecond, testLogger())
	require.NoError(t, err)
	defer fw.Stop()

	require.NoError(t, fw.AddRecursive(root))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.RemoveAll(root))

	select {
	case err := <-fw.Dead():
		assert.Contains(t, err.Error(), "watched root lost")
	case <-time.After(3 * time.Second):
		t.Fatal("root removal never reported")
	}
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "modified", EventTypeModified.String())
	assert.Equal(t, "deleted", EventTypeDeleted.String())
	assert.Equal(t, "renamed", EventTypeRenamed.String())
}

func TestValidatePath(t *testing.T) {
	_, err := validatePath(filepath.FromSlash("../outside"))
	assert.Error(t, err)
	clean, err := validatePath(filepath.FromSlash("content//posts"))
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("content/posts"), clean)
}
