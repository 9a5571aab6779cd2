package content

import (
	"context"
	"os"
	"path/filepath"
)

// IngestAll walks the content root and ingests every supported file into
// the store. Per-file parse errors log and skip; duplicate URLs and
// strict-mode escalations abort.
func (p *Pipeline) IngestAll(ctx context.Context, store *Store) error {
	root := p.cfg.ContentRoot()
	skip := make(map[string]bool, len(p.cfg.Site.SkipDirs))
	for _, dir := range p.cfg.Site.SkipDirs {
		skip[dir] = true
	}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// A vanished or unreadable path never tears down ingestion.
			return nil
		}
		if info.IsDir() {
			if path != root && (Ignored(root, path) || skip[info.Name()]) {
				return filepath.SkipDir
			}
			return nil
		}
		if Ignored(root, path) {
			return nil
		}

		entry, perr := p.ProcessFile(path)
		if perr != nil {
			if _, strict := perr.(*BrokenImageError); strict {
				return perr
			}
			p.log.Warn(ctx, perr, "skipping file", "path", path)
			return nil
		}
		if entry == nil {
			return nil
		}
		if err := store.Put(entry); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	if store.NavigationStale() {
		hash := store.SlugHash()
		store.SetNavigation(BuildNavigation(root, store), hash)
	}
	return nil
}

// ImageRefsUnion returns the union of all current entries' image
// references, deduplicated by variant identity.
func ImageRefsUnion(store *Store) []ImageRef {
	seen := make(map[string]bool)
	var out []ImageRef
	for _, e := range store.Sorted() {
		for _, ref := range e.ImageRefs {
			key := ref.OutputKey + ":" + ref.Hash
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, ref)
		}
	}
	return out
}
