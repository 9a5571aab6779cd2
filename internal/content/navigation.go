package content

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// BuildNavigation walks the content root and produces the site menu tree.
// Folders precede files, alphabetical by name within each kind; file
// titles prefer the ingested entry's title over the filename.
func BuildNavigation(contentRoot string, store *Store) []*NavigationNode {
	return buildNavDir(contentRoot, contentRoot, store)
}

func buildNavDir(contentRoot, dir string, store *Store) []*NavigationNode {
	items, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var folders, files []*NavigationNode
	for _, item := range items {
		path := filepath.Join(dir, item.Name())
		if Ignored(contentRoot, path) {
			continue
		}

		if item.IsDir() {
			children := buildNavDir(contentRoot, path, store)
			if len(children) == 0 {
				continue
			}
			folders = append(folders, &NavigationNode{
				Type:     "folder",
				Name:     item.Name(),
				Title:    folderTitle(item.Name()),
				Children: children,
			})
			continue
		}

		if _, ok := typeForExt(filepath.Ext(item.Name())); !ok {
			continue
		}
		rel, err := filepath.Rel(contentRoot, path)
		if err != nil {
			continue
		}
		slug := SlugifyPath(strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel)))
		entry, ok := store.Get(slug)
		if !ok {
			// Drafts and skipped files do not appear in the menu.
			continue
		}
		files = append(files, &NavigationNode{
			Type:  "file",
			Name:  item.Name(),
			Title: entry.Title,
			Slug:  slug,
			Path:  entry.URL,
		})
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return append(folders, files...)
}

func folderTitle(name string) string {
	cleaned := strings.NewReplacer("-", " ", "_", " ").Replace(name)
	return strings.Join(strings.Fields(cleaned), " ")
}
