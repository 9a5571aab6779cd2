package content

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// rewriteResult is what a single pass over a rendered HTML fragment yields:
// the mutated markup plus everything the pipeline extracts along the way.
type rewriteResult struct {
	HTML      string
	TOC       []*TOCNode
	FirstH1   string
	ImageRefs []ImageRef
	Broken    []string // unresolvable image srcs
	WordCount int
}

var fullDocumentPattern = regexp.MustCompile(`(?i)<html[\s>]`)

// IsFullDocument reports whether raw HTML carries a top-level <html>
// element and should be served verbatim.
func IsFullDocument(raw []byte) bool {
	return fullDocumentPattern.Match(raw)
}

// rewriteFragment parses an HTML body fragment, assigns anchor ids to
// H1-H4 headings, collects the H2-H4 table of contents in source order,
// rewrites <img> tags into responsive <picture> elements and counts words.
func rewriteFragment(fragment, contentRoot, entryPath string, dims *DimensionCache) (*rewriteResult, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing fragment: %w", err)
	}

	// Reparent the fragment under a container so image replacement works
	// uniformly, including for top-level nodes.
	container := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	for _, n := range nodes {
		container.AppendChild(n)
	}

	res := &rewriteResult{}
	var flat []*TOCNode
	seenIDs := make(map[string]int)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			res.WordCount += len(strings.Fields(n.Data))
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.H1, atom.H2, atom.H3, atom.H4:
				text := textContent(n)
				id := uniqueAnchor(AnchorID(text), seenIDs)
				setAttr(n, "id", id)
				if n.DataAtom == atom.H1 {
					if res.FirstH1 == "" {
						res.FirstH1 = text
					}
				} else {
					flat = append(flat, &TOCNode{Level: headingLevel(n.DataAtom), ID: id, Text: text})
				}
			case atom.Img:
				replaceImage(n, contentRoot, entryPath, dims, res)
				return
			}
		}
		// Capture siblings up front: replaceImage detaches the current
		// node, which would otherwise cut the iteration short.
		for c := n.FirstChild; c != nil; {
			next := c.NextSibling
			walk(c)
			c = next
		}
	}
	walk(container)

	var buf bytes.Buffer
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return nil, fmt.Errorf("rendering fragment: %w", err)
		}
	}
	res.HTML = buf.String()
	res.TOC = nestTOC(flat)
	return res, nil
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	default:
		return 4
	}
}

func uniqueAnchor(id string, seen map[string]int) string {
	if id == "" {
		id = "section"
	}
	n := seen[id]
	seen[id] = n + 1
	if n == 0 {
		return id
	}
	return fmt.Sprintf("%s-%d", id, n)
}

// nestTOC converts the flat source-order heading list into a tree nested
// by level.
func nestTOC(flat []*TOCNode) []*TOCNode {
	var roots []*TOCNode
	var stack []*TOCNode
	for _, node := range flat {
		for len(stack) > 0 && stack[len(stack)-1].Level >= node.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, node)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, node)
		}
		stack = append(stack, node)
	}
	return roots
}

// replaceImage swaps an <img> node for a responsive <picture> referencing
// the optimizer's variant files. Images that cannot be resolved on disk are
// recorded as broken and left untouched.
func replaceImage(n *html.Node, contentRoot, entryPath string, dims *DimensionCache, res *rewriteResult) {
	src := getAttr(n, "src")
	resolved, ok := ResolveImagePath(contentRoot, entryPath, src)
	if !ok {
		// Remote and data URLs pass through unchanged.
		return
	}
	if _, err := os.Stat(resolved); err != nil {
		res.Broken = append(res.Broken, src)
		return
	}

	width, _ := dims.Width(resolved)
	ref := NewImageRef(resolved, width)
	res.ImageRefs = append(res.ImageRefs, ref)

	sizes := SortedSizes(ref.Sizes)
	webpSet := make([]string, 0, len(sizes))
	jpgSet := make([]string, 0, len(sizes))
	for _, s := range sizes {
		webpSet = append(webpSet, fmt.Sprintf("%s %dw", ref.VariantURL(s, "webp"), s))
		jpgSet = append(jpgSet, fmt.Sprintf("%s %dw", ref.VariantURL(s, "jpg"), s))
	}
	fallback := sizes[len(sizes)/2]

	picture := &html.Node{Type: html.ElementNode, Data: "picture", DataAtom: atom.Picture}
	source := &html.Node{
		Type:     html.ElementNode,
		Data:     "source",
		DataAtom: atom.Source,
		Attr: []html.Attribute{
			{Key: "type", Val: "image/webp"},
			{Key: "srcset", Val: strings.Join(webpSet, ", ")},
		},
	}
	img := &html.Node{
		Type:     html.ElementNode,
		Data:     "img",
		DataAtom: atom.Img,
		Attr: []html.Attribute{
			{Key: "src", Val: ref.VariantURL(fallback, "jpg")},
			{Key: "srcset", Val: strings.Join(jpgSet, ", ")},
			{Key: "loading", Val: "lazy"},
			{Key: "decoding", Val: "async"},
		},
	}
	if alt := getAttr(n, "alt"); alt != "" {
		img.Attr = append(img.Attr, html.Attribute{Key: "alt", Val: alt})
	}
	if title := getAttr(n, "title"); title != "" {
		img.Attr = append(img.Attr, html.Attribute{Key: "title", Val: title})
	}
	if width > 0 {
		img.Attr = append(img.Attr, html.Attribute{Key: "width", Val: fmt.Sprintf("%d", width)})
	}

	picture.AppendChild(source)
	picture.AppendChild(img)
	n.Parent.InsertBefore(picture, n)
	n.Parent.RemoveChild(n)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
