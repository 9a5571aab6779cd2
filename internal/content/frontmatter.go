package content

import (
	"bytes"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the parsed leading YAML block of a content or template
// file. Recognized keys are lifted into typed fields; the full map is kept
// in Raw for template passthrough.
type FrontMatter struct {
	Title       string
	CreatedAt   string
	UpdatedAt   string
	Date        string
	Tags        []string
	Categories  []string
	Series      string
	Description string
	Draft       bool
	Permalink   string
	Template    string
	Layout      string
	Partial     bool
	SingleFile  bool
	Handles     []string
	Image       string

	Raw map[string]interface{}
}

var frontMatterDelim = []byte("---")

// ParseFrontMatter splits data into its front matter and body. Files
// without a leading delimiter line have no front matter; a malformed YAML
// block is an error and the whole file is skipped by the pipeline.
func ParseFrontMatter(data []byte) (*FrontMatter, []byte, error) {
	fm := &FrontMatter{Raw: make(map[string]interface{})}

	if !bytes.HasPrefix(data, frontMatterDelim) {
		return fm, data, nil
	}
	rest := data[len(frontMatterDelim):]
	if len(rest) > 0 && rest[0] == '\r' {
		rest = rest[1:]
	}
	if len(rest) == 0 || rest[0] != '\n' {
		// A line like "---foo" is content, not a front matter fence.
		return fm, data, nil
	}
	rest = rest[1:]

	end := bytes.Index(rest, []byte("\n---"))
	if end < 0 {
		return nil, nil, fmt.Errorf("front matter not terminated")
	}
	block := rest[:end]
	body := rest[end+len("\n---"):]
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}

	raw := make(map[string]interface{})
	if err := yaml.Unmarshal(block, &raw); err != nil {
		return nil, nil, fmt.Errorf("parsing front matter: %w", err)
	}
	fm.Raw = raw

	fm.Title = rawString(raw, "title")
	fm.CreatedAt = rawString(raw, "createdAt")
	fm.UpdatedAt = rawString(raw, "updatedAt")
	fm.Date = rawString(raw, "date")
	fm.Tags = uniqueStrings(rawStrings(raw, "tags"))
	fm.Categories = uniqueStrings(rawStrings(raw, "categories"))
	fm.Series = rawString(raw, "series")
	fm.Description = rawString(raw, "description")
	fm.Draft = rawBool(raw, "draft")
	fm.Permalink = rawString(raw, "permalink")
	fm.Template = rawString(raw, "template")
	fm.Layout = rawString(raw, "layout")
	fm.Partial = rawBool(raw, "partial")
	fm.SingleFile = rawBool(raw, "singleFile")
	fm.Handles = rawStrings(raw, "handles")
	fm.Image = rawString(raw, "image")

	return fm, body, nil
}

// frontMatterDateLayouts are tried in order when parsing explicit dates.
var frontMatterDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate parses a front matter date value.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range frontMatterDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

func rawString(raw map[string]interface{}, key string) string {
	switch v := raw[key].(type) {
	case string:
		return v
	case time.Time:
		return v.Format(time.RFC3339)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

func rawBool(raw map[string]interface{}, key string) bool {
	b, _ := raw[key].(bool)
	return b
}

func rawStrings(raw map[string]interface{}, key string) []string {
	switch v := raw[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			} else if e != nil {
				out = append(out, fmt.Sprintf("%v", e))
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

// uniqueStrings drops duplicates preserving first-seen order; taxonomy
// sequences forbid duplicates.
func uniqueStrings(in []string) []string {
	if len(in) < 2 {
		return in
	}
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
