// Package redirect loads the redirects file and matches request paths
// against exact and parameterized rules.
package redirect

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/thypress/thypress/internal/config"
)

// Rule is one redirect: from pattern, destination, and HTTP status.
// Dynamic :name segments in from match a single path segment and may be
// substituted into to.
type Rule struct {
	From       string `json:"from"`
	To         string `json:"to"`
	StatusCode int    `json:"statusCode"`

	pattern *regexp.Regexp
	params  []string
}

// allowedStatus holds the accepted redirect status codes.
var allowedStatus = map[int]bool{301: true, 302: true, 303: true, 307: true, 308: true}

var paramSegment = regexp.MustCompile(`^:([A-Za-z_][A-Za-z0-9_]*)$`)

// Table holds compiled rules: an exact map consulted first, then
// parameterized rules scanned in file order.
type Table struct {
	exact  map[string]*Rule
	params []*Rule
}

// Match is the outcome of a table lookup.
type Match struct {
	Location   string
	StatusCode int
	Rule       *Rule
}

// rawRule accepts both file shapes: "from": "to" and
// "from": {"to": ..., "statusCode": ...}.
type rawRule struct {
	To         string `json:"to"`
	StatusCode int    `json:"statusCode"`
}

func (r *rawRule) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.To)
	}
	type alias rawRule
	return json.Unmarshal(data, (*alias)(r))
}

// Load reads the redirects file. A missing file yields an empty table;
// malformed JSON is an error. Rules with unknown status codes are
// dropped with a problem note rather than failing the load.
func Load(path string) (*Table, []string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewTable(nil), nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return Parse(data)
}

// Parse builds a table from redirects-file JSON. The returned problems
// list names dropped or suspicious rules; the table carries the rest.
func Parse(data []byte) (*Table, []string, error) {
	var raw map[string]rawRule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("redirects file: %w", err)
	}

	// File order is lost in a JSON object; sort for a deterministic
	// parameterized scan order.
	froms := make([]string, 0, len(raw))
	for from := range raw {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	var rules []Rule
	var problems []string
	for _, from := range froms {
		entry := raw[from]
		status := entry.StatusCode
		if status == 0 {
			status = 301
		}
		if !allowedStatus[status] {
			problems = append(problems, fmt.Sprintf("%s: unsupported status code %d, rule dropped", from, status))
			continue
		}
		if entry.To == "" {
			problems = append(problems, fmt.Sprintf("%s: empty destination, rule dropped", from))
			continue
		}
		rules = append(rules, Rule{From: from, To: entry.To, StatusCode: status})
	}

	table := NewTable(rules)
	problems = append(problems, table.lint()...)
	return table, problems, nil
}

// NewTable compiles rules into exact and parameterized buckets.
func NewTable(rules []Rule) *Table {
	t := &Table{exact: make(map[string]*Rule)}
	for i := range rules {
		rule := &rules[i]
		if !strings.Contains(rule.From, ":") {
			t.exact[rule.From] = rule
			continue
		}
		if err := rule.compile(); err != nil {
			continue
		}
		t.params = append(t.params, rule)
	}
	return t
}

func (r *Rule) compile() error {
	segments := strings.Split(r.From, "/")
	var b strings.Builder
	b.WriteString("^")
	r.params = nil
	for i, segment := range segments {
		if i > 0 {
			b.WriteString("/")
		}
		if m := paramSegment.FindStringSubmatch(segment); m != nil {
			r.params = append(r.params, m[1])
			b.WriteString("([^/]+)")
			continue
		}
		b.WriteString(regexp.QuoteMeta(segment))
	}
	b.WriteString("$")
	pattern, err := regexp.Compile(b.String())
	if err != nil {
		return err
	}
	r.pattern = pattern
	return nil
}

// Lookup matches a request path: exact rules first, then parameterized
// rules in order with :name substitution into the destination.
func (t *Table) Lookup(path string) (Match, bool) {
	if rule, ok := t.exact[path]; ok {
		return Match{Location: rule.To, StatusCode: rule.StatusCode, Rule: rule}, true
	}
	for _, rule := range t.params {
		m := rule.pattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		location := rule.To
		for i, name := range rule.params {
			location = strings.ReplaceAll(location, ":"+name, m[i+1])
		}
		return Match{Location: location, StatusCode: rule.StatusCode, Rule: rule}, true
	}
	return Match{}, false
}

// Rules returns every rule in lookup order: exact (sorted) then
// parameterized.
func (t *Table) Rules() []Rule {
	froms := make([]string, 0, len(t.exact))
	for from := range t.exact {
		froms = append(froms, from)
	}
	sort.Strings(froms)
	out := make([]Rule, 0, len(t.exact)+len(t.params))
	for _, from := range froms {
		out = append(out, *t.exact[from])
	}
	for _, rule := range t.params {
		out = append(out, *rule)
	}
	return out
}

// Len reports the number of active rules.
func (t *Table) Len() int {
	return len(t.exact) + len(t.params)
}

// AllowExternal decides whether an absolute destination may be served,
// per the external-redirect settings. Relative destinations always pass.
func AllowExternal(site *config.Site, location string) (bool, string) {
	u, err := url.Parse(location)
	if err != nil {
		return false, "unparseable destination"
	}
	if u.Host == "" && u.Scheme == "" {
		return true, ""
	}
	if !site.AllowExternalRedirects {
		return false, "external redirects are disabled"
	}
	if len(site.AllowedRedirectDomains) == 0 {
		return true, ""
	}
	host := u.Hostname()
	for _, domain := range site.AllowedRedirectDomains {
		if strings.EqualFold(host, domain) || strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(domain)) {
			return true, ""
		}
	}
	return false, fmt.Sprintf("domain %s is not in allowedRedirectDomains", host)
}

// lint flags loops and chains among exact rules.
func (t *Table) lint() []string {
	var problems []string
	for from, rule := range t.exact {
		if rule.To == from {
			problems = append(problems, fmt.Sprintf("%s: redirect loop (points at itself)", from))
			continue
		}
		if next, ok := t.exact[rule.To]; ok {
			if next.To == from {
				problems = append(problems, fmt.Sprintf("%s: redirect loop via %s", from, rule.To))
			} else {
				problems = append(problems, fmt.Sprintf("%s: redirect chain via %s, consider pointing directly at %s", from, rule.To, next.To))
			}
		}
	}
	sort.Strings(problems)
	return problems
}
