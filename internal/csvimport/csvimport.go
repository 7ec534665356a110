// Package csvimport converts user-uploaded CSV files into bounty records.
// It tolerates varying column naming conventions by reconciling headers
// against a fixed synonym table, with a substring fallback.
package csvimport

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Record is one accepted CSV row mapped onto bounty fields.
type Record struct {
	Title        string
	Value        *float64
	Source       string
	SourceURL    string
	Repo         string
	Org          string
	Labels       []string
	Technologies []string
	Status       string
	CreatedAt    string
}

// Result carries accepted records plus human-readable skip reasons.
type Result struct {
	Records []Record
	Errors  []string
}

// Synonym priority lists per target field. Tried in order for an exact
// header match before the substring fallback.
var fieldSynonyms = map[string][]string{
	"title":        {"title", "name", "bounty", "task", "issue", "summary"},
	"value":        {"value", "amount", "reward", "prize", "payout", "price", "usd"},
	"source":       {"source", "platform", "origin"},
	"sourceUrl":    {"source_url", "sourceurl", "url", "link", "href"},
	"repo":         {"repo", "repository", "project"},
	"org":          {"org", "organization", "owner", "company"},
	"labels":       {"labels", "label", "tags", "tag", "categories", "category"},
	"technologies": {"technologies", "tech", "stack", "languages", "language", "skills"},
	"status":       {"status", "state", "stage"},
	"createdAt":    {"created_at", "createdat", "created", "date", "posted"},
}

var moneyPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d{2})?`)

// row preserves the header order of the source file so the substring
// fallback's tie-break is deterministic.
type row struct {
	keys   []string
	values map[string]string
}

func (r row) lookup(field string) (string, bool) {
	syns := fieldSynonyms[field]
	for _, syn := range syns {
		if v, ok := r.values[syn]; ok {
			return v, true
		}
	}
	// Fallback: first row key (in header order) with a substring
	// relationship to any synonym wins. Ambiguous headers resolve by
	// file column order.
	for _, key := range r.keys {
		for _, syn := range syns {
			if strings.Contains(key, syn) || strings.Contains(syn, key) {
				return r.values[key], true
			}
		}
	}
	return "", false
}

// Parse maps raw CSV text to bounty records. It is a pure function of its
// input: same text, same output.
func Parse(text string) Result {
	res := Result{Records: []Record{}, Errors: []string{}}
	lines := splitLines(text)
	if len(lines) < 2 {
		res.Errors = append(res.Errors, "file is empty or missing data rows")
		return res
	}
	rawHeader := tokenize(lines[0])
	header := make([]string, len(rawHeader))
	for i, h := range rawHeader {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}
	for i, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := tokenize(line)
		r := row{values: map[string]string{}}
		for j, key := range header {
			if key == "" {
				continue
			}
			val := ""
			if j < len(fields) {
				val = strings.TrimSpace(fields[j])
			}
			if _, seen := r.values[key]; !seen {
				r.keys = append(r.keys, key)
			}
			r.values[key] = val
		}
		rec, err := buildRecord(r)
		if err != nil {
			// +2 accounts for the header row and zero-based index.
			res.Errors = append(res.Errors, fmt.Sprintf("line %d: %s", i+2, err))
			continue
		}
		res.Records = append(res.Records, rec)
	}
	return res
}

func buildRecord(r row) (Record, error) {
	title, ok := r.lookup("title")
	if !ok || strings.TrimSpace(title) == "" {
		return Record{}, fmt.Errorf("no title column resolved")
	}
	rec := Record{Title: strings.TrimSpace(title)}
	if raw, ok := r.lookup("value"); ok {
		rec.Value = ParseMoney(raw)
	}
	rec.Source, _ = r.lookup("source")
	rec.SourceURL, _ = r.lookup("sourceUrl")
	rec.Repo, _ = r.lookup("repo")
	rec.Org, _ = r.lookup("org")
	if raw, ok := r.lookup("labels"); ok {
		rec.Labels = SplitMulti(raw)
	}
	if raw, ok := r.lookup("technologies"); ok {
		rec.Technologies = SplitMulti(raw)
	}
	rec.Status, _ = r.lookup("status")
	rec.CreatedAt, _ = r.lookup("createdAt")
	return rec, nil
}

// ParseMoney extracts a numeric value from text like "$1,234.50".
// Returns nil when no parsable amount is present.
func ParseMoney(raw string) *float64 {
	match := moneyPattern.FindString(raw)
	if match == "" {
		return nil
	}
	cleaned := strings.ReplaceAll(match, ",", "")
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// SplitMulti splits a multi-value field on comma, semicolon, or pipe,
// trimming tokens and dropping empties and duplicates.
func SplitMulti(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	})
	var out []string
	seen := map[string]bool{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// tokenize splits one CSV line on commas, honoring double-quote state.
// A doubled quote inside a quoted field is a literal quote (RFC4180-lite).
func tokenize(line string) []string {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
	)
	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if quoted && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
				continue
			}
			quoted = !quoted
		case ch == ',' && !quoted:
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, current.String())
	return fields
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimRight(text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Template is the downloadable example CSV served by the import endpoint.
const Template = `title,reward,source,url,repo,org,labels,technologies,status,created_at
"Fix race in session store",$250.00,github,https://github.com/acme/api/issues/41,acme/api,acme,"bug, concurrency","go,sqlite",open,2026-01-10
"Dark mode for dashboard","$1,000.00",algora,https://algora.io/acme/bounties/7,acme/web,acme,feature|ui,"typescript;react",open,2026-01-12
"Write importer docs",$75,github,https://github.com/acme/docs/issues/3,acme/docs,acme,docs,markdown,open,2026-01-15
`
