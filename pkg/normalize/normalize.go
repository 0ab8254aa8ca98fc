// Package normalize renders upstream records into bounded, stable text blocks.
//
// Rendering is a pure function of the records and the rules: field order is
// preserved, absent values become an explicit placeholder, long values are cut
// to an excerpt, and an empty record list yields a fixed "no results" message.
package normalize

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Field is one labelled value of a record. Values are rendered as-is unless
// Excerpt is set, in which case they are truncated to Rules.ExcerptLength.
type Field struct {
	Label   string
	Value   string
	Excerpt bool
}

// Record is an ordered list of fields describing one upstream item.
type Record []Field

// Add appends a plain field.
func (r Record) Add(label, value string) Record {
	return append(r, Field{Label: label, Value: value})
}

// AddList appends a field whose value is the comma-joined non-empty items.
func (r Record) AddList(label string, items []string) Record {
	return append(r, Field{Label: label, Value: JoinList(items)})
}

// AddExcerpt appends a field that is truncated to the excerpt length.
func (r Record) AddExcerpt(label, value string) Record {
	return append(r, Field{Label: label, Value: value, Excerpt: true})
}

// Rules control rendering.
type Rules struct {
	Placeholder   string
	ExcerptLength int
	EmptyMessage  string
	Separator     string
}

// DefaultRules returns the rules used by every broker unless configured otherwise.
func DefaultRules() Rules {
	return Rules{
		Placeholder:   "Not available",
		ExcerptLength: 500,
		EmptyMessage:  "No results found.",
		Separator:     "\n\n---\n\n",
	}
}

// WithExcerptLength returns a copy of r with a different excerpt length.
func (r Rules) WithExcerptLength(n int) Rules {
	if n > 0 {
		r.ExcerptLength = n
	}
	return r
}

// WithEmptyMessage returns a copy of r with a different zero-results message.
func (r Rules) WithEmptyMessage(msg string) Rules {
	if msg != "" {
		r.EmptyMessage = msg
	}
	return r
}

// List renders records one after another in arrival order. A non-empty footer
// (pagination hints) is appended after the last record. Zero records render
// as the rules' EmptyMessage.
func List(records []Record, rules Rules, footer string) string {
	rules = rules.withDefaults()
	if len(records) == 0 {
		return rules.EmptyMessage
	}
	blocks := make([]string, 0, len(records))
	for _, rec := range records {
		blocks = append(blocks, render(rec, rules, "\n"))
	}
	out := strings.Join(blocks, rules.Separator)
	if footer = strings.TrimSpace(footer); footer != "" {
		out += "\n\n" + footer
	}
	return out
}

// Detail renders a single record with blank lines between fields.
func Detail(rec Record, rules Rules) string {
	rules = rules.withDefaults()
	return render(rec, rules, "\n\n")
}

func render(rec Record, rules Rules, sep string) string {
	lines := make([]string, 0, len(rec))
	for _, f := range rec {
		value := PlainText(f.Value)
		if value == "" {
			value = rules.Placeholder
		} else if f.Excerpt {
			value = Truncate(value, rules.ExcerptLength)
		}
		lines = append(lines, fmt.Sprintf("%s: %s", f.Label, value))
	}
	return strings.Join(lines, sep)
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.Placeholder == "" {
		r.Placeholder = d.Placeholder
	}
	if r.ExcerptLength <= 0 {
		r.ExcerptLength = d.ExcerptLength
	}
	if r.EmptyMessage == "" {
		r.EmptyMessage = d.EmptyMessage
	}
	if r.Separator == "" {
		r.Separator = d.Separator
	}
	return r
}

const ellipsis = "..."

// Truncate cuts s to at most n runes. The "..." marking the cut counts
// towards n; when n is too small to hold it the text is cut bare.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	if n <= len(ellipsis) {
		return string(runes[:n])
	}
	cut := strings.TrimRightFunc(string(runes[:n-len(ellipsis)]), func(r rune) bool { return r == ' ' || r == ',' || r == ';' })
	return cut + ellipsis
}

// JoinList joins the non-blank items with ", ".
func JoinList(items []string) string {
	kept := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	return strings.Join(kept, ", ")
}
