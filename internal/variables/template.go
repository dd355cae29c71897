// Package variables implements template parsing and resolution for
// component variables and trigger config: `"prefix {{ key }} suffix"`
// strings that are expanded against a per-component scope, a provider
// chain, and app-level defaults, in that lookup order.
package variables

import (
	"fmt"
	"strings"
)

// partKind distinguishes a literal run of text from a `{{ expr }}` hole.
type partKind int

const (
	partLit partKind = iota
	partExpr
)

type part struct {
	kind partKind
	text string // literal text, or the original (untrimmed) expr source
	key  string // expr only: the trimmed key name used for lookup
}

// Template is a parsed value: a sequence of literal and expression parts.
type Template struct {
	parts []part
}

// Display renders the template back to its original source string. Used
// by the round-trip property test (spec.md §8): parse(t) then display
// must reproduce t exactly.
func (t Template) Display() string {
	var b strings.Builder
	for _, p := range t.parts {
		if p.kind == partLit {
			b.WriteString(p.text)
		} else {
			b.WriteString("{{")
			b.WriteString(p.text)
			b.WriteString("}}")
		}
	}
	return b.String()
}

// ParseTemplate scans s left to right emitting literal and expression
// parts. An unmatched "{{" (no closing "}}") is a syntax error.
func ParseTemplate(s string) (Template, error) {
	var parts []part
	i := 0
	for i < len(s) {
		start := strings.Index(s[i:], "{{")
		if start < 0 {
			parts = append(parts, part{kind: partLit, text: s[i:]})
			break
		}
		start += i
		if start > i {
			parts = append(parts, part{kind: partLit, text: s[i:start]})
		}
		end := strings.Index(s[start:], "}}")
		if end < 0 {
			return Template{}, fmt.Errorf("unmatched '{{' at byte offset %d", start)
		}
		end += start
		raw := s[start+2 : end]
		key := strings.TrimSpace(raw)
		if key == "" {
			return Template{}, fmt.Errorf("empty expression at byte offset %d", start)
		}
		parts = append(parts, part{kind: partExpr, text: raw, key: key})
		i = end + 2
	}
	return Template{parts: parts}, nil
}
