package manifest

import (
	"fmt"
	"strings"
)

// ID is a validated identifier used for component ids, trigger ids, and
// variable/store labels. Components and triggers use kebab-case
// ("-"-separated words); variable and store labels use snake_case
// ("_"-separated words). Both share the same shape rule: non-empty,
// ASCII alphanumeric words, first character of the identifier alphabetic,
// case-consistent within each word.
type ID string

// IDKind selects the separator rule an ID is checked against.
type IDKind int

const (
	// KebabCase is used by component ids and trigger ids.
	KebabCase IDKind = iota
	// SnakeCase is used by variable names and store/database labels.
	SnakeCase
)

func (k IDKind) separator() byte {
	if k == SnakeCase {
		return '_'
	}
	return '-'
}

func (k IDKind) name() string {
	if k == SnakeCase {
		return "snake_case"
	}
	return "kebab-case"
}

// ValidateID checks s against the identifier shape rule for kind and
// returns a descriptive error naming the violation if it fails.
func ValidateID(s string, kind IDKind) error {
	if s == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	sep := kind.separator()
	words := strings.Split(s, string(sep))
	for i, w := range words {
		if w == "" {
			return fmt.Errorf("identifier %q has an empty %s word (kind %s)", s, wordOrdinal(i), kind.name())
		}
		if i == 0 && !isAlpha(w[0]) {
			return fmt.Errorf("identifier %q must start with a letter", s)
		}
		upper := isUpperWord(w)
		lower := isLowerWord(w)
		if !upper && !lower {
			return fmt.Errorf("identifier %q word %q mixes case or contains a non-alphanumeric character", s, w)
		}
		for _, c := range []byte(w) {
			if !isAlphaNumeric(c) {
				return fmt.Errorf("identifier %q contains invalid character %q", s, string(c))
			}
		}
	}
	return nil
}

func wordOrdinal(i int) string {
	if i == 0 {
		return "leading"
	}
	return "trailing"
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isAlphaNumeric(c byte) bool {
	return isAlpha(c) || (c >= '0' && c <= '9')
}

func isUpperWord(w string) bool {
	for i := 0; i < len(w); i++ {
		c := w[i]
		if c >= 'a' && c <= 'z' {
			return false
		}
	}
	return true
}

func isLowerWord(w string) bool {
	for i := 0; i < len(w); i++ {
		c := w[i]
		if c >= 'A' && c <= 'Z' {
			return false
		}
	}
	return true
}

// NewComponentID validates s as a kebab-case component/trigger id.
func NewComponentID(s string) (ID, error) {
	if err := ValidateID(s, KebabCase); err != nil {
		return "", err
	}
	return ID(s), nil
}

// NewLabel validates s as a snake_case variable or store label.
func NewLabel(s string) (ID, error) {
	if err := ValidateID(s, SnakeCase); err != nil {
		return "", err
	}
	return ID(s), nil
}
