// Package field holds the presentation rules of the caption text field:
// schema limits on the value and the message shown when captioning fails.
package field

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/teranos/qntx-caption/errors"
)

// ErrorMessage is the user-visible text shown when a caption request fails.
// The underlying cause is logged, never displayed.
const ErrorMessage = "An error occurred when processing your request"

// Schema is the subset of a string field's JSON schema the field enforces.
type Schema struct {
	Title       string
	Description string
	MaxLength   int // 0 = unlimited
	MinLength   int // 0 = no minimum
	Pattern     *regexp.Regexp
}

// ViolationKind names a broken schema rule.
type ViolationKind string

const (
	ViolationMaxLength ViolationKind = "maxLength"
	ViolationMinLength ViolationKind = "minLength"
	ViolationPattern   ViolationKind = "pattern"
)

// Violation is one broken schema rule.
type Violation struct {
	Kind    ViolationKind
	Message string
}

// SchemaFromMap reads a field schema from a decoded JSON schema object.
// Numeric limits may be float64 (encoding/json) or integer types (YAML/TOML).
// An unparsable pattern is an error; Go regular expressions are RE2, so
// look-around and back-references are rejected.
func SchemaFromMap(m map[string]any) (Schema, error) {
	var s Schema
	s.Title, _ = m["title"].(string)
	s.Description, _ = m["description"].(string)
	s.MaxLength = toInt(m["maxLength"])
	s.MinLength = toInt(m["minLength"])

	if p, ok := m["pattern"].(string); ok && p != "" {
		re, err := regexp.Compile(p)
		if err != nil {
			return s, errors.Wrapf(err, "invalid pattern %q", p)
		}
		s.Pattern = re
	}
	return s, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	default:
		return 0
	}
}

// Validate checks value against the schema. An empty value is never invalid;
// required-ness is the host form's concern.
func (s Schema) Validate(value string) []Violation {
	if value == "" {
		return nil
	}

	var out []Violation
	n := utf8.RuneCountInString(value)
	if s.MaxLength > 0 && n > s.MaxLength {
		out = append(out, Violation{
			Kind:    ViolationMaxLength,
			Message: fmt.Sprintf("must be at most %d characters (got %d)", s.MaxLength, n),
		})
	}
	if s.MinLength > 0 && n < s.MinLength {
		out = append(out, Violation{
			Kind:    ViolationMinLength,
			Message: fmt.Sprintf("must be at least %d characters (got %d)", s.MinLength, n),
		})
	}
	if s.Pattern != nil && !s.Pattern.MatchString(value) {
		out = append(out, Violation{
			Kind:    ViolationPattern,
			Message: fmt.Sprintf("must match %s", s.Pattern.String()),
		})
	}
	return out
}

// Counter renders the "<length> / <max>" counter, or "" when unlimited.
func (s Schema) Counter(value string) string {
	if s.MaxLength <= 0 {
		return ""
	}
	return fmt.Sprintf("%d / %d", utf8.RuneCountInString(value), s.MaxLength)
}

// Label is the title shown above the field.
func (s Schema) Label() string {
	return s.Title
}
