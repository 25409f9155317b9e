// Package pointer implements JSON Pointers (RFC 6901) and the relative
// variant used by field extensions: "<depth>/<tokens...>", where depth is the
// number of ancestors to climb from the field's own location before the
// remaining tokens are applied.
//
// Grammar accepted by Parse:
//
//	""                  the whole document
//	"/a/b~1c"           absolute; tokens "a", "b/c"
//	"1/image"           relative; up one level, then "image"
//
// Documents are JSON-like trees as produced by encoding/json decoding into
// `any`: map[string]any, []any and scalars.
package pointer

import (
	"strconv"
	"strings"

	"github.com/teranos/qntx-caption/errors"
)

// Pointer is a parsed pointer.
type Pointer struct {
	// Relative is true for "<depth>/..." pointers
	Relative bool
	// Depth is the number of ancestors to climb. Always 0 for absolute pointers.
	Depth int
	// Tokens are the unescaped reference tokens
	Tokens []string
}

// IsRoot reports whether p addresses the whole document.
func (p Pointer) IsRoot() bool {
	return !p.Relative && len(p.Tokens) == 0
}

// String compiles p back into its string form.
func (p Pointer) String() string {
	return Compile(p)
}

// Escape escapes a reference token: "~" becomes "~0", then "/" becomes "~1".
func Escape(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

// Unescape reverses Escape: "~1" becomes "/", then "~0" becomes "~".
// The order matters: "~01" must unescape to "~1", not "/".
func Unescape(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}

// Parse parses an absolute or relative pointer.
func Parse(s string) (Pointer, error) {
	if s == "" {
		return Pointer{}, nil
	}

	if depth, rest, ok := splitRelative(s); ok {
		n, err := strconv.Atoi(depth)
		if err != nil {
			return Pointer{}, errors.NewInvalidPointerError(s, "relative pointer depth %q out of range", depth)
		}
		return Pointer{Relative: true, Depth: n, Tokens: unescapeAll(strings.Split(rest, "/"))}, nil
	}

	if !strings.HasPrefix(s, "/") {
		return Pointer{}, errors.NewInvalidPointerError(s, "pointer must start with a /")
	}

	return Pointer{Tokens: unescapeAll(strings.Split(s[1:], "/"))}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Pointer {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// splitRelative matches ^\d+/ and returns the digits and everything after the slash.
func splitRelative(s string) (depth, rest string, ok bool) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) || s[i] != '/' {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func unescapeAll(tokens []string) []string {
	for i, t := range tokens {
		tokens[i] = Unescape(t)
	}
	return tokens
}

// IsValid reports whether s parses. It never returns an error; failures other
// than ErrInvalidPointer cannot occur in Parse.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// Compile is the inverse of Parse.
func Compile(p Pointer) string {
	escaped := make([]string, len(p.Tokens))
	for i, t := range p.Tokens {
		escaped[i] = Escape(t)
	}

	if p.Relative {
		return strconv.Itoa(p.Depth) + "/" + strings.Join(escaped, "/")
	}
	if len(escaped) == 0 {
		return ""
	}
	return "/" + strings.Join(escaped, "/")
}

// Append appends escaped reference tokens to base. A single trailing "/" on
// base is dropped first, so Append("/a/", "b") is "/a/b".
func Append(base string, tokens ...string) string {
	base = strings.TrimSuffix(base, "/")

	var b strings.Builder
	b.WriteString(base)
	for _, t := range tokens {
		b.WriteByte('/')
		b.WriteString(Escape(t))
	}
	return b.String()
}

// Parent returns the pointer one level up from s.
// The root pointer has no parent and yields ErrNoParent.
func Parent(s string) (string, error) {
	if s == "" {
		return "", errors.ErrNoParent
	}
	p, err := Parse(s)
	if err != nil {
		return "", err
	}
	if len(p.Tokens) > 0 {
		p.Tokens = p.Tokens[:len(p.Tokens)-1]
	}
	return Compile(p), nil
}

// StartsWith reports whether prefix addresses s or one of its ancestors:
// prefix's depth (for relative pointers) and tokens must match s position by
// position, and prefix must not be longer than s.
func StartsWith(s, prefix string) (bool, error) {
	p, err := Parse(s)
	if err != nil {
		return false, err
	}
	q, err := Parse(prefix)
	if err != nil {
		return false, err
	}

	if q.IsRoot() {
		return true, nil
	}
	if p.Relative != q.Relative || p.Depth != q.Depth {
		return false, nil
	}
	if len(q.Tokens) > len(p.Tokens) {
		return false, nil
	}
	for i := range q.Tokens {
		if p.Tokens[i] != q.Tokens[i] {
			return false, nil
		}
	}
	return true, nil
}
