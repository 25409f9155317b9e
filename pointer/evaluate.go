package pointer

import (
	"strconv"

	"github.com/teranos/qntx-caption/errors"
)

// Evaluate resolves an absolute pointer against doc.
//
// The boolean is false when the path does not exist in doc: a missing key,
// an out-of-range index, or a scalar where a container was expected. That is
// not an error. Relative pointers fail with ErrInvalidPointer because there is
// no starting location to climb from.
func Evaluate(ptr string, doc any) (any, bool, error) {
	p, err := Parse(ptr)
	if err != nil {
		return nil, false, err
	}
	if p.Relative {
		return nil, false, errors.NewInvalidPointerError(ptr, "pointer is relative but no starting pointer was provided")
	}
	v, ok := walk(doc, p.Tokens)
	return v, ok, nil
}

// EvaluateFrom resolves ptr against doc, using location (an absolute
// pointer, "" for the document root) as the starting point for relative
// pointers. Absolute pointers ignore location.
func EvaluateFrom(ptr string, doc any, location string) (any, bool, error) {
	abs, err := resolve(ptr, location)
	if err != nil {
		return nil, false, err
	}
	v, ok := walk(doc, abs.Tokens)
	return v, ok, nil
}

// Resolve turns ptr into an absolute pointer string. Relative pointers climb
// Depth levels from location and then descend through their own tokens;
// absolute pointers are returned unchanged.
func Resolve(ptr, location string) (string, error) {
	p, err := Parse(ptr)
	if err != nil {
		return "", err
	}
	if !p.Relative {
		return ptr, nil
	}
	abs, err := resolve(ptr, location)
	if err != nil {
		return "", err
	}
	return Compile(abs), nil
}

func resolve(ptr, location string) (Pointer, error) {
	p, err := Parse(ptr)
	if err != nil {
		return Pointer{}, err
	}
	if !p.Relative {
		return p, nil
	}

	loc, err := Parse(location)
	if err != nil {
		return Pointer{}, errors.Wrap(err, "starting pointer")
	}
	if loc.Relative {
		return Pointer{}, errors.NewInvalidPointerError(location, "starting pointer must be absolute")
	}
	if p.Depth > len(loc.Tokens) {
		return Pointer{}, errors.NewInvalidPointerError(ptr,
			"relative pointer climbs %d levels but %q has only %d ancestors", p.Depth, location, len(loc.Tokens))
	}

	base := loc.Tokens[:len(loc.Tokens)-p.Depth]
	tokens := make([]string, 0, len(base)+len(p.Tokens))
	tokens = append(tokens, base...)
	tokens = append(tokens, p.Tokens...)
	return Pointer{Tokens: tokens}, nil
}

// walk descends through doc one token at a time.
func walk(doc any, tokens []string) (any, bool) {
	cur := doc
	for _, t := range tokens {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[t]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			i, ok := arrayIndex(t, len(node))
			if !ok {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// arrayIndex parses an RFC 6901 array index: decimal digits, no leading
// zeros, within [0, length).
func arrayIndex(token string, length int) (int, bool) {
	i, ok := parseIndex(token)
	if !ok || i >= length {
		return 0, false
	}
	return i, true
}

func parseIndex(token string) (int, bool) {
	if token == "" || (len(token) > 1 && token[0] == '0') {
		return 0, false
	}
	for i := 0; i < len(token); i++ {
		if token[i] < '0' || token[i] > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	return i, true
}
