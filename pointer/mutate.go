package pointer

import (
	"slices"

	"github.com/teranos/qntx-caption/errors"
)

// Set writes value at ptr inside root and returns root.
//
// Only the final token may be missing: when any intermediate container is
// absent (or is a scalar) nothing is written and root is returned unchanged.
// Containers are never created implicitly. Setting the root pointer returns
// value itself.
//
// Objects are modified in place. For arrays, an in-range index replaces the
// element, and "-" or an index equal to the length appends. An append grows
// the slice, so the grown slice is written back into its parent; when the
// array is root itself the returned value is the grown slice.
//
// Relative pointers are rejected; resolve them first with Resolve.
func Set(root any, ptr string, value any) (any, error) {
	out, _, err := SetOK(root, ptr, value)
	return out, err
}

// SetOK is Set that also reports whether anything was written. It is false
// when an intermediate container is missing or the final array index is out
// of range.
func SetOK(root any, ptr string, value any) (any, bool, error) {
	p, err := parseAbsolute(ptr)
	if err != nil {
		return root, false, err
	}
	if len(p.Tokens) == 0 {
		return value, true, nil
	}
	out, ok := setIn(root, p.Tokens, value)
	return out, ok, nil
}

// Delete removes the value at ptr from root. It reports false, leaving root
// untouched, when the pointer is the root or when the target's parent is
// absent or not a container. A missing final key or index under an existing
// parent still reports true. Array elements are spliced out, so the returned
// root must be used when root itself is an array.
func Delete(root any, ptr string) (any, bool, error) {
	p, err := parseAbsolute(ptr)
	if err != nil {
		return root, false, err
	}
	if len(p.Tokens) == 0 {
		return root, false, nil
	}
	out, ok := deleteIn(root, p.Tokens)
	return out, ok, nil
}

func parseAbsolute(ptr string) (Pointer, error) {
	p, err := Parse(ptr)
	if err != nil {
		return Pointer{}, err
	}
	if p.Relative {
		return Pointer{}, errors.NewInvalidPointerError(ptr, "cannot modify through a relative pointer; resolve it against a location first")
	}
	return p, nil
}

// setIn returns the node to store in place of node, and whether a write happened.
func setIn(node any, tokens []string, value any) (any, bool) {
	t, last := tokens[0], len(tokens) == 1

	switch n := node.(type) {
	case map[string]any:
		if n == nil {
			return node, false
		}
		if last {
			n[t] = value
			return n, true
		}
		child, ok := n[t]
		if !ok {
			return node, false
		}
		updated, ok := setIn(child, tokens[1:], value)
		if !ok {
			return node, false
		}
		n[t] = updated
		return n, true

	case []any:
		if last {
			if t == "-" {
				return append(n, value), true
			}
			i, ok := parseIndex(t)
			switch {
			case !ok:
				return node, false
			case i < len(n):
				n[i] = value
				return n, true
			case i == len(n):
				return append(n, value), true
			default:
				return node, false
			}
		}
		i, ok := arrayIndex(t, len(n))
		if !ok {
			return node, false
		}
		updated, ok := setIn(n[i], tokens[1:], value)
		if !ok {
			return node, false
		}
		n[i] = updated
		return n, true

	default:
		return node, false
	}
}

// deleteIn returns the node to store in place of node, and whether the
// target's parent container was reached.
func deleteIn(node any, tokens []string) (any, bool) {
	t, last := tokens[0], len(tokens) == 1

	switch n := node.(type) {
	case map[string]any:
		if last {
			delete(n, t)
			return n, true
		}
		child, ok := n[t]
		if !ok {
			return node, false
		}
		updated, ok := deleteIn(child, tokens[1:])
		if !ok {
			return node, false
		}
		n[t] = updated
		return n, true

	case []any:
		i, ok := arrayIndex(t, len(n))
		if last {
			if !ok {
				return n, true
			}
			return slices.Delete(n, i, i+1), true
		}
		if !ok {
			return node, false
		}
		updated, ok := deleteIn(n[i], tokens[1:])
		if !ok {
			return node, false
		}
		n[i] = updated
		return n, true

	default:
		return node, false
	}
}
