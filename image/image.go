// Package image recognises image-link values inside content documents and
// turns them into retrieval targets for captioning.
package image

import (
	"fmt"
	"net/url"
	"strings"
)

// LinkSchema is the schema identifier carried in "_meta.schema" by image links.
const LinkSchema = "http://bigcontent.io/cms/schema/v1/core#/definitions/image-link"

// Kind classifies a resolved pointer value.
type Kind int

const (
	// Unresolved means the pointer did not resolve to any value
	Unresolved Kind = iota
	// Other means a value was found but it is not an image link
	Other
	// Image means the value is an image link
	Image
)

func (k Kind) String() string {
	switch k {
	case Unresolved:
		return "unresolved"
	case Other:
		return "other"
	case Image:
		return "image"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Link is an image reference as stored in a content document.
type Link struct {
	ID          string
	Name        string
	Endpoint    string
	DefaultHost string
	MediaType   string
}

// Resolved is the result of classifying a pointer value.
type Resolved struct {
	Kind  Kind
	Link  Link // set when Kind == Image
	Value any  // the raw value when Kind != Unresolved
}

// Classify inspects a value produced by pointer evaluation. found is the
// evaluator's "path exists" flag.
//
// A value is an image link iff it is an object whose "_meta.schema" equals
// LinkSchema and which carries a non-empty string "id".
func Classify(value any, found bool) Resolved {
	if !found {
		return Resolved{Kind: Unresolved}
	}

	obj, ok := value.(map[string]any)
	if !ok {
		return Resolved{Kind: Other, Value: value}
	}
	meta, _ := obj["_meta"].(map[string]any)
	if schema, _ := meta["schema"].(string); schema != LinkSchema {
		return Resolved{Kind: Other, Value: value}
	}
	id := stringField(obj, "id")
	if id == "" {
		return Resolved{Kind: Other, Value: value}
	}

	return Resolved{
		Kind: Image,
		Link: Link{
			ID:          id,
			Name:        stringField(obj, "name"),
			Endpoint:    stringField(obj, "endpoint"),
			DefaultHost: stringField(obj, "defaultHost"),
			MediaType:   stringField(obj, "mediaType"),
		},
		Value: value,
	}
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

// HasEmbeddedLocation reports whether the link carries enough to build a
// retrieval URL without a lookup (endpoint and name).
func (l Link) HasEmbeddedLocation() bool {
	return l.Endpoint != "" && l.Name != ""
}

// URL builds the retrieval URL for the link, preferring host over the link's
// own default host. The second result is false when no host is known or the
// link lacks an endpoint or name.
//
// The rendition is a 512x512 PNG, clamped and never upscaled, which is what
// caption providers expect.
func (l Link) URL(host string) (string, bool) {
	if host == "" {
		host = l.DefaultHost
	}
	host = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://"), "/")
	if host == "" || !l.HasEmbeddedLocation() {
		return "", false
	}

	return "https://" + host + "/i/" + escapeComponent(l.Endpoint) + "/" + escapeComponent(l.Name) +
		".png?w=512&h=512&upscale=false&sm=clamp", true
}

// componentUnescaper restores the characters URI components leave as-is but
// QueryEscape encodes, and spells spaces as %20.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// escapeComponent escapes s as a single URI component, so names containing
// "&", "=", "+", ":" or "@" yield the same retrieval URL everywhere.
func escapeComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}
