package image

import (
	"context"
	"sync"

	"github.com/teranos/qntx-caption/errors"
)

// Target is an image ready to be captioned. ID identifies the request target
// and is the retrieval URL itself, so two documents pointing at the same
// rendition produce the same target.
type Target struct {
	ID   string
	URL  string
	Link Link
}

// Resolver turns a classified value into a Target. Implementations may block
// (for example on a network lookup) and must honour ctx. A non-image value
// yields (Target{}, false, nil).
type Resolver interface {
	Resolve(ctx context.Context, r Resolved) (Target, bool, error)
}

// LookupFunc fetches a retrieval URL for a link that does not embed one.
type LookupFunc func(ctx context.Context, link Link) (string, error)

// LinkResolver builds URLs from the link's embedded endpoint and name,
// falling back to Lookup when the link only carries an id.
type LinkResolver struct {
	// Host overrides the link's defaultHost when non-empty
	Host string
	// Lookup is optional
	Lookup LookupFunc
}

// Resolve implements Resolver.
func (r LinkResolver) Resolve(ctx context.Context, res Resolved) (Target, bool, error) {
	if res.Kind != Image {
		return Target{}, false, nil
	}

	if u, ok := res.Link.URL(r.Host); ok {
		return Target{ID: u, URL: u, Link: res.Link}, true, nil
	}
	if r.Lookup == nil {
		return Target{}, false, nil
	}

	u, err := r.Lookup(ctx, res.Link)
	if err != nil {
		return Target{}, false, errors.Wrapf(err, "lookup image %s", res.Link.ID)
	}
	if u == "" {
		return Target{}, false, nil
	}
	return Target{ID: u, URL: u, Link: res.Link}, true, nil
}

// Cached memoises successful lookups by link id. Failed lookups are not
// cached so they are retried on the next document change.
func Cached(lookup LookupFunc) LookupFunc {
	var mu sync.Mutex
	cache := make(map[string]string)

	return func(ctx context.Context, link Link) (string, error) {
		mu.Lock()
		u, ok := cache[link.ID]
		mu.Unlock()
		if ok {
			return u, nil
		}

		u, err := lookup(ctx, link)
		if err != nil {
			return "", err
		}
		if u != "" {
			mu.Lock()
			cache[link.ID] = u
			mu.Unlock()
		}
		return u, nil
	}
}
