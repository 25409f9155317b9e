package caption

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/image"
)

// Request is one caption request.
type Request struct {
	// ID is unique per request, for logs and provider tracing
	ID string
	// Target is the image to caption; Target.ID tags the completion
	Target image.Target
}

// Requester produces a caption for an image. Exactly one result is expected
// per call; implementations must honour ctx.
type Requester interface {
	GenerateCaption(ctx context.Context, req Request) (string, error)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context, req Request) (string, error)

// GenerateCaption implements Requester.
func (f RequesterFunc) GenerateCaption(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// TextSink persists the field value. Failures are logged and otherwise
// ignored; the session's own state stays authoritative.
type TextSink interface {
	SetValue(ctx context.Context, text string) error
}

// TextSinkFunc adapts a function to TextSink.
type TextSinkFunc func(ctx context.Context, text string) error

// SetValue implements TextSink.
func (f TextSinkFunc) SetValue(ctx context.Context, text string) error {
	return f(ctx, text)
}

// ErrRateLimited marks requests that gave up waiting for the rate limiter.
var ErrRateLimited = errors.New("caption rate limit")

type rateLimited struct {
	next    Requester
	limiter *rate.Limiter
}

// RateLimited allows at most perMinute requests per minute through to next,
// with no bursting. Callers block until a slot is free or ctx ends.
// perMinute <= 0 disables limiting.
func RateLimited(next Requester, perMinute int) Requester {
	if perMinute <= 0 {
		return next
	}
	return &rateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

func (r *rateLimited) GenerateCaption(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", errors.Mark(errors.Wrap(err, "waiting for caption rate limit"), ErrRateLimited)
	}
	return r.next.GenerateCaption(ctx, req)
}
