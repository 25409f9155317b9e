package caption

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/field"
	"github.com/teranos/qntx-caption/image"
)

func imageLink(name string) map[string]any {
	return map[string]any{
		"_meta":       map[string]any{"schema": image.LinkSchema},
		"id":          "id-" + name,
		"name":        name,
		"endpoint":    "acme",
		"defaultHost": "cdn.example.com",
	}
}

func imageURL(name string) string {
	return "https://cdn.example.com/i/acme/" + name + ".png?w=512&h=512&upscale=false&sm=clamp"
}

func docWith(name string) map[string]any {
	return map[string]any{"image": imageLink(name), "alt": ""}
}

func topLevel() Params {
	return Params{Instance: map[string]any{"image": "/image"}}
}

func quiet() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func constant(caption string, calls *atomic.Int32) Requester {
	return RequesterFunc(func(ctx context.Context, req Request) (string, error) {
		if calls != nil {
			calls.Add(1)
		}
		return caption, nil
	})
}

type resolverFunc func(ctx context.Context, r image.Resolved) (image.Target, bool, error)

func (f resolverFunc) Resolve(ctx context.Context, r image.Resolved) (image.Target, bool, error) {
	return f(ctx, r)
}

func TestSession_CaptionApplied(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var persisted []string

	s := New(Options{
		Params:    topLevel(),
		Requester: constant("  A red bicycle  ", nil),
		Sink: TextSinkFunc(func(ctx context.Context, text string) error {
			mu.Lock()
			defer mu.Unlock()
			persisted = append(persisted, text)
			return nil
		}),
		Logger: quiet(),
	})
	defer s.Close()

	require.NoError(t, s.DocumentChanged(ctx, Snapshot{Document: docWith("bike")}))
	target, ok := s.Target()
	require.True(t, ok)
	assert.Equal(t, imageURL("bike"), target.ID)
	assert.False(t, s.Disabled())
	assert.True(t, s.CanCaption())

	s.SetText("draft")
	require.NoError(t, s.StartCaption())
	s.Wait()

	st := s.State()
	assert.Equal(t, Idle, st.Status)
	assert.Equal(t, "A red bicycle", st.Text)
	assert.Nil(t, st.Failure)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"draft", "A red bicycle"}, persisted)
}

func TestSession_StartWithoutImage(t *testing.T) {
	s := New(Options{Params: topLevel(), Requester: constant("x", nil), Logger: quiet()})
	defer s.Close()

	require.NoError(t, s.DocumentChanged(context.Background(), Snapshot{Document: map[string]any{"image": "not a link"}}))
	assert.True(t, s.Disabled())

	err := s.StartCaption()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoImage))
	assert.Equal(t, Idle, s.State().Status)
}

func TestSession_StartWithoutRequester(t *testing.T) {
	s := New(Options{Params: topLevel(), Logger: quiet()})
	defer s.Close()

	require.NoError(t, s.DocumentChanged(context.Background(), Snapshot{Document: docWith("bike")}))
	assert.False(t, s.CanCaption())

	err := s.StartCaption()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotConfigured))
}

func TestSession_SupersededResultDiscarded(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zapcore.DebugLevel)

	gates := map[string]chan string{
		imageURL("a"): make(chan string),
		imageURL("b"): make(chan string),
	}
	started := make(chan Request, 2)
	req := RequesterFunc(func(ctx context.Context, r Request) (string, error) {
		started <- r
		select {
		case c := <-gates[r.Target.ID]:
			return c, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	s := New(Options{Params: topLevel(), Requester: req, Logger: zap.New(core).Sugar()})
	defer s.Close()

	require.NoError(t, s.DocumentChanged(ctx, Snapshot{Document: docWith("a")}))
	require.NoError(t, s.StartCaption())
	first := <-started

	require.NoError(t, s.DocumentChanged(ctx, Snapshot{Document: docWith("b")}))
	require.NoError(t, s.StartCaption())
	second := <-started

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, Captioning, s.State().Status)
	assert.Equal(t, imageURL("b"), s.State().Target)

	gates[imageURL("b")] <- "Caption B"
	require.Eventually(t, func() bool { return s.State().Status == Idle }, time.Second, time.Millisecond)

	gates[imageURL("a")] <- "Caption A"
	s.Wait()

	assert.Equal(t, "Caption B", s.State().Text)
	assert.Equal(t, 1, logs.FilterMessage("Discarding stale caption").Len())
}

func TestSession_CancelDiscardsLateResult(t *testing.T) {
	gate := make(chan string)
	started := make(chan struct{})
	req := RequesterFunc(func(ctx context.Context, r Request) (string, error) {
		close(started)
		return <-gate, nil
	})

	s := New(Options{Params: topLevel(), Requester: req, InitialText: "mine", Logger: quiet()})
	defer s.Close()

	require.NoError(t, s.DocumentChanged(context.Background(), Snapshot{Document: docWith("a")}))
	require.NoError(t, s.StartCaption())
	<-started

	s.Cancel()
	assert.Equal(t, Idle, s.State().Status)

	gate <- "too late"
	s.Wait()

	st := s.State()
	assert.Equal(t, "mine", st.Text)
	assert.Equal(t, Idle, st.Status)
	assert.Nil(t, st.Failure)
}

func TestSession_EditDuringRequestIsOverwritten(t *testing.T) {
	gate := make(chan string)
	started := make(chan struct{})
	req := RequesterFunc(func(ctx context.Context, r Request) (string, error) {
		close(started)
		return <-gate, nil
	})

	s := New(Options{Params: topLevel(), Requester: req, Logger: quiet()})
	defer s.Close()

	require.NoError(t, s.DocumentChanged(context.Background(), Snapshot{Document: docWith("a")}))
	require.NoError(t, s.StartCaption())
	<-started

	s.SetText("typing")
	assert.Equal(t, "typing", s.State().Text)
	assert.Equal(t, Captioning, s.State().Status)

	gate <- "generated"
	s.Wait()
	assert.Equal(t, "generated", s.State().Text)
}

func TestSession_Failures(t *testing.T) {
	tests := []struct {
		name     string
		req      Requester
		category FailureCategory
	}{
		{
			name: "error",
			req: RequesterFunc(func(ctx context.Context, r Request) (string, error) {
				return "", errors.New("upstream 502")
			}),
			category: CategoryRequestFailed,
		},
		{
			name:     "empty caption",
			req:      constant("   ", nil),
			category: CategoryEmptyCaption,
		},
		{
			name: "rate limited",
			req: RequesterFunc(func(ctx context.Context, r Request) (string, error) {
				return "", errors.Mark(errors.New("slot wait aborted"), ErrRateLimited)
			}),
			category: CategoryRateLimited,
		},
		{
			name: "panic",
			req: RequesterFunc(func(ctx context.Context, r Request) (string, error) {
				panic("bad provider")
			}),
			category: CategoryRequestFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(Options{Params: topLevel(), Requester: tt.req, InitialText: "keep", Logger: quiet()})
			defer s.Close()

			require.NoError(t, s.DocumentChanged(context.Background(), Snapshot{Document: docWith("a")}))
			require.NoError(t, s.StartCaption())
			s.Wait()

			st := s.State()
			assert.Equal(t, Idle, st.Status)
			assert.Equal(t, "keep", st.Text)
			require.NotNil(t, st.Failure)
			assert.Equal(t, tt.category, st.Failure.Category)
			assert.Equal(t, field.ErrorMessage, st.Failure.Message)
			assert.True(t, errors.IsRequestFailed(st.Failure.Err))
		})
	}
}

func TestSession_AutoCaption(t *testing.T) {
	ctx := context.Background()
	var calls atomic.Int32
	params := Params{Instance: map[string]any{"image": "/image", "autoCaption": true}}

	s := New(Options{Params: params, Requester: constant("auto", &calls), Logger: quiet()})
	defer s.Close()

	require.NoError(t, s.DocumentChanged(ctx, Snapshot{Document: docWith("a")}))
	s.Wait()
	assert.Equal(t, "auto", s.State().Text)
	assert.Equal(t, int32(1), calls.Load())

	// same image again: no new request
	require.NoError(t, s.DocumentChanged(ctx, Snapshot{Document: docWith("a")}))
	s.Wait()
	assert.Equal(t, int32(1), calls.Load())

	// new image but field no longer empty
	require.NoError(t, s.DocumentChanged(ctx, Snapshot{Document: docWith("b")}))
	s.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestSession_AutoCaptionSkippedWithText(t *testing.T) {
	var calls atomic.Int32
	params := Params{Installation: map[string]any{"autoCaption": true}, Instance: map[string]any{"image": "/image"}}

	s := New(Options{Params: params, Requester: constant("auto", &calls), InitialText: "written by hand", Logger: quiet()})
	defer s.Close()

	require.NoError(t, s.DocumentChanged(context.Background(), Snapshot{Document: docWith("a")}))
	s.Wait()
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, "written by hand", s.State().Text)
}

func TestSession_RelativePointer(t *testing.T) {
	ctx := context.Background()
	doc := map[string]any{
		"slides": []any{
			map[string]any{"image": imageLink("first"), "caption": ""},
			map[string]any{"image": imageLink("second"), "caption": ""},
		},
	}
	params := Params{Instance: map[string]any{"image": "1/image"}}
	s := New(Options{Params: params, Requester: constant("x", nil), Logger: quiet()})
	defer s.Close()

	// location not yet known
	err := s.DocumentChanged(ctx, Snapshot{Document: doc})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidPointer(err))
	assert.True(t, s.Disabled())

	loc := "/slides/1/caption"
	require.NoError(t, s.DocumentChanged(ctx, Snapshot{Document: doc, Location: &loc}))
	target, ok := s.Target()
	require.True(t, ok)
	assert.Equal(t, imageURL("second"), target.URL)
}

func TestSession_StaleResolutionDropped(t *testing.T) {
	ctx := context.Background()
	entered := make(chan struct{})
	release := make(chan struct{})
	resolver := resolverFunc(func(ctx context.Context, r image.Resolved) (image.Target, bool, error) {
		if r.Link.Name == "slow" {
			close(entered)
			<-release
		}
		return image.Target{ID: r.Link.Name, URL: r.Link.Name, Link: r.Link}, true, nil
	})

	s := New(Options{Params: topLevel(), Resolver: resolver, Logger: quiet()})
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		done <- s.DocumentChanged(ctx, Snapshot{Document: docWith("slow")})
	}()
	<-entered

	require.NoError(t, s.DocumentChanged(ctx, Snapshot{Document: docWith("fast")}))
	close(release)
	require.NoError(t, <-done)

	target, ok := s.Target()
	require.True(t, ok)
	assert.Equal(t, "fast", target.ID)
}

func TestSession_ResolverErrorMeansNoImage(t *testing.T) {
	resolver := resolverFunc(func(ctx context.Context, r image.Resolved) (image.Target, bool, error) {
		return image.Target{}, false, errors.New("lookup unavailable")
	})
	s := New(Options{Params: topLevel(), Resolver: resolver, Requester: constant("x", nil), Logger: quiet()})
	defer s.Close()

	err := s.DocumentChanged(context.Background(), Snapshot{Document: docWith("a")})
	require.Error(t, err)
	assert.True(t, s.Disabled())
}

func TestSession_OnChangeOrder(t *testing.T) {
	var statuses []Status
	s := New(Options{
		Params:    topLevel(),
		Requester: constant("done", nil),
		OnChange:  func(st State) { statuses = append(statuses, st.Status) },
		Logger:    quiet(),
	})
	defer s.Close()

	require.NoError(t, s.DocumentChanged(context.Background(), Snapshot{Document: docWith("a")}))
	require.NoError(t, s.StartCaption())
	s.Wait()

	assert.Equal(t, []Status{Captioning, Idle}, statuses)
}

func TestSession_ObserverReadsStateDuringConcurrentEdit(t *testing.T) {
	var s *Session
	entered := make(chan struct{})
	var once sync.Once
	var seen []string
	s = New(Options{
		Params: topLevel(),
		OnChange: func(st State) {
			once.Do(func() {
				close(entered)
				time.Sleep(50 * time.Millisecond)
			})
			seen = append(seen, s.State().Text)
			_, _ = s.Target()
		},
		Logger: quiet(),
	})
	defer s.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-entered
			s.SetText("second")
		}()
		s.SetText("first")
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session stuck: observer read state while another edit was dispatching")
	}
	assert.Equal(t, "second", s.State().Text)
	assert.Len(t, seen, 2)
}

func TestSession_Close(t *testing.T) {
	started := make(chan struct{})
	req := RequesterFunc(func(ctx context.Context, r Request) (string, error) {
		close(started)
		<-ctx.Done()
		return "", ctx.Err()
	})

	s := New(Options{Params: topLevel(), Requester: req, Logger: quiet()})
	require.NoError(t, s.DocumentChanged(context.Background(), Snapshot{Document: docWith("a")}))
	require.NoError(t, s.StartCaption())
	<-started

	s.Close()
	assert.Equal(t, Idle, s.State().Status)

	assert.ErrorIs(t, s.StartCaption(), ErrClosed)
	assert.ErrorIs(t, s.DocumentChanged(context.Background(), Snapshot{}), ErrClosed)
}

func TestRateLimited(t *testing.T) {
	var calls atomic.Int32
	r := RateLimited(constant("ok", &calls), 60)

	got, err := r.GenerateCaption(context.Background(), Request{ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = r.GenerateCaption(ctx, Request{ID: "2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRateLimited))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRateLimited_Disabled(t *testing.T) {
	var calls atomic.Int32
	r := RateLimited(constant("ok", &calls), 0)
	for i := 0; i < 5; i++ {
		_, err := r.GenerateCaption(context.Background(), Request{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(5), calls.Load())
}
