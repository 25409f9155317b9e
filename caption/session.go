// Package caption drives caption generation for a single text field.
//
// A Session owns the field's State and applies every change through Reduce.
// Caption requests run on their own goroutines and report back as events
// tagged with the image they were issued for, so a result that arrives after
// the user cancelled, restarted or moved to another image is discarded.
package caption

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/qntx-caption/errors"
	"github.com/teranos/qntx-caption/field"
	"github.com/teranos/qntx-caption/image"
	"github.com/teranos/qntx-caption/logger"
	"github.com/teranos/qntx-caption/pointer"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("caption session closed")

// Snapshot is one document-change notification from the host.
type Snapshot struct {
	Document any
	// Location is the field's own absolute pointer. Nil until the host has
	// reported it; relative image pointers do not resolve until then.
	Location *string
}

// Options configure a Session.
type Options struct {
	Params Params

	// Requester is required for StartCaption
	Requester Requester
	// Resolver defaults to an image.LinkResolver on Params.ImageHost()
	Resolver image.Resolver
	// Sink receives every change of the text value
	Sink TextSink
	// OnChange observes every state change. Like Sink it is called in
	// transition order. It may read State and Target but must not call
	// mutating Session methods.
	OnChange func(State)

	InitialText string
	Logger      *zap.SugaredLogger
}

// Session is the captioning state of one field. All methods are safe for
// concurrent use.
type Session struct {
	id        string
	params    Params
	requester Requester
	resolver  image.Resolver
	sink      TextSink
	onChange  func(State)
	log       *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	state      State
	target     *image.Target
	generation uint64
	closed     bool

	// emitMu keeps Sink and OnChange calls in transition order. Lock order
	// is emitMu then mu; observers run holding only emitMu.
	emitMu sync.Mutex
}

// New creates an idle session.
func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.ComponentLogger("caption")
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = image.LinkResolver{Host: opts.Params.ImageHost()}
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(logger.WithSessionID(context.Background(), id))

	return &Session{
		id:        id,
		params:    opts.Params,
		requester: opts.Requester,
		resolver:  resolver,
		sink:      opts.Sink,
		onChange:  opts.OnChange,
		log:       log.With(logger.FieldSessionID, id),
		ctx:       ctx,
		cancel:    cancel,
		state:     State{Status: Idle, Text: opts.InitialText},
	}
}

// ID returns the session id used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Target returns the currently resolved image, if any.
func (s *Session) Target() (image.Target, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.target == nil {
		return image.Target{}, false
	}
	return *s.target, true
}

// CanCaption reports whether this field is set up for captioning at all:
// an image pointer is configured and a requester is available. The field
// still works as a plain text field when it is not.
func (s *Session) CanCaption() bool {
	return s.params.ImagePointer() != "" && s.requester != nil
}

// Disabled reports whether the caption action is unavailable because no
// image is currently resolved.
func (s *Session) Disabled() bool {
	_, ok := s.Target()
	return !ok
}

// SetText applies a user edit. Edits are accepted in every state.
func (s *Session) SetText(text string) {
	s.dispatch(TextEdited{Text: text})
}

// Cancel abandons the current request. The request is not interrupted;
// its result will simply not apply.
func (s *Session) Cancel() {
	if _, changed := s.dispatch(Cancelled{}); changed {
		s.log.Debugw("Caption request cancelled")
	}
}

// StartCaption issues a caption request for the current image and returns
// immediately. A request already in flight is superseded. Returns
// errors.ErrNoImage when no image is resolved and errors.ErrNotConfigured
// without a requester.
func (s *Session) StartCaption() error {
	if s.requester == nil {
		return errors.Wrap(errors.ErrNotConfigured, "no caption requester")
	}
	return s.start(false)
}

// DocumentChanged re-evaluates the image pointer against a new document and
// resolves the image it references. Resolution may block on a lookup; it is
// safe to call from several goroutines, and a resolution that finishes after
// a newer one has started is dropped.
//
// When the resolved image changes, auto-caption is on, the session is idle and
// the field is empty, a caption request is started.
//
// The returned error describes why no image could be resolved. The session
// has already treated that case as "no image".
func (s *Session) DocumentChanged(ctx context.Context, snap Snapshot) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	resolved, evalErr := s.evaluate(snap)

	target, ok, err := s.resolver.Resolve(ctx, resolved)
	if err != nil {
		s.log.Warnw("Image resolution failed",
			logger.FieldImageID, resolved.Link.ID,
			logger.FieldError, err.Error())
		ok = false
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.log.Debugw("Discarding stale image resolution", logger.FieldGeneration, gen)
		return nil
	}
	prev := s.target
	if ok {
		s.target = &target
	} else {
		s.target = nil
	}
	newID := targetID(s.target)
	changed := targetID(prev) != newID
	s.mu.Unlock()

	if changed {
		s.log.Debugw("Image target changed",
			logger.FieldTarget, newID,
			logger.FieldGeneration, gen)
		if ok && s.params.AutoCaption() && s.requester != nil {
			if err := s.start(true); err != nil && !errors.Is(err, ErrClosed) {
				s.log.Warnw("Auto-caption failed to start", logger.FieldError, err.Error())
			}
		}
	}

	if evalErr != nil {
		return evalErr
	}
	return err
}

// Wait blocks until every request started so far has reported back.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Close cancels outstanding requests and waits for them to finish. State
// changes after Close are still applied but nothing new is started.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func targetID(t *image.Target) string {
	if t == nil {
		return ""
	}
	return t.ID
}

func (s *Session) evaluate(snap Snapshot) (image.Resolved, error) {
	ptr := s.params.ImagePointer()
	if ptr == "" {
		return image.Resolved{}, nil
	}

	var (
		value any
		found bool
		err   error
	)
	if snap.Location != nil {
		value, found, err = pointer.EvaluateFrom(ptr, snap.Document, *snap.Location)
	} else {
		value, found, err = pointer.Evaluate(ptr, snap.Document)
	}
	if err != nil {
		s.log.Debugw("Image pointer did not resolve",
			logger.FieldPointer, ptr,
			logger.FieldError, err.Error())
		return image.Resolved{}, err
	}
	return image.Classify(value, found), nil
}

// start transitions to Captioning and launches the request. An automatic
// start only proceeds from an idle, empty field.
func (s *Session) start(auto bool) error {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.target == nil {
		s.mu.Unlock()
		return errors.ErrNoImage
	}
	if auto && (s.state.Status != Idle || s.state.Text != "") {
		s.mu.Unlock()
		return nil
	}

	req := Request{ID: uuid.NewString(), Target: *s.target}
	prev := s.state
	s.state = Reduce(prev, Started{Target: req.Target.ID})
	next := s.state
	s.wg.Add(1)
	s.mu.Unlock()
	if !sameState(prev, next) {
		s.emit(prev, next)
	}

	s.log.Infow("Caption request started",
		logger.FieldRequestID, req.ID,
		logger.FieldTarget, req.Target.ID,
		"auto", auto)

	go s.run(req)
	return nil
}

func (s *Session) run(req Request) {
	defer s.wg.Done()

	ctx := logger.WithRequestID(s.ctx, req.ID)
	log := s.log.With(logger.FieldRequestID, req.ID)
	start := time.Now()

	caption, err := s.call(ctx, req)
	caption = strings.TrimSpace(caption)
	elapsed := time.Since(start).Milliseconds()

	switch {
	case err != nil:
		category := CategoryRequestFailed
		if errors.Is(err, ErrRateLimited) {
			category = CategoryRateLimited
		}
		_, applied := s.dispatch(Failed{
			Target: req.Target.ID,
			Failure: Failure{
				Category: category,
				Message:  field.ErrorMessage,
				Err:      errors.WrapRequestFailed(err, "generate caption"),
			},
		})
		log.Warnw("Caption request failed",
			logger.FieldCategory, string(category),
			logger.FieldDurationMS, elapsed,
			logger.FieldError, err.Error(),
			"applied", applied)

	case caption == "":
		_, applied := s.dispatch(Failed{
			Target: req.Target.ID,
			Failure: Failure{
				Category: CategoryEmptyCaption,
				Message:  field.ErrorMessage,
				Err:      errors.Wrap(errors.ErrRequestFailed, "empty caption"),
			},
		})
		log.Warnw("Caption request returned no caption",
			logger.FieldDurationMS, elapsed,
			"applied", applied)

	default:
		if _, applied := s.dispatch(Completed{Target: req.Target.ID, Caption: caption}); applied {
			log.Infow("Caption applied",
				logger.FieldDurationMS, elapsed,
				logger.FieldTextLength, len(caption))
		} else {
			log.Debugw("Discarding stale caption",
				logger.FieldTarget, req.Target.ID,
				logger.FieldDurationMS, elapsed)
		}
	}
}

// call invokes the requester, turning a panic into an error so the session
// never stays in Captioning.
func (s *Session) call(ctx context.Context, req Request) (caption string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("caption requester panicked: %v", r)
		}
	}()
	return s.requester.GenerateCaption(ctx, req)
}

// dispatch applies e and notifies observers. It reports whether the state
// changed.
func (s *Session) dispatch(e Event) (State, bool) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	prev := s.state
	next := Reduce(prev, e)
	s.state = next
	s.mu.Unlock()

	changed := !sameState(prev, next)
	if changed {
		s.emit(prev, next)
	}
	return next, changed
}

func (s *Session) emit(prev, next State) {
	if s.sink != nil && prev.Text != next.Text {
		if err := s.sink.SetValue(s.ctx, next.Text); err != nil {
			s.log.Warnw("Failed to persist field value",
				logger.FieldTextLength, len(next.Text),
				logger.FieldError, err.Error())
		}
	}
	if s.onChange != nil {
		s.onChange(next)
	}
}

func sameState(a, b State) bool {
	return a.Status == b.Status && a.Target == b.Target && a.Text == b.Text && a.Failure == b.Failure
}

// String renders the state for CLI output.
func (s State) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", s.Status)
	if s.Target != "" {
		fmt.Fprintf(&b, " target=%s", s.Target)
	}
	if s.Failure != nil {
		fmt.Fprintf(&b, " failure=%s", s.Failure.Category)
	}
	return b.String()
}
