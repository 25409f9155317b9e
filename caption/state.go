package caption

import "fmt"

// Status is the captioning status of a session.
type Status int

const (
	// Idle means no caption request is current
	Idle Status = iota
	// Captioning means a request for State.Target is outstanding
	Captioning
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Captioning:
		return "captioning"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// FailureCategory groups request failures for display and logging.
type FailureCategory string

const (
	CategoryRequestFailed FailureCategory = "request_failed"
	CategoryEmptyCaption  FailureCategory = "empty_caption"
	CategoryRateLimited   FailureCategory = "rate_limited"
)

// Failure describes why the last caption request ended without a caption.
type Failure struct {
	Category FailureCategory
	// Message is safe to show to the user
	Message string
	// Err is the underlying cause, for logs
	Err error
}

// State is the complete state of a caption session.
type State struct {
	Status Status
	// Target identifies the image the current request was issued for.
	// Empty while Idle.
	Target string
	// Text is the field value as displayed
	Text string
	// Failure is the last request failure, cleared when a new request starts
	Failure *Failure
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// TextEdited is an edit made by the user. Edits are never blocked by an
// outstanding request.
type TextEdited struct {
	Text string
}

// Started records that a request for Target has been issued. Starting while
// another request is outstanding supersedes it.
type Started struct {
	Target string
}

// Completed carries a caption produced for Target.
type Completed struct {
	Target  string
	Caption string
}

// Failed reports that the request for Target ended without a caption.
// An empty Target matches whatever request is current.
type Failed struct {
	Target  string
	Failure Failure
}

// Cancelled is a user cancel of the current request. The request itself keeps
// running; its completion no longer matches and is discarded.
type Cancelled struct{}

func (TextEdited) event() {}
func (Started) event()    {}
func (Completed) event()  {}
func (Failed) event()     {}
func (Cancelled) event()  {}

// Reduce is the session's transition function. It is pure: the same state
// and event always produce the same result, and it never blocks.
//
// A completion or failure only applies while Captioning and only when its
// target equals the current target. Results for any other target are stale
// and leave the state untouched, whatever order they arrive in.
func Reduce(s State, e Event) State {
	switch e := e.(type) {
	case TextEdited:
		s.Text = e.Text
		return s

	case Started:
		if e.Target == "" {
			return s
		}
		s.Status = Captioning
		s.Target = e.Target
		s.Failure = nil
		return s

	case Completed:
		if s.Status != Captioning || s.Target != e.Target {
			return s
		}
		s.Status = Idle
		s.Target = ""
		s.Text = e.Caption
		return s

	case Failed:
		if s.Status != Captioning || (e.Target != "" && s.Target != e.Target) {
			return s
		}
		f := e.Failure
		s.Status = Idle
		s.Target = ""
		s.Failure = &f
		return s

	case Cancelled:
		if s.Status != Captioning {
			return s
		}
		s.Status = Idle
		s.Target = ""
		return s

	default:
		return s
	}
}
