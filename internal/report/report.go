// Package report classifies send failures into a small closed taxonomy and
// tracks the latest error per session.
package report

import (
	"fmt"
	"sync"
)

// Kind is the failure class of an Error.
type Kind int

const (
	// KindNoActiveSession means a send was attempted with no session selected.
	KindNoActiveSession Kind = iota
	// KindTransport means the network stream could not be opened or read.
	KindTransport
	// KindHTTP means the backend answered with a non-success status.
	KindHTTP
	// KindInBand means the backend reported an error inside the stream.
	KindInBand
)

func (k Kind) String() string {
	switch k {
	case KindNoActiveSession:
		return "no_active_session"
	case KindTransport:
		return "transport_unavailable"
	case KindHTTP:
		return "http_failure"
	case KindInBand:
		return "in_band_error"
	default:
		return "unknown"
	}
}

// Error is a classified send failure.
type Error struct {
	Kind    Kind
	Status  int    // HTTP status, set for KindHTTP
	Message string // backend-provided message, set for KindInBand
	Err     error  // underlying cause, set for KindTransport
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNoActiveSession:
		return "no active session: select or create a session first"
	case KindHTTP:
		return fmt.Sprintf("chat request failed with status %d", e.Status)
	case KindInBand:
		return fmt.Sprintf("assistant error: %s", e.Message)
	case KindTransport:
		return fmt.Sprintf("chat backend unreachable: %v", e.Err)
	default:
		return "unknown chat error"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NoActiveSession returns the rejection for a send with nothing selected.
func NoActiveSession() *Error {
	return &Error{Kind: KindNoActiveSession}
}

// Transport wraps a connection or read failure.
func Transport(err error) *Error {
	return &Error{Kind: KindTransport, Err: err}
}

// HTTP records a non-success status on the initial response.
func HTTP(status int) *Error {
	return &Error{Kind: KindHTTP, Status: status}
}

// InBand records an error field that arrived inside the stream.
func InBand(message string) *Error {
	return &Error{Kind: KindInBand, Message: message}
}

// Reporter keeps the most recent error per session. Errors are cleared when
// the session's next send reaches the backend.
type Reporter struct {
	mu     sync.RWMutex
	latest map[int64]*Error
}

// NewReporter returns an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{latest: make(map[int64]*Error)}
}

// Report stores err as the session's latest error.
func (r *Reporter) Report(sessionID int64, err *Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.latest[sessionID] = err
}

// Latest returns the session's most recent error, or nil.
func (r *Reporter) Latest(sessionID int64) *Error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.latest[sessionID]
}

// Clear drops the session's latest error.
func (r *Reporter) Clear(sessionID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.latest, sessionID)
}
