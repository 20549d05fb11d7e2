// Package engine drives one outstanding chat send: it appends the user
// message and its reply placeholder, opens the network stream, feeds bytes
// through the decoder and applies the resulting events to the session's
// message log under a generation guard.
package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/mindloop/internal/chatapi"
	"github.com/user/mindloop/internal/chatlog"
	"github.com/user/mindloop/internal/history"
	"github.com/user/mindloop/internal/report"
	"github.com/user/mindloop/internal/session"
	"github.com/user/mindloop/internal/types"
	"github.com/user/mindloop/pkg/sse"
)

// ErrEmptyMessage rejects a send whose text is empty or whitespace-only.
var ErrEmptyMessage = errors.New("message is empty")

// State is the controller's send lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Streamer opens the chat stream. *chatapi.Client satisfies it.
type Streamer interface {
	OpenStream(ctx context.Context, sessionID int64, history []types.ChatMessage) (*chatapi.Stream, error)
}

// flight is one send in progress.
type flight struct {
	sessionID int64
	gen       types.Generation
	sendID    types.SendID
	log       *chatlog.Log
	cancel    context.CancelFunc
	onDelta   func(string)
	onDone    func(State)
}

// Controller owns the send state machine. At most one flight exists at a
// time; a new send for the same session implicitly cancels the previous
// one. Cancellation never blocks on reader teardown: the generation bump
// makes any remaining events of the old stream inert.
type Controller struct {
	streamer Streamer
	sessions *session.Store
	reporter *report.Reporter
	window   *history.Window // optional

	mu     sync.Mutex
	state  State
	gens   map[int64]types.Generation
	flight *flight
	active atomic.Int64
}

// New creates a Controller. window may be nil to send untrimmed history.
func New(streamer Streamer, sessions *session.Store, reporter *report.Reporter, window *history.Window) *Controller {
	return &Controller{
		streamer: streamer,
		sessions: sessions,
		reporter: reporter,
		window:   window,
		state:    StateIdle,
		gens:     make(map[int64]types.Generation),
	}
}

// SendOption configures optional behavior on a send.
type SendOption func(*flight)

// WithOnDelta sets a callback invoked for each applied content delta.
func WithOnDelta(fn func(string)) SendOption {
	return func(f *flight) { f.onDelta = fn }
}

// WithOnDone sets a callback invoked once the send reaches a terminal state.
func WithOnDone(fn func(State)) SendOption {
	return func(f *flight) { f.onDone = fn }
}

// Send starts a new exchange on the selected session. The user message and
// its assistant placeholder are appended before the network call; the
// stream is then consumed on its own goroutine. Send itself returns as soon
// as the flight is accepted.
func (c *Controller) Send(ctx context.Context, text string, opts ...SendOption) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	sessionID, ok := c.sessions.Selected()
	if !ok {
		return report.NoActiveSession()
	}

	c.mu.Lock()
	// Policy: a send while another is in flight cancels the prior one.
	prev := c.cancelLocked()

	c.gens[sessionID]++
	f := &flight{
		sessionID: sessionID,
		gen:       c.gens[sessionID],
		sendID:    types.NewSendID(),
		log:       c.sessions.Log(sessionID),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.log.AppendPair(text)

	streamCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	c.flight = f
	c.state = StateSending
	c.mu.Unlock()

	if prev != nil && prev.onDone != nil {
		prev.onDone(StateCancelled)
	}

	slog.Debug("send started", "session_id", sessionID, "send_id", string(f.sendID), "gen", uint64(f.gen))

	c.active.Add(1)
	go c.run(streamCtx, f)
	return nil
}

// Cancel aborts the in-flight send, if any. The generation counter is
// bumped so that buffered chunks still in transit are discarded, the open
// slot is closed, and the network stream is released.
func (c *Controller) Cancel() {
	c.mu.Lock()
	f := c.cancelLocked()
	c.mu.Unlock()

	if f != nil && f.onDone != nil {
		f.onDone(StateCancelled)
	}
}

// cancelLocked tears down the current flight and returns it, or nil.
// Caller must hold mu.
func (c *Controller) cancelLocked() *flight {
	f := c.flight
	if f == nil {
		return nil
	}
	c.gens[f.sessionID]++
	f.cancel()
	f.log.CloseOpenSlot()
	c.state = StateCancelled
	c.flight = nil

	slog.Debug("send cancelled", "session_id", f.sessionID, "send_id", string(f.sendID), "gen", uint64(f.gen))
	return f
}

// State returns the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// WaitIdle blocks until no flight is being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (c *Controller) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if c.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// live reports whether f is still the session's current generation.
func (c *Controller) live(f *flight) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.gens[f.sessionID] == f.gen
}

// run consumes one stream to completion.
func (c *Controller) run(ctx context.Context, f *flight) {
	defer c.active.Add(-1)

	hist := f.log.History()
	if c.window != nil {
		hist = c.window.Fit(hist)
	}

	stream, err := c.streamer.OpenStream(ctx, f.sessionID, hist)
	if err != nil {
		c.fail(f, err)
		return
	}
	defer stream.Close()

	if stream.SessionID != 0 && stream.SessionID != f.sessionID {
		slog.Warn("server pinned a different session",
			"session_id", f.sessionID, "server_session_id", stream.SessionID, "send_id", string(f.sendID))
	}

	c.mu.Lock()
	live := c.gens[f.sessionID] == f.gen
	if live {
		c.state = StateStreaming
	}
	c.mu.Unlock()
	if live {
		// The send has reached the backend; the previous error is stale now.
		c.reporter.Clear(f.sessionID)
	}

	decoder := sse.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, readErr := stream.Body.Read(buf)
		if n > 0 {
			for _, ev := range decoder.Feed(buf[:n]) {
				if !c.live(f) {
					return
				}
				switch ev.Type {
				case sse.EventDelta:
					f.log.PatchOpenSlot(ev.Content)
					if f.onDelta != nil {
						f.onDelta(ev.Content)
					}
				case sse.EventError:
					// An in-band error does not terminate the stream; a
					// valid partial answer may still be arriving.
					c.reporter.Report(f.sessionID, report.InBand(ev.Err))
					slog.Warn("in-band stream error", "session_id", f.sessionID, "send_id", string(f.sendID), "error", ev.Err)
				case sse.EventDone:
					c.finish(f, StateCompleted)
					return
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				// The body ended without the sentinel; keep what arrived.
				c.finish(f, StateCompleted)
				return
			}
			if ctx.Err() != nil {
				// Torn down by Cancel; state already settled there.
				return
			}
			c.fail(f, readErr)
			return
		}
	}
}

// finish moves a still-live flight to a terminal state and closes its slot.
func (c *Controller) finish(f *flight, terminal State) {
	c.mu.Lock()
	if c.gens[f.sessionID] != f.gen {
		c.mu.Unlock()
		return
	}
	f.log.CloseOpenSlot()
	c.state = terminal
	c.flight = nil
	c.mu.Unlock()

	slog.Debug("send finished", "session_id", f.sessionID, "send_id", string(f.sendID), "state", terminal.String())
	if f.onDone != nil {
		f.onDone(terminal)
	}
}

// fail records a classified failure for a still-live flight.
func (c *Controller) fail(f *flight, err error) {
	var classified *report.Error
	if !errors.As(err, &classified) {
		classified = report.Transport(err)
	}

	c.mu.Lock()
	if c.gens[f.sessionID] != f.gen {
		c.mu.Unlock()
		return
	}
	f.log.CloseOpenSlot()
	c.state = StateFailed
	c.flight = nil
	c.mu.Unlock()

	c.reporter.Report(f.sessionID, classified)
	slog.Error("send failed", "session_id", f.sessionID, "send_id", string(f.sendID), "error", classified)
	if f.onDone != nil {
		f.onDone(StateFailed)
	}
}
