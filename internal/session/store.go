// Package session mirrors the backend's chat sessions and tracks which one
// is selected. Each session owns its message log; switching the selection
// first requests cancellation of any in-flight stream so late deltas cannot
// leak into the newly selected session.
package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/mindloop/internal/chatlog"
	"github.com/user/mindloop/internal/types"
)

// Backend is the subset of the chat API the store needs.
type Backend interface {
	ListSessions(ctx context.Context) ([]types.ChatSession, error)
	CreateSession(ctx context.Context, title *string) (*types.ChatSession, error)
	SessionMessages(ctx context.Context, sessionID int64) ([]types.ChatMessage, error)
}

// Store is the client-side session registry.
type Store struct {
	backend Backend

	mu        sync.RWMutex
	sessions  map[int64]*types.ChatSession
	logs      map[int64]*chatlog.Log
	selected  int64
	hasActive bool
	canceller func()
}

// NewStore creates a Store backed by the given API client.
func NewStore(backend Backend) *Store {
	return &Store{
		backend:  backend,
		sessions: make(map[int64]*types.ChatSession),
		logs:     make(map[int64]*chatlog.Log),
	}
}

// SetCanceller registers the function invoked before the selection changes,
// typically the stream controller's Cancel.
func (s *Store) SetCanceller(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.canceller = fn
}

// Refresh fetches the session list and, when a session is selected, its
// message history, concurrently. The mirror is replaced with the fetched
// list; message logs of other sessions are kept as-is.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.RLock()
	selected, hasActive := s.selected, s.hasActive
	s.mu.RUnlock()

	var (
		sessions []types.ChatSession
		messages []types.ChatMessage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sessions, err = s.backend.ListSessions(gctx)
		return err
	})
	if hasActive {
		g.Go(func() error {
			var err error
			messages, err = s.backend.SessionMessages(gctx, selected)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh sessions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions = make(map[int64]*types.ChatSession, len(sessions))
	for i := range sessions {
		s.sessions[sessions[i].ID] = &sessions[i]
	}
	if hasActive {
		s.log(selected).ReplaceAll(messages)
	}
	return nil
}

// List returns the mirrored sessions, newest first.
func (s *Store) List() []types.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, *sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Select makes the given session current. Any in-flight stream is cancelled
// first; cancellation is non-blocking, the old stream's effects become
// inert. The session's history is then fetched and replaces its log.
func (s *Store) Select(ctx context.Context, sessionID int64) error {
	s.mu.Lock()
	if _, ok := s.sessions[sessionID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("unknown session %d", sessionID)
	}
	cancel := s.canceller
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.selected = sessionID
	s.hasActive = true
	s.mu.Unlock()

	messages, err := s.backend.SessionMessages(ctx, sessionID)
	if err != nil {
		// Selection stands; the log keeps its previous content until a
		// refresh succeeds.
		return fmt.Errorf("load session %d history: %w", sessionID, err)
	}
	s.Log(sessionID).ReplaceAll(messages)
	return nil
}

// Create makes a new session on the backend, mirrors it and selects it.
// title may be nil; the server then derives one from the first message.
func (s *Store) Create(ctx context.Context, title *string) (*types.ChatSession, error) {
	created, err := s.backend.CreateSession(ctx, title)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.mu.Lock()
	cancel := s.canceller
	s.sessions[created.ID] = created
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.selected = created.ID
	s.hasActive = true
	s.log(created.ID).ReplaceAll(nil)
	s.mu.Unlock()

	return created, nil
}

// Selected returns the current session ID, if any.
func (s *Store) Selected() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.selected, s.hasActive
}

// Session returns the mirrored metadata for a session.
func (s *Store) Session(sessionID int64) (*types.ChatSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	return sess, ok
}

// Log returns the session's message log, creating an empty one on first
// use. Logs are owned exclusively by their session and never shared.
func (s *Store) Log(sessionID int64) *chatlog.Log {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.log(sessionID)
}

// log returns or creates the session's log. Caller must hold mu.
func (s *Store) log(sessionID int64) *chatlog.Log {
	l, ok := s.logs[sessionID]
	if !ok {
		l = chatlog.New()
		s.logs[sessionID] = l
	}
	return l
}
