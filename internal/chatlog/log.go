// Package chatlog holds the ordered message sequence for a single chat
// session. Messages are only ever appended or replaced wholesale; the one
// exception is the open assistant slot, whose content grows while a stream
// is in flight.
package chatlog

import (
	"strings"
	"sync"

	"github.com/user/mindloop/internal/types"
)

// Log is the message log of one session. All methods are safe for
// concurrent use; readers always observe a complete sequence.
type Log struct {
	mu       sync.RWMutex
	messages []types.ChatMessage
	open     bool
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// ReplaceAll swaps in the full message history fetched from the backend.
// Any open slot is closed; historical messages are never patchable.
func (l *Log) ReplaceAll(messages []types.ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages[:0:0], messages...)
	l.open = false
}

// AppendPair atomically appends the user message and an empty assistant
// placeholder, which becomes the open slot for the send in flight. Both
// messages appear together or not at all.
func (l *Log) AppendPair(userText string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages,
		types.ChatMessage{Role: types.RoleUser, Content: userText},
		types.ChatMessage{Role: types.RoleAssistant},
	)
	l.open = true
}

// PatchOpenSlot appends delta to the open assistant slot. It is a silent
// no-op when the slot has already been closed, which is how late deltas
// from a cancelled stream are absorbed.
func (l *Log) PatchOpenSlot(delta string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open || len(l.messages) == 0 {
		return
	}
	l.messages[len(l.messages)-1].Content += delta
}

// CloseOpenSlot marks the slot no longer patchable. Idempotent.
func (l *Log) CloseOpenSlot() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.open = false
}

// Open reports whether an assistant slot is currently accepting deltas.
func (l *Log) Open() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.open
}

// Messages returns a copy of the current sequence.
func (l *Log) Messages() []types.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]types.ChatMessage(nil), l.messages...)
}

// Len returns the number of messages in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.messages)
}

// History returns the conversation to send to the backend for the current
// flight: every message up to and including the latest user message, with
// the empty assistant placeholder excluded.
func (l *Log) History() []types.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()

	history := make([]types.ChatMessage, 0, len(l.messages))
	for i, msg := range l.messages {
		if i == len(l.messages)-1 && msg.Role == types.RoleAssistant && strings.TrimSpace(msg.Content) == "" {
			continue
		}
		history = append(history, msg)
	}
	return history
}
