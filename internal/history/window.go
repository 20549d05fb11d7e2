// Package history trims conversation history to a model's token budget
// before it is sent with a chat request.
package history

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/mindloop/internal/types"
)

// Window is a token budget over conversation history.
type Window struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// New creates a window for the given model. maxTokens is the model's
// context size; reserve is held back for the model's reply.
func New(model string, maxTokens, reserve int) (*Window, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Window{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

// Count returns the token count for a string.
func (w *Window) Count(text string) int {
	return len(w.tokenizer.Encode(text, nil, nil))
}

// Fit drops the oldest messages until the remainder is within the input
// budget. The newest message is always kept, so a single oversized message
// still produces a one-message request. Order is preserved.
func (w *Window) Fit(messages []types.ChatMessage) []types.ChatMessage {
	if len(messages) == 0 {
		return nil
	}
	budget := w.maxTokens - w.reserve

	// Walk backwards accumulating from the newest message.
	used := 0
	start := len(messages)
	for i := len(messages) - 1; i >= 0; i-- {
		cost := w.Count(messages[i].Content) + w.Count(string(messages[i].Role))
		if used+cost > budget && start < len(messages) {
			break
		}
		used += cost
		start = i
	}
	return messages[start:]
}
