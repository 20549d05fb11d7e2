// Package chatapi is the HTTP client for the chat backend: session CRUD
// plus the streaming chat endpoint.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/user/mindloop/internal/report"
	"github.com/user/mindloop/internal/types"
)

// TokenSource supplies the current bearer token, if any. How tokens are
// acquired and refreshed is the caller's concern.
type TokenSource interface {
	Token() (string, bool)
}

// StaticToken is a TokenSource backed by a fixed string. An empty string
// means no token.
type StaticToken string

func (t StaticToken) Token() (string, bool) {
	return string(t), t != ""
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Model   string
}

// Client talks to the chat backend. The streaming endpoint uses a dedicated
// http.Client without a timeout because the response body may stay open
// indefinitely; everything else gets the standard 60s budget.
type Client struct {
	config       *Config
	tokens       TokenSource
	httpClient   *http.Client
	streamClient *http.Client
}

// New creates a client for the backend at config.BaseURL.
func New(config *Config, tokens TokenSource) *Client {
	return &Client{
		config: config,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		streamClient: &http.Client{},
	}
}

// historyMessage is the wire format of one conversation entry in a chat
// request.
type historyMessage struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
}

// chatRequest is the streaming chat request body.
type chatRequest struct {
	Model     string           `json:"model"`
	Messages  []historyMessage `json:"messages"`
	SessionID int64            `json:"session_id"`
}

// createSessionRequest is the session creation body.
type createSessionRequest struct {
	Title *string `json:"title"`
}

// updateSessionRequest is the session rename body.
type updateSessionRequest struct {
	Title string `json:"title"`
}

// Stream is an open chat response stream. Body delivers the raw chunked
// bytes; the caller owns closing it. SessionID is the session the server
// pinned the exchange to, taken from the X-Session-ID response header (zero
// when the header is absent or malformed).
type Stream struct {
	Body      io.ReadCloser
	SessionID int64
}

func (s *Stream) Close() error {
	return s.Body.Close()
}

// newRequest builds a request with JSON content type and the bearer token
// when one is available.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := c.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// doJSON sends a request and decodes a JSON response into out. A non-2xx
// status is returned as an error carrying the status and body excerpt.
func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// ListSessions fetches all chat sessions for the current user.
func (c *Client) ListSessions(ctx context.Context) ([]types.ChatSession, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/ai/sessions", nil)
	if err != nil {
		return nil, err
	}
	var sessions []types.ChatSession
	if err := c.doJSON(req, &sessions); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// CreateSession creates a session on the backend. title may be nil; the
// server then titles the session from its first message.
func (c *Client) CreateSession(ctx context.Context, title *string) (*types.ChatSession, error) {
	body, err := json.Marshal(createSessionRequest{Title: title})
	if err != nil {
		return nil, fmt.Errorf("marshal create session: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/ai/sessions", body)
	if err != nil {
		return nil, err
	}
	var session types.ChatSession
	if err := c.doJSON(req, &session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &session, nil
}

// SessionMessages fetches the full ordered message history of a session.
func (c *Client) SessionMessages(ctx context.Context, sessionID int64) ([]types.ChatMessage, error) {
	path := fmt.Sprintf("/ai/sessions/%d/messages", sessionID)
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var messages []types.ChatMessage
	if err := c.doJSON(req, &messages); err != nil {
		return nil, fmt.Errorf("session messages: %w", err)
	}
	return messages, nil
}

// RenameSession updates a session's title.
func (c *Client) RenameSession(ctx context.Context, sessionID int64, title string) (*types.ChatSession, error) {
	body, err := json.Marshal(updateSessionRequest{Title: title})
	if err != nil {
		return nil, fmt.Errorf("marshal rename session: %w", err)
	}
	path := fmt.Sprintf("/ai/sessions/%d", sessionID)
	req, err := c.newRequest(ctx, http.MethodPatch, path, body)
	if err != nil {
		return nil, err
	}
	var session types.ChatSession
	if err := c.doJSON(req, &session); err != nil {
		return nil, fmt.Errorf("rename session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes a session and its messages on the backend.
func (c *Client) DeleteSession(ctx context.Context, sessionID int64) error {
	path := fmt.Sprintf("/ai/sessions/%d", sessionID)
	req, err := c.newRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if err := c.doJSON(req, nil); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// OpenStream starts a chat exchange and returns the open response stream.
// Failures are classified: connection errors as transport, non-success
// statuses as HTTP failures (the stream is not opened in either case).
func (c *Client) OpenStream(ctx context.Context, sessionID int64, history []types.ChatMessage) (*Stream, error) {
	messages := make([]historyMessage, len(history))
	for i, msg := range history {
		messages[i] = historyMessage{Role: msg.Role, Content: msg.Content}
	}

	body, err := json.Marshal(chatRequest{
		Model:     c.config.Model,
		Messages:  messages,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/ai/chat", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, report.Transport(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, report.HTTP(resp.StatusCode)
	}

	stream := &Stream{Body: resp.Body}
	if header := resp.Header.Get("X-Session-ID"); header != "" {
		if id, err := strconv.ParseInt(header, 10, 64); err == nil {
			stream.SessionID = id
		}
	}
	return stream, nil
}
