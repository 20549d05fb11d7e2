package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/user/mindloop/internal/report"
	"github.com/user/mindloop/internal/types"
)

func newTestClient(url string) *Client {
	return New(&Config{BaseURL: url, Model: "gemma3:4b"}, StaticToken("test-token"))
}

func TestListSessions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/ai/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Error("missing or invalid auth header")
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "title": "first"},
			{"id": 2},
		})
	}))
	defer server.Close()

	sessions, err := newTestClient(server.URL).ListSessions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != 1 || sessions[0].Title == nil || *sessions[0].Title != "first" {
		t.Errorf("unexpected session: %+v", sessions[0])
	}
	if sessions[1].Title != nil {
		t.Errorf("expected nil title, got %v", *sessions[1].Title)
	}
}

func TestCreateSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ai/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		json.Unmarshal(body, &req)
		if req["title"] != nil {
			t.Errorf("expected null title, got %v", req["title"])
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 7})
	}))
	defer server.Close()

	session, err := newTestClient(server.URL).CreateSession(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if session.ID != 7 {
		t.Errorf("expected session 7, got %d", session.ID)
	}
}

func TestSessionMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ai/sessions/5/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "session_id": 5, "role": "user", "content": "hi"},
			{"id": 2, "session_id": 5, "role": "assistant", "content": "hello"},
		})
	}))
	defer server.Close()

	messages, err := newTestClient(server.URL).SessionMessages(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[1].Role != types.RoleAssistant || messages[1].Content != "hello" {
		t.Errorf("unexpected message: %+v", messages[1])
	}
}

func TestRenameAndDeleteSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPatch:
			if r.URL.Path != "/ai/sessions/3" {
				t.Errorf("unexpected patch path: %s", r.URL.Path)
			}
			body, _ := io.ReadAll(r.Body)
			var req map[string]string
			json.Unmarshal(body, &req)
			json.NewEncoder(w).Encode(map[string]any{"id": 3, "title": req["title"]})
		case http.MethodDelete:
			if r.URL.Path != "/ai/sessions/3" {
				t.Errorf("unexpected delete path: %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	session, err := client.RenameSession(context.Background(), 3, "renamed")
	if err != nil {
		t.Fatal(err)
	}
	if session.Title == nil || *session.Title != "renamed" {
		t.Errorf("unexpected title: %+v", session.Title)
	}
	if err := client.DeleteSession(context.Background(), 3); err != nil {
		t.Fatal(err)
	}
}

func TestOpenStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ai/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		json.Unmarshal(body, &req)
		if req["model"] != "gemma3:4b" {
			t.Errorf("expected model gemma3:4b, got %v", req["model"])
		}
		if req["session_id"] != float64(9) {
			t.Errorf("expected session_id 9, got %v", req["session_id"])
		}
		messages, ok := req["messages"].([]any)
		if !ok || len(messages) != 1 {
			t.Fatalf("expected 1 message, got %v", req["messages"])
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Session-ID", "9")
		io.WriteString(w, "data: {\"content\": \"hi\"}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	stream, err := newTestClient(server.URL).OpenStream(context.Background(), 9, []types.ChatMessage{
		{Role: types.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Close()

	if stream.SessionID != 9 {
		t.Errorf("expected adopted session 9, got %d", stream.SessionID)
	}
	body, err := io.ReadAll(stream.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "data: {\"content\": \"hi\"}\n\ndata: [DONE]\n\n" {
		t.Errorf("unexpected body: %q", body)
	}
}

func TestOpenStreamHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).OpenStream(context.Background(), 1, nil)
	var repErr *report.Error
	if !errors.As(err, &repErr) {
		t.Fatalf("expected *report.Error, got %T", err)
	}
	if repErr.Kind != report.KindHTTP || repErr.Status != http.StatusTooManyRequests {
		t.Errorf("unexpected classification: %+v", repErr)
	}
}

func TestOpenStreamTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused

	_, err := newTestClient(server.URL).OpenStream(context.Background(), 1, nil)
	var repErr *report.Error
	if !errors.As(err, &repErr) {
		t.Fatalf("expected *report.Error, got %T", err)
	}
	if repErr.Kind != report.KindTransport {
		t.Errorf("unexpected classification: %+v", repErr)
	}
}

func TestNoTokenOmitsAuthHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Header["Authorization"]; ok {
			t.Error("expected no Authorization header")
		}
		json.NewEncoder(w).Encode([]types.ChatSession{})
	}))
	defer server.Close()

	client := New(&Config{BaseURL: server.URL, Model: "m"}, StaticToken(""))
	if _, err := client.ListSessions(context.Background()); err != nil {
		t.Fatal(err)
	}
}
