// internal/types/models.go
package types

import "time"

// Role identifies who authored a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatSession mirrors a server-side chat session. Identity is the
// server-assigned ID; sessions are created server-side and mirrored here.
type ChatSession struct {
	ID        int64     `json:"id"`
	Title     *string   `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatMessage is one entry in a session's message log. ID, SessionID and
// CreatedAt are set by the server and absent on messages the client appends
// locally during a send.
type ChatMessage struct {
	ID        *int64     `json:"id,omitempty"`
	SessionID *int64     `json:"session_id,omitempty"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}
