package models

import "time"

// DefaultSessionTitle is the placeholder title until enrichment replaces it.
const DefaultSessionTitle = "Session"

// Session is a conversation bound to one document and one user.
type Session struct {
	ID         int64     `json:"id" db:"id"`
	Token      string    `json:"session_token" db:"session_token"`
	Title      string    `json:"title" db:"title"`
	DocumentID int64     `json:"document_id" db:"document_id"`
	UserID     int64     `json:"user_id" db:"user_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is an append-only chat row. Rows are ordered by (CreatedAt, ID).
type ChatMessage struct {
	ID           int64     `json:"id" db:"id"`
	SessionToken string    `json:"session_id" db:"session_token"`
	Role         Role      `json:"role" db:"role"`
	Message      string    `json:"message" db:"message"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// HistoryMessage is one prior message fed back into a prompt.
type HistoryMessage struct {
	Role    Role
	Content string
}
