package tutor

import "time"

// MessageRole identifies the author side of a chat message.
type MessageRole string

// Message roles.
const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// ChatSession is a server-tracked conversation thread with the AI tutor.
type ChatSession struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// Message is one entry in a session's ordered, append-only log.
type Message struct {
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	ImageURL  string      `json:"image_url,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Wire types for the tutor REST surface.

type createSessionResponse struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}

type listSessionsResponse struct {
	Sessions []ChatSession `json:"sessions"`
}

type historyResponse struct {
	Messages []Message `json:"messages"`
}

type queryRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	ImageURL  string `json:"image_url,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type queryResponse struct {
	Answer string `json:"answer"`
}
