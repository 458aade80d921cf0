package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Content types for formatted chat entries.
const (
	ContentText  = "text"
	ContentImage = "image"
)

// ChatMessage is one human-visible entry in a session's chat log,
// denormalized for direct display.
type ChatMessage struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Role        Role      `json:"role"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type"`
	ImageURL    string    `json:"image_url,omitempty"`
	CreatedAt   time.Time `json:"timestamp"`
}
