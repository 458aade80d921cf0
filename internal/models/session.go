package models

import "time"

// Session modes. Standalone sessions come from the full-page client,
// embedded ones from the popup widget.
const (
	ModeStandalone = "standalone"
	ModeEmbedded   = "embedded"
)

// Session groups a sequence of conversation turns.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
