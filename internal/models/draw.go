package models

import "time"

// DrawRecord is one image-generation invocation kept for history display.
type DrawRecord struct {
	ID         int64     `json:"id"`
	Prompt     string    `json:"prompt"`
	ImageURL   string    `json:"image_url"`
	Model      string    `json:"model"`
	Parameters string    `json:"parameters,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
