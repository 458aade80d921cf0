package models

import "time"

// WebCacheEntry holds extracted page content keyed by URL. An entry past
// its expiry is treated as absent at read time without being deleted.
type WebCacheEntry struct {
	URL       string    `json:"url"`
	Title     string    `json:"title,omitempty"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary,omitempty"`
	JSONData  string    `json:"json_data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"-"`
}
