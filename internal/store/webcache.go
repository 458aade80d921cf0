package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/gateway"
	"chatrelay/internal/models"
)

// DefaultWebCacheTTL matches one day of page-content reuse.
const DefaultWebCacheTTL = 24 * time.Hour

// SetWebCache upserts the cached extraction for a URL with the given ttl.
func (s *Store) SetWebCache(ctx context.Context, entry models.WebCacheEntry, ttl time.Duration) error {
	if entry.URL == "" {
		return errors.New("cache url is required")
	}
	if ttl < 0 {
		return errors.New("ttl must not be negative")
	}
	now := time.Now().UTC()
	expires := now.Add(ttl)
	_, err := gateway.Do(ctx, s.gw, func(db *sql.DB) (any, error) {
		var title, summary, jsonData any
		if entry.Title != "" {
			title = entry.Title
		}
		if entry.Summary != "" {
			summary = entry.Summary
		}
		if entry.JSONData != "" {
			jsonData = entry.JSONData
		}
		return db.ExecContext(ctx,
			`INSERT OR REPLACE INTO web_cache (url, title, content, summary, json_data, created_at, expires_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			entry.URL, title, entry.Content, summary, jsonData, now, expires,
		)
	})
	if err != nil {
		return fmt.Errorf("save web cache: %w", err)
	}
	return nil
}

// WebCache returns the unexpired entry for a URL, or sql.ErrNoRows. Expiry
// is lazy: a stale row is treated as absent without being deleted.
func (s *Store) WebCache(ctx context.Context, url string) (*models.WebCacheEntry, error) {
	now := time.Now().UTC()
	return gateway.Do(ctx, s.gw, func(db *sql.DB) (*models.WebCacheEntry, error) {
		var e models.WebCacheEntry
		var title, summary, jsonData sql.NullString
		err := db.QueryRowContext(ctx,
			`SELECT url, title, content, summary, json_data, created_at
			 FROM web_cache
			 WHERE url = ? AND (expires_at IS NULL OR expires_at > ?)`,
			url, now,
		).Scan(&e.URL, &title, &e.Content, &summary, &jsonData, &e.CreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			return nil, fmt.Errorf("get web cache: %w", err)
		}
		e.Title = title.String
		e.Summary = summary.String
		e.JSONData = jsonData.String
		return &e, nil
	})
}
