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

const defaultDrawHistoryLimit = 20

// AddDrawRecord appends one image-generation invocation to the history.
func (s *Store) AddDrawRecord(ctx context.Context, prompt, imageURL, model, parameters string) error {
	if prompt == "" || imageURL == "" {
		return errors.New("prompt and image url are required")
	}
	now := time.Now().UTC()
	_, err := gateway.Do(ctx, s.gw, func(db *sql.DB) (any, error) {
		var m, p any
		if model != "" {
			m = model
		}
		if parameters != "" {
			p = parameters
		}
		return db.ExecContext(ctx,
			`INSERT INTO draw_history (prompt, image_url, model, parameters, created_at) VALUES (?, ?, ?, ?, ?)`,
			prompt, imageURL, m, p, now,
		)
	})
	if err != nil {
		return fmt.Errorf("add draw record: %w", err)
	}
	return nil
}

// DrawHistory returns up to limit records, most recent first.
func (s *Store) DrawHistory(ctx context.Context, limit int) ([]models.DrawRecord, error) {
	if limit <= 0 {
		limit = defaultDrawHistoryLimit
	}
	return gateway.Do(ctx, s.gw, func(db *sql.DB) ([]models.DrawRecord, error) {
		rows, err := db.QueryContext(ctx,
			`SELECT id, prompt, image_url, model, parameters, created_at FROM draw_history ORDER BY created_at DESC, id DESC LIMIT ?`,
			limit,
		)
		if err != nil {
			return nil, fmt.Errorf("list draw history: %w", err)
		}
		defer rows.Close()

		records := make([]models.DrawRecord, 0, limit)
		for rows.Next() {
			var r models.DrawRecord
			var model, params sql.NullString
			if err := rows.Scan(&r.ID, &r.Prompt, &r.ImageURL, &model, &params, &r.CreatedAt); err != nil {
				return nil, fmt.Errorf("scan draw record: %w", err)
			}
			r.Model = model.String
			r.Parameters = params.String
			records = append(records, r)
		}
		return records, rows.Err()
	})
}
