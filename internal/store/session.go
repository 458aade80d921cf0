package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatrelay/internal/gateway"
	"chatrelay/internal/models"
)

const defaultSessionLimit = 50

// CreateSession inserts a new session under the caller-provided id.
func (s *Store) CreateSession(ctx context.Context, id, title, mode string) (*models.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("session id is required")
	}
	if mode == "" {
		mode = models.ModeStandalone
	}
	now := time.Now().UTC()
	_, err := gateway.Do(ctx, s.gw, func(db *sql.DB) (any, error) {
		return db.ExecContext(ctx,
			`INSERT INTO sessions (id, title, mode, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			id, title, mode, now, now,
		)
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return &models.Session{ID: id, Title: title, Mode: mode, CreatedAt: now, UpdatedAt: now}, nil
}

// ListSessions returns up to limit sessions ordered by last activity.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]models.Session, error) {
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	return gateway.Do(ctx, s.gw, func(db *sql.DB) ([]models.Session, error) {
		rows, err := db.QueryContext(ctx,
			`SELECT id, title, mode, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT ?`,
			limit,
		)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		defer rows.Close()

		sessions := make([]models.Session, 0, limit)
		for rows.Next() {
			var se models.Session
			if err := rows.Scan(&se.ID, &se.Title, &se.Mode, &se.CreatedAt, &se.UpdatedAt); err != nil {
				return nil, fmt.Errorf("scan session: %w", err)
			}
			sessions = append(sessions, se)
		}
		return sessions, rows.Err()
	})
}

// GetSession returns one session, or sql.ErrNoRows when absent.
func (s *Store) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return gateway.Do(ctx, s.gw, func(db *sql.DB) (*models.Session, error) {
		var se models.Session
		err := db.QueryRowContext(ctx,
			`SELECT id, title, mode, created_at, updated_at FROM sessions WHERE id = ?`,
			id,
		).Scan(&se.ID, &se.Title, &se.Mode, &se.CreatedAt, &se.UpdatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			return nil, fmt.Errorf("get session: %w", err)
		}
		return &se, nil
	})
}

// UpdateSession bumps the session's updated_at and optionally renames it.
// The timestamp never moves backwards: every completed turn lands here.
func (s *Store) UpdateSession(ctx context.Context, id, title string) error {
	now := time.Now().UTC()
	_, err := gateway.Do(ctx, s.gw, func(db *sql.DB) (any, error) {
		if title != "" {
			return db.ExecContext(ctx,
				`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
				title, now, id,
			)
		}
		return db.ExecContext(ctx,
			`UPDATE sessions SET updated_at = ? WHERE id = ?`,
			now, id,
		)
	})
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// TouchSession bumps updated_at without renaming.
func (s *Store) TouchSession(ctx context.Context, id string) error {
	return s.UpdateSession(ctx, id, "")
}

// DeleteSession removes a session; the engine cascades to its journal and
// chat entries. Deleting an id that does not exist is a no-op.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	_, err := gateway.Do(ctx, s.gw, func(db *sql.DB) (any, error) {
		return db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
