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

// AppendMessages appends one serialized batch of agent-protocol messages
// to the session's raw journal. The journal is the replay source of truth
// and is never mutated afterwards.
func (s *Store) AppendMessages(ctx context.Context, sessionID string, batch []byte) error {
	if len(batch) == 0 {
		return errors.New("message batch is empty")
	}
	now := time.Now().UTC()
	_, err := gateway.Do(ctx, s.gw, func(db *sql.DB) (any, error) {
		return db.ExecContext(ctx,
			`INSERT INTO messages (session_id, message_list, created_at) VALUES (?, ?, ?)`,
			sessionID, batch, now,
		)
	})
	if err != nil {
		return fmt.Errorf("append messages: %w", err)
	}
	return nil
}

// Messages replays every journal batch for a session in insertion order.
// A session with no turns yields an empty slice, not an error.
func (s *Store) Messages(ctx context.Context, sessionID string) ([][]byte, error) {
	return gateway.Do(ctx, s.gw, func(db *sql.DB) ([][]byte, error) {
		rows, err := db.QueryContext(ctx,
			`SELECT message_list FROM messages WHERE session_id = ? ORDER BY id`,
			sessionID,
		)
		if err != nil {
			return nil, fmt.Errorf("replay messages: %w", err)
		}
		defer rows.Close()

		var batches [][]byte
		for rows.Next() {
			var batch []byte
			if err := rows.Scan(&batch); err != nil {
				return nil, fmt.Errorf("scan message batch: %w", err)
			}
			batches = append(batches, batch)
		}
		return batches, rows.Err()
	})
}

// AddChatMessage appends one formatted, human-visible entry to the
// session's chat log.
func (s *Store) AddChatMessage(ctx context.Context, sessionID string, role models.Role, content, contentType, imageURL string) error {
	if contentType == "" {
		contentType = models.ContentText
	}
	now := time.Now().UTC()
	_, err := gateway.Do(ctx, s.gw, func(db *sql.DB) (any, error) {
		var img any
		if imageURL != "" {
			img = imageURL
		}
		return db.ExecContext(ctx,
			`INSERT INTO chat_messages (session_id, role, content, content_type, image_url, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, role, content, contentType, img, now,
		)
	})
	if err != nil {
		return fmt.Errorf("add chat message: %w", err)
	}
	return nil
}

// ChatMessages lists the formatted chat log in insertion order.
func (s *Store) ChatMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	return gateway.Do(ctx, s.gw, func(db *sql.DB) ([]models.ChatMessage, error) {
		rows, err := db.QueryContext(ctx,
			`SELECT id, session_id, role, content, content_type, image_url, created_at FROM chat_messages WHERE session_id = ? ORDER BY id`,
			sessionID,
		)
		if err != nil {
			return nil, fmt.Errorf("list chat messages: %w", err)
		}
		defer rows.Close()

		messages := make([]models.ChatMessage, 0, 16)
		for rows.Next() {
			var m models.ChatMessage
			var img sql.NullString
			if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.ContentType, &img, &m.CreatedAt); err != nil {
				return nil, fmt.Errorf("scan chat message: %w", err)
			}
			m.ImageURL = img.String
			messages = append(messages, m)
		}
		return messages, rows.Err()
	})
}
