package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/gateway"
)

// SetConfig upserts one configuration key. A repeated write replaces the
// prior value and bumps the timestamp.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("config key is required")
	}
	now := time.Now().UTC()
	_, err := gateway.Do(ctx, s.gw, func(db *sql.DB) (any, error) {
		return db.ExecContext(ctx,
			`INSERT OR REPLACE INTO user_config (key, value, updated_at) VALUES (?, ?, ?)`,
			key, value, now,
		)
	})
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// Config returns the value for key, or sql.ErrNoRows when unset.
func (s *Store) Config(ctx context.Context, key string) (string, error) {
	return gateway.Do(ctx, s.gw, func(db *sql.DB) (string, error) {
		var value string
		err := db.QueryRowContext(ctx, `SELECT value FROM user_config WHERE key = ?`, key).Scan(&value)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", err
			}
			return "", fmt.Errorf("get config: %w", err)
		}
		return value, nil
	})
}

// AllConfigs returns the whole key-value mapping.
func (s *Store) AllConfigs(ctx context.Context) (map[string]string, error) {
	return gateway.Do(ctx, s.gw, func(db *sql.DB) (map[string]string, error) {
		rows, err := db.QueryContext(ctx, `SELECT key, value FROM user_config`)
		if err != nil {
			return nil, fmt.Errorf("list configs: %w", err)
		}
		defer rows.Close()

		configs := make(map[string]string)
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				return nil, fmt.Errorf("scan config: %w", err)
			}
			configs[k] = v
		}
		return configs, rows.Err()
	})
}
