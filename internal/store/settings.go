package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetSetting returns the value stored under key, or ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting upserts the value stored under key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
		if err != nil {
			return fmt.Errorf("set setting: %w", err)
		}
		return nil
	})
}

// DeleteSetting removes the value stored under key, if present.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("delete setting: %w", err)
		}
		return nil
	})
}
