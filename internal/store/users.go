package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scriptyard/scriptyard/internal/auth"
	"github.com/scriptyard/scriptyard/internal/models"
)

// Store implements auth.UserStore.
var _ auth.UserStore = (*Store)(nil)

// Create implements auth.UserStore.
func (s *Store) Create(ctx context.Context, u *models.User) error {
	if u.Username == "" {
		return auth.ErrInvalidUsername
	}
	now := time.Now().UTC()
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO users (username, email, password_hash, is_admin, theme, timezone, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			u.Username, u.Email, u.PasswordHash, u.IsAdmin, u.Theme, u.Timezone, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return auth.ErrUserAlreadyExists
			}
			return fmt.Errorf("insert user: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		u.ID = id
		u.CreatedAt = now
		u.UpdatedAt = now
		return nil
	})
}

// GetByID implements auth.UserStore.
func (s *Store) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, userSelectColumns+` WHERE id = ?`, id)
	return scanUser(row)
}

// GetByUsername implements auth.UserStore.
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, userSelectColumns+` WHERE username = ?`, username)
	return scanUser(row)
}

// List implements auth.UserStore.
func (s *Store) List(ctx context.Context) ([]*models.User, error) {
	rows, err := s.db.QueryContext(ctx, userSelectColumns+` ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Update implements auth.UserStore.
func (s *Store) Update(ctx context.Context, u *models.User) error {
	now := time.Now().UTC()
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE users SET username = ?, email = ?, password_hash = ?, is_admin = ?,
				theme = ?, timezone = ?, updated_at = ? WHERE id = ?`,
			u.Username, u.Email, u.PasswordHash, u.IsAdmin, u.Theme, u.Timezone, now, u.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return auth.ErrUserAlreadyExists
			}
			return fmt.Errorf("update user: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return auth.ErrUserNotFound
		}
		u.UpdatedAt = now
		return nil
	})
}

// Delete implements auth.UserStore.
func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return auth.ErrUserNotFound
		}
		return nil
	})
}

// Count implements auth.UserStore.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

const userSelectColumns = `
	SELECT id, username, email, password_hash, is_admin, theme, timezone, created_at, updated_at
	FROM users`

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsAdmin,
		&u.Theme, &u.Timezone, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
