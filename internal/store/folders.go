package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scriptyard/scriptyard/internal/models"
)

// CreateFolder inserts f and fills in its ID, CreatedAt, and UpdatedAt.
func (s *Store) CreateFolder(ctx context.Context, f *models.Folder) error {
	now := time.Now().UTC()
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO folders (name, parent_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			f.Name, f.ParentID, now, now)
		if err != nil {
			return fmt.Errorf("insert folder: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		f.ID = id
		f.CreatedAt = now
		f.UpdatedAt = now
		return nil
	})
}

// GetFolder retrieves a folder by id.
func (s *Store) GetFolder(ctx context.Context, id int64) (*models.Folder, error) {
	row := s.db.QueryRowContext(ctx, folderSelectColumns+` WHERE id = ?`, id)
	return scanFolder(row)
}

// ListFolders returns every folder, ordered by name.
func (s *Store) ListFolders(ctx context.Context) ([]*models.Folder, error) {
	rows, err := s.db.QueryContext(ctx, folderSelectColumns+` ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var out []*models.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// UpdateFolder renames or reparents an existing folder.
func (s *Store) UpdateFolder(ctx context.Context, f *models.Folder) error {
	now := time.Now().UTC()
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE folders SET name = ?, parent_id = ?, updated_at = ? WHERE id = ?`,
			f.Name, f.ParentID, now, f.ID)
		if err != nil {
			return fmt.Errorf("update folder: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		f.UpdatedAt = now
		return nil
	})
}

// DeleteFolder removes a folder. Child folders are deleted with it via
// ON DELETE CASCADE on folders.parent_id, and scripts inside any deleted
// folder are moved to the root via ON DELETE SET NULL on scripts.folder_id.
func (s *Store) DeleteFolder(ctx context.Context, id int64) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM folders WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete folder: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

const folderSelectColumns = `SELECT id, name, parent_id, created_at, updated_at FROM folders`

func scanFolder(row scanner) (*models.Folder, error) {
	var f models.Folder
	var parentID sql.NullInt64
	if err := row.Scan(&f.ID, &f.Name, &parentID, &f.CreatedAt, &f.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan folder: %w", err)
	}
	if parentID.Valid {
		f.ParentID = &parentID.Int64
	}
	return &f, nil
}
