package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/scriptyard/scriptyard/internal/models"
)

// CreateScript inserts s and fills in its ID, CreatedAt, and UpdatedAt.
func (s *Store) CreateScript(ctx context.Context, sc *models.Script) error {
	if sc.Slug == "" {
		return fmt.Errorf("%w: slug is required", ErrInvalidInput)
	}
	env, err := json.Marshal(sc.Environment)
	if err != nil {
		return fmt.Errorf("marshal environment: %w", err)
	}
	now := time.Now().UTC()
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO scripts (name, slug, folder_id, content, interpreter_version,
				requirements, environment_json, enabled, auto_save, email_on_completion,
				email_recipients, timeout_seconds, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sc.Name, sc.Slug, sc.FolderID, sc.Content, sc.InterpreterVersion,
			sc.Requirements, string(env), sc.Enabled, sc.AutoSave, sc.EmailOnCompletion,
			strings.Join(sc.EmailRecipients, ","), sc.TimeoutSeconds, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: slug %q", ErrAlreadyExists, sc.Slug)
			}
			return fmt.Errorf("insert script: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		sc.ID = id
		sc.CreatedAt = now
		sc.UpdatedAt = now
		return nil
	})
}

// GetScript retrieves a script by id.
func (s *Store) GetScript(ctx context.Context, id int64) (*models.Script, error) {
	row := s.db.QueryRowContext(ctx, scriptSelectColumns+` WHERE id = ?`, id)
	return scanScript(row)
}

// GetScriptBySlug retrieves a script by its unique slug.
func (s *Store) GetScriptBySlug(ctx context.Context, slug string) (*models.Script, error) {
	row := s.db.QueryRowContext(ctx, scriptSelectColumns+` WHERE slug = ?`, slug)
	return scanScript(row)
}

// ListScriptsOptions filters and paginates ListScripts.
type ListScriptsOptions struct {
	FolderID *int64
	Enabled  *bool
	Limit    int
	Offset   int
}

// ListScripts returns scripts matching opts, ordered by name.
func (s *Store) ListScripts(ctx context.Context, opts ListScriptsOptions) ([]*models.Script, error) {
	query := scriptSelectColumns
	var args []any
	var clauses []string
	if opts.FolderID != nil {
		clauses = append(clauses, "folder_id = ?")
		args = append(args, *opts.FolderID)
	}
	if opts.Enabled != nil {
		clauses = append(clauses, "enabled = ?")
		args = append(args, *opts.Enabled)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY name"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scripts: %w", err)
	}
	defer rows.Close()

	var out []*models.Script
	for rows.Next() {
		sc, err := scanScript(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// UpdateScript overwrites the mutable fields of an existing script and bumps
// UpdatedAt. Returns ErrNotFound if no row matches sc.ID.
func (s *Store) UpdateScript(ctx context.Context, sc *models.Script) error {
	env, err := json.Marshal(sc.Environment)
	if err != nil {
		return fmt.Errorf("marshal environment: %w", err)
	}
	now := time.Now().UTC()
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE scripts SET name = ?, slug = ?, folder_id = ?, content = ?,
				interpreter_version = ?, requirements = ?, environment_json = ?,
				enabled = ?, auto_save = ?, email_on_completion = ?, email_recipients = ?,
				timeout_seconds = ?, updated_at = ?
			WHERE id = ?`,
			sc.Name, sc.Slug, sc.FolderID, sc.Content, sc.InterpreterVersion,
			sc.Requirements, string(env), sc.Enabled, sc.AutoSave, sc.EmailOnCompletion,
			strings.Join(sc.EmailRecipients, ","), sc.TimeoutSeconds, now, sc.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: slug %q", ErrAlreadyExists, sc.Slug)
			}
			return fmt.Errorf("update script: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		sc.UpdatedAt = now
		return nil
	})
}

// DeleteScript removes a script and, via ON DELETE CASCADE, its triggers and
// execution records.
func (s *Store) DeleteScript(ctx context.Context, id int64) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM scripts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete script: %w", err)
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

// BumpRunCounters increments run_total (and run_success if succeeded) and
// sets last_run_at, atomically.
func (s *Store) BumpRunCounters(ctx context.Context, scriptID int64, succeeded bool, at time.Time) error {
	return s.withRetry(ctx, func() error {
		successDelta := 0
		if succeeded {
			successDelta = 1
		}
		_, err := s.db.ExecContext(ctx, `
			UPDATE scripts SET run_total = run_total + 1, run_success = run_success + ?,
				last_run_at = ? WHERE id = ?`, successDelta, at, scriptID)
		if err != nil {
			return fmt.Errorf("bump run counters: %w", err)
		}
		return nil
	})
}

const scriptSelectColumns = `
	SELECT id, name, slug, folder_id, content, interpreter_version, requirements,
		environment_json, enabled, auto_save, email_on_completion, email_recipients,
		timeout_seconds, run_total, run_success, last_run_at, created_at, updated_at
	FROM scripts`

type scanner interface {
	Scan(dest ...any) error
}

func scanScript(row scanner) (*models.Script, error) {
	var sc models.Script
	var envJSON, emailRecipients string
	var folderID sql.NullInt64
	var timeoutSeconds sql.NullInt64
	var lastRunAt sql.NullTime

	if err := row.Scan(&sc.ID, &sc.Name, &sc.Slug, &folderID, &sc.Content,
		&sc.InterpreterVersion, &sc.Requirements, &envJSON, &sc.Enabled, &sc.AutoSave,
		&sc.EmailOnCompletion, &emailRecipients, &timeoutSeconds, &sc.RunTotal,
		&sc.RunSuccess, &lastRunAt, &sc.CreatedAt, &sc.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan script: %w", err)
	}
	if folderID.Valid {
		sc.FolderID = &folderID.Int64
	}
	if timeoutSeconds.Valid {
		v := int(timeoutSeconds.Int64)
		sc.TimeoutSeconds = &v
	}
	if lastRunAt.Valid {
		sc.LastRunAt = &lastRunAt.Time
	}
	if emailRecipients != "" {
		sc.EmailRecipients = strings.Split(emailRecipients, ",")
	}
	if err := json.Unmarshal([]byte(envJSON), &sc.Environment); err != nil {
		return nil, fmt.Errorf("unmarshal environment: %w", err)
	}
	return &sc, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
