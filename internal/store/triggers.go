package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scriptyard/scriptyard/internal/models"
)

// CreateTrigger inserts t and fills in its ID, CreatedAt, and UpdatedAt.
func (s *Store) CreateTrigger(ctx context.Context, t *models.Trigger) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%w: trigger kind %q", ErrInvalidInput, t.Kind)
	}
	now := time.Now().UTC()
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO triggers (script_id, kind, cron_expr, cron_timezone, interval_seconds,
				enabled, last_fired_at, next_fire_at, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ScriptID, t.Kind, t.CronExpr, t.CronTimezone, t.IntervalSecs, t.Enabled,
			t.LastFiredAt, t.NextFireAt, now, now)
		if err != nil {
			return fmt.Errorf("insert trigger: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		t.ID = id
		t.CreatedAt = now
		t.UpdatedAt = now
		return nil
	})
}

// GetTrigger retrieves a trigger by id.
func (s *Store) GetTrigger(ctx context.Context, id int64) (*models.Trigger, error) {
	row := s.db.QueryRowContext(ctx, triggerSelectColumns+` WHERE id = ?`, id)
	return scanTrigger(row)
}

// ListTriggersByScript returns every trigger belonging to scriptID.
func (s *Store) ListTriggersByScript(ctx context.Context, scriptID int64) ([]*models.Trigger, error) {
	rows, err := s.db.QueryContext(ctx, triggerSelectColumns+` WHERE script_id = ? ORDER BY id`, scriptID)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	defer rows.Close()
	return collectTriggers(rows)
}

// ListEnabledTriggers returns every enabled trigger across all scripts, used
// to rebuild the Trigger Scheduler's in-memory timer set on startup.
func (s *Store) ListEnabledTriggers(ctx context.Context) ([]*models.Trigger, error) {
	rows, err := s.db.QueryContext(ctx, triggerSelectColumns+` WHERE enabled = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list enabled triggers: %w", err)
	}
	defer rows.Close()
	return collectTriggers(rows)
}

func collectTriggers(rows *sql.Rows) ([]*models.Trigger, error) {
	var out []*models.Trigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTrigger overwrites the mutable fields of an existing trigger.
func (s *Store) UpdateTrigger(ctx context.Context, t *models.Trigger) error {
	now := time.Now().UTC()
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE triggers SET kind = ?, cron_expr = ?, cron_timezone = ?, interval_seconds = ?,
				enabled = ?, last_fired_at = ?, next_fire_at = ?, updated_at = ?
			WHERE id = ?`,
			t.Kind, t.CronExpr, t.CronTimezone, t.IntervalSecs, t.Enabled,
			t.LastFiredAt, t.NextFireAt, now, t.ID)
		if err != nil {
			return fmt.Errorf("update trigger: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		t.UpdatedAt = now
		return nil
	})
}

// RecordFiring atomically sets last_fired_at and the next computed
// next_fire_at for a trigger, called by the Trigger Scheduler once a firing
// has been handed to the Run Queue or dropped because the queue was full.
func (s *Store) RecordFiring(ctx context.Context, triggerID int64, firedAt time.Time, nextFireAt *time.Time) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE triggers SET last_fired_at = ?, next_fire_at = ?, updated_at = ? WHERE id = ?`,
			firedAt, nextFireAt, time.Now().UTC(), triggerID)
		if err != nil {
			return fmt.Errorf("record firing: %w", err)
		}
		return nil
	})
}

// DeleteTrigger removes a trigger.
func (s *Store) DeleteTrigger(ctx context.Context, id int64) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM triggers WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete trigger: %w", err)
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

const triggerSelectColumns = `
	SELECT id, script_id, kind, cron_expr, cron_timezone, interval_seconds, enabled,
		last_fired_at, next_fire_at, created_at, updated_at
	FROM triggers`

func scanTrigger(row scanner) (*models.Trigger, error) {
	var t models.Trigger
	var lastFiredAt, nextFireAt sql.NullTime
	if err := row.Scan(&t.ID, &t.ScriptID, &t.Kind, &t.CronExpr, &t.CronTimezone,
		&t.IntervalSecs, &t.Enabled, &lastFiredAt, &nextFireAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan trigger: %w", err)
	}
	if lastFiredAt.Valid {
		t.LastFiredAt = &lastFiredAt.Time
	}
	if nextFireAt.Valid {
		t.NextFireAt = &nextFireAt.Time
	}
	return &t, nil
}
