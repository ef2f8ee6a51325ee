package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scriptyard/scriptyard/internal/models"
)

// PendingTask is one row of the pending_tasks table, a durable record of a
// Run Queue entry. The Store provides insert, delete and list for it, but the
// Run Queue, the Engine and the boot sequence do not call them: enqueued runs
// are not recorded here and nothing is replayed on boot.
type PendingTask struct {
	ID          int64
	ScriptID    int64
	TriggerID   *int64
	TriggeredBy models.TriggeredBy
	EnqueuedAt  time.Time
}

// EnqueuePendingTask durably records a task and returns its id.
func (s *Store) EnqueuePendingTask(ctx context.Context, scriptID int64, triggerID *int64, triggeredBy models.TriggeredBy) (int64, error) {
	var id int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO pending_tasks (script_id, trigger_id, triggered_by, enqueued_at)
			VALUES (?, ?, ?, ?)`, scriptID, triggerID, triggeredBy, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("enqueue pending task: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	return id, err
}

// CompletePendingTask removes the task with the given id.
func (s *Store) CompletePendingTask(ctx context.Context, id int64) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM pending_tasks WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("complete pending task: %w", err)
		}
		return nil
	})
}

// ListPendingTasks returns every stored task, in the order they were
// enqueued.
func (s *Store) ListPendingTasks(ctx context.Context) ([]*PendingTask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, script_id, trigger_id, triggered_by, enqueued_at
		FROM pending_tasks ORDER BY enqueued_at`)
	if err != nil {
		return nil, fmt.Errorf("list pending tasks: %w", err)
	}
	defer rows.Close()

	var out []*PendingTask
	for rows.Next() {
		var t PendingTask
		var triggerID sql.NullInt64
		if err := rows.Scan(&t.ID, &t.ScriptID, &triggerID, &t.TriggeredBy, &t.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan pending task: %w", err)
		}
		if triggerID.Valid {
			t.TriggerID = &triggerID.Int64
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
