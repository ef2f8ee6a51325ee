package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/scriptyard/scriptyard/internal/models"
)

// CreateExecutionRecord inserts rec (normally in RunRunning status) and
// fills in its ID.
func (s *Store) CreateExecutionRecord(ctx context.Context, rec *models.ExecutionRecord) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO execution_records (script_id, trigger_id, started_at, status, triggered_by)
			VALUES (?, ?, ?, ?, ?)`,
			rec.ScriptID, rec.TriggerID, rec.StartedAt, rec.Status, rec.TriggeredBy)
		if err != nil {
			return fmt.Errorf("insert execution record: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		rec.ID = id
		return nil
	})
}

// FinishExecutionRecord writes the terminal fields of rec. Called exactly
// once per run, when the Execution Engine reaches a terminal state.
func (s *Store) FinishExecutionRecord(ctx context.Context, rec *models.ExecutionRecord) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE execution_records SET finished_at = ?, duration_ms = ?, status = ?,
				exit_code = ?, stdout = ?, stdout_truncated = ?, stderr = ?,
				stderr_truncated = ?, memory_mb = ?, cpu_percent = ?
			WHERE id = ?`,
			rec.FinishedAt, rec.DurationMs, rec.Status, rec.ExitCode, rec.Stdout,
			rec.StdoutTruncated, rec.Stderr, rec.StderrTruncated, rec.MemoryMB,
			rec.CPUPercent, rec.ID)
		if err != nil {
			return fmt.Errorf("finish execution record: %w", err)
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

// GetExecutionRecord retrieves one record by id.
func (s *Store) GetExecutionRecord(ctx context.Context, id int64) (*models.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, executionRecordSelectColumns+` WHERE id = ?`, id)
	return scanExecutionRecord(row)
}

// ListExecutionRecordsOptions filters and paginates ListExecutionRecords.
type ListExecutionRecordsOptions struct {
	ScriptID *int64
	Status   *models.RunStatus
	Limit    int
	Offset   int
}

// ListExecutionRecords returns records matching opts, newest first.
func (s *Store) ListExecutionRecords(ctx context.Context, opts ListExecutionRecordsOptions) ([]*models.ExecutionRecord, error) {
	query := executionRecordSelectColumns
	var args []any
	var clauses []string
	if opts.ScriptID != nil {
		clauses = append(clauses, "script_id = ?")
		args = append(args, *opts.ScriptID)
	}
	if opts.Status != nil {
		clauses = append(clauses, "status = ?")
		args = append(args, *opts.Status)
	}
	if len(clauses) > 0 {
		query += " WHERE "
		for i, c := range clauses {
			if i > 0 {
				query += " AND "
			}
			query += c
		}
	}
	query += " ORDER BY started_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list execution records: %w", err)
	}
	defer rows.Close()

	var out []*models.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecutionRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DeleteExecutionRecord removes a single record by id. Returns ErrNotFound
// if no row matches.
func (s *Store) DeleteExecutionRecord(ctx context.Context, id int64) error {
	return s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM execution_records WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete execution record: %w", err)
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

// DeleteExecutionRecordsOlderThan keeps the keepNewest most recent records
// of one script (by started_at) and deletes the rest, returning how many
// were deleted. It applies no age limit: retention_max_age_days is not
// used here.
func (s *Store) DeleteExecutionRecordsOlderThan(ctx context.Context, scriptID int64, keepNewest int) (int64, error) {
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM execution_records WHERE script_id = ? AND id NOT IN (
				SELECT id FROM execution_records WHERE script_id = ?
				ORDER BY started_at DESC LIMIT ?)`,
			scriptID, scriptID, keepNewest)
		if err != nil {
			return fmt.Errorf("delete old execution records: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

const executionRecordSelectColumns = `
	SELECT id, script_id, trigger_id, started_at, finished_at, duration_ms, status,
		exit_code, stdout, stdout_truncated, stderr, stderr_truncated, memory_mb,
		cpu_percent, triggered_by
	FROM execution_records`

func scanExecutionRecord(row scanner) (*models.ExecutionRecord, error) {
	var rec models.ExecutionRecord
	var triggerID sql.NullInt64
	var finishedAt sql.NullTime
	var durationMs sql.NullInt64
	var exitCode sql.NullInt64
	var memoryMB, cpuPercent sql.NullFloat64

	if err := row.Scan(&rec.ID, &rec.ScriptID, &triggerID, &rec.StartedAt, &finishedAt,
		&durationMs, &rec.Status, &exitCode, &rec.Stdout, &rec.StdoutTruncated, &rec.Stderr,
		&rec.StderrTruncated, &memoryMB, &cpuPercent, &rec.TriggeredBy); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan execution record: %w", err)
	}
	if triggerID.Valid {
		rec.TriggerID = &triggerID.Int64
	}
	if finishedAt.Valid {
		rec.FinishedAt = &finishedAt.Time
	}
	if durationMs.Valid {
		rec.DurationMs = &durationMs.Int64
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		rec.ExitCode = &v
	}
	if memoryMB.Valid {
		rec.MemoryMB = &memoryMB.Float64
	}
	if cpuPercent.Valid {
		rec.CPUPercent = &cpuPercent.Float64
	}
	return &rec, nil
}
