// Copyright (C) 2024 Yota Hamada
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store is the single durable backing store for every other
// component: the Trigger Scheduler, the Execution Engine, the Environment
// Manager, and the HTTP surface all read and write through it, and it alone
// owns the on-disk SQLite file (spec.md §4.1, §7).
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/scriptyard/scriptyard/internal/backoff"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Sentinel errors shared across the store's per-entity files.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// busyRetryDeadline bounds how long a write waits out SQLITE_BUSY before
// surfacing the error, per spec.md §4.1.
const busyRetryDeadline = 5 * time.Second

// Store wraps a single SQLite connection pool. SQLite only allows one
// writer at a time; rather than serialize writes in Go, the busy_timeout
// pragma plus Deadline-bounded retries (internal/backoff) absorb
// SQLITE_BUSY contention, the same approach the teacher's own writer takes
// at a higher level (agent/agent.go's dbWriter: one owner of the connection,
// explicit Open/Close lifecycle).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path, applies
// pragmas, and runs any pending goose migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection avoids SQLITE_BUSY storms under WAL; reads and
	// writes all share it, one statement at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// withRetry runs fn, retrying on SQLITE_BUSY with exponential backoff up to
// busyRetryDeadline before giving up.
func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	var permanent error
	err := backoff.Deadline(ctx, busyRetryDeadline, 5*time.Millisecond, func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if isBusy(err) {
			return err
		}
		// Non-busy errors are not retryable; stop immediately by
		// reporting success to Deadline and handing the real error
		// back through the captured variable.
		permanent = err
		return nil
	})
	if permanent != nil {
		return permanent
	}
	return err
}

func isBusy(err error) bool {
	return err != nil && (containsAny(err.Error(), "SQLITE_BUSY", "database is locked"))
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// tx runs fn inside a transaction, committing on success and rolling back
// on any error (including a panic, which is re-panicked after rollback).
func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	var txn *sql.Tx
	txn, err = s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = txn.Rollback()
			panic(p)
		}
		if err != nil {
			_ = txn.Rollback()
			return
		}
		err = txn.Commit()
	}()
	err = fn(txn)
	return err
}
