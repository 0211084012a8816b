// Package store wraps the embedded sqlite database behind named read and
// write transactions. Every mutation in the wiki core happens inside one
// Update call; a failure anywhere discards all buffered writes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

type DB struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// Open opens or creates the database file. The schema is applied by the
// caller; Open only configures the connection.
func Open(path string) (*DB, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return &DB{db: db, lockTimeout: 10 * time.Second}, nil
}

func (d *DB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// Update runs fn inside a write transaction named for logging. The
// transaction commits only if fn returns nil; busy errors from a competing
// writer retry the whole transaction until lockTimeout elapses.
func (d *DB) Update(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	start := time.Now()
	for attempt := 0; ; attempt++ {
		err := d.runTx(ctx, name, fn)
		if err == nil || !isBusy(err) {
			slog.Debug("tx done", "op", name, "duration_ms", time.Since(start).Milliseconds(), "attempts", attempt+1, "err", err)
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(start) >= d.lockTimeout {
			slog.Debug("tx done", "op", name, "attempts", attempt+1, "err", err, "reason", "timeout")
			return err
		}
		time.Sleep(retryDelay(attempt))
	}
}

// View runs fn inside a read transaction. Reads observe a consistent
// snapshot and never partially see a concurrent Update.
func (d *DB) View(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	return d.Update(ctx, name, fn)
}

func (d *DB) runTx(ctx context.Context, name string, fn func(tx *sql.Tx) error) error {
	slog.Debug("tx begin", "op", name)
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer func() {
		if tx != nil {
			if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, sql.ErrTxDone) {
				slog.Warn("tx rollback failed", "op", name, "err", rerr)
			}
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	tx = nil
	return nil
}

// Exec runs a standalone statement outside any named transaction.
func (d *DB) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return d.db.ExecContext(ctx, query, args...)
}

// QueryRow runs a standalone single-row query.
func (d *DB) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return d.db.QueryRowContext(ctx, query, args...)
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		if se.Code() == sqlite3.SQLITE_BUSY || se.Code() == sqlite3.SQLITE_LOCKED {
			return true
		}
	}
	return false
}

func retryDelay(attempt int) time.Duration {
	delay := time.Duration(attempt+1) * 40 * time.Millisecond
	if delay > 300*time.Millisecond {
		delay = 300 * time.Millisecond
	}
	return delay
}
