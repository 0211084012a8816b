// Package wiki is the storage, versioning and locking core of the wiki:
// path-addressed pages with full revision history, soft delete and
// undelete, advisory edit locks and attached binary assets, all mutated
// inside single write transactions of the embedded database.
package wiki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kwgt/luwiki-sub001/internal/store"
)

// Options tune a Wiki handle. The zero value selects defaults.
type Options struct {
	// LockTTL is the lifetime of newly issued edit locks.
	LockTTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

const defaultLockTTL = 30 * time.Minute

type Wiki struct {
	db        *store.DB
	assetRoot string
	lockTTL   time.Duration
	now       func() time.Time
}

// Open opens the database and the asset blob root. Call Init before use.
func Open(dbPath, assetRoot string, opts Options) (*Wiki, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	w := &Wiki{
		db:        db,
		assetRoot: assetRoot,
		lockTTL:   opts.LockTTL,
		now:       opts.Now,
	}
	if w.lockTTL <= 0 {
		w.lockTTL = defaultLockTTL
	}
	if w.now == nil {
		w.now = time.Now
	}
	return w, nil
}

func (w *Wiki) Close() error {
	return w.db.Close()
}

// DB exposes the underlying store for downstream consumers that keep
// their own tables (the full-text indexer).
func (w *Wiki) DB() *store.DB {
	return w.db
}

// Init applies the schema and records its version.
func (w *Wiki) Init(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	var v int
	err := w.db.QueryRow(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		_, err := w.db.Exec(ctx, "INSERT INTO schema_version(version) VALUES(?)", schemaVersion)
		return err
	}
	if err != nil {
		return err
	}
	if v != schemaVersion {
		return fmt.Errorf("unsupported schema version %d (want %d)", v, schemaVersion)
	}
	return nil
}
