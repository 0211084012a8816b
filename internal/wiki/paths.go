package wiki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Path index: the live mapping path -> page id, plus the append-only
// history of paths that pointed at pages since deleted or moved. A path
// can recycle through several pages over time, so the history is a
// multimap ordered by insertion.

func resolvePathTx(tx *sql.Tx, p PagePath) (PageID, bool, error) {
	var raw string
	err := tx.QueryRow("SELECT page_id FROM page_paths WHERE path=?", string(p)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return PageID{}, false, nil
	}
	if err != nil {
		return PageID{}, false, err
	}
	id, err := ParsePageID(raw)
	if err != nil {
		return PageID{}, false, fmt.Errorf("corrupt page id in path index: %w", err)
	}
	return id, true, nil
}

func assignPathTx(tx *sql.Tx, p PagePath, id PageID) error {
	if _, taken, err := resolvePathTx(tx, p); err != nil {
		return err
	} else if taken {
		return fmt.Errorf("%q: %w", p, ErrPathConflict)
	}
	if _, err := tx.Exec("INSERT INTO page_paths(path, page_id) VALUES(?, ?)", string(p), id.String()); err != nil {
		return err
	}
	return nil
}

func retirePathTx(tx *sql.Tx, p PagePath, id PageID) error {
	res, err := tx.Exec("DELETE FROM page_paths WHERE path=? AND page_id=?", string(p), id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("retire %q: %w", p, ErrPageNotFound)
	}
	_, err = tx.Exec("INSERT INTO deleted_paths(path, page_id) VALUES(?, ?)", string(p), id.String())
	return err
}

func deletedHistoryTx(tx *sql.Tx, p PagePath) ([]PageID, error) {
	rows, err := tx.Query("SELECT page_id FROM deleted_paths WHERE path=? ORDER BY seq DESC", string(p))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []PageID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := ParsePageID(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt page id in path history: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// livePathsUnderTx snapshots every live (path, id) mapping at or under
// base, ordered by path. The snapshot is taken before any mutation so a
// recursive operation never observes its own structural changes.
func livePathsUnderTx(tx *sql.Tx, base PagePath) ([]pathEntry, error) {
	rows, err := tx.Query("SELECT path, page_id FROM page_paths ORDER BY path")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []pathEntry
	for rows.Next() {
		var rawPath, rawID string
		if err := rows.Scan(&rawPath, &rawID); err != nil {
			return nil, err
		}
		p := PagePath(rawPath)
		if !base.Contains(p) {
			continue
		}
		id, err := ParsePageID(rawID)
		if err != nil {
			return nil, fmt.Errorf("corrupt page id in path index: %w", err)
		}
		entries = append(entries, pathEntry{path: p, id: id})
	}
	return entries, rows.Err()
}

type pathEntry struct {
	path PagePath
	id   PageID
}

// Resolve returns the page id the path currently maps to, if any.
func (w *Wiki) Resolve(ctx context.Context, p PagePath) (PageID, bool, error) {
	var id PageID
	var ok bool
	err := w.db.View(ctx, "path-resolve", func(tx *sql.Tx) error {
		var err error
		id, ok, err = resolvePathTx(tx, p)
		return err
	})
	return id, ok, err
}

// DeletedHistory returns the page ids that previously held the path,
// newest first. Used to pick an undelete candidate.
func (w *Wiki) DeletedHistory(ctx context.Context, p PagePath) ([]PageID, error) {
	var ids []PageID
	err := w.db.View(ctx, "path-history", func(tx *sql.Tx) error {
		var err error
		ids, err = deletedHistoryTx(tx, p)
		return err
	})
	return ids, err
}
