// Package search maintains the full-text index over page bodies. It is a
// downstream consumer of page lifecycle events: callers feed it after the
// storage transaction has committed, and the storage core never consults
// it for correctness.
package search

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/kwgt/luwiki-sub001/internal/store"
	"github.com/kwgt/luwiki-sub001/internal/wiki"
)

type Index struct {
	db *store.DB
}

func New(db *store.DB) *Index {
	return &Index{db: db}
}

// Result is one search hit with an fts5 snippet around the match.
type Result struct {
	PageID  wiki.PageID
	Path    wiki.PagePath
	Snippet string
}

// Reindex replaces the page's index entry. Deleted pages (or drafts
// without a committed revision) are indexed as absent.
func (ix *Index) Reindex(ctx context.Context, page *wiki.Page, body string) error {
	return ix.db.Update(ctx, "fts-reindex", func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM pages_fts WHERE page_id=?", page.ID.String()); err != nil {
			return err
		}
		if !page.Live() {
			return nil
		}
		_, err := tx.Exec(
			"INSERT INTO pages_fts(page_id, path, body) VALUES(?, ?, ?)",
			page.ID.String(), string(page.Path), body)
		return err
	})
}

// Delete drops the page from the index entirely (page hard-deleted).
func (ix *Index) Delete(ctx context.Context, id wiki.PageID) error {
	return ix.db.Update(ctx, "fts-delete", func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM pages_fts WHERE page_id=?", id.String())
		return err
	})
}

// Search returns pages matching the fts5 query, with snippets.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	var results []Result
	err := ix.db.View(ctx, "fts-search", func(tx *sql.Tx) error {
		rows, err := tx.Query(
			"SELECT page_id, path, snippet(pages_fts, 2, '', '', '...', 10) FROM pages_fts WHERE pages_fts MATCH ? LIMIT ?",
			query, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var rawID, rawPath string
			var r Result
			if err := rows.Scan(&rawID, &rawPath, &r.Snippet); err != nil {
				return err
			}
			id, err := wiki.ParsePageID(rawID)
			if err != nil {
				return errors.New("corrupt page id in search index")
			}
			r.PageID = id
			r.Path = wiki.PagePath(rawPath)
			results = append(results, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}
