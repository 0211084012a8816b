package wiki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Page is the per-page metadata record. It is never deleted by soft
// delete, only mutated; hard delete erases it entirely.
type Page struct {
	ID    PageID
	Path  PagePath // zero while soft-deleted
	Draft bool
	// Deleted marks soft deletion. Deleted implies Path is zero and
	// LastDeletedPath is set.
	Deleted bool
	// Locked is derived from the lock table at read time.
	Locked bool
	// Oldest and Latest bound the retrievable revisions. Drafts have
	// Oldest == Latest == 0.
	Oldest uint64
	Latest uint64
	// RenameRevisions records the revision current at each move,
	// append-only.
	RenameRevisions []uint64
	LastDeletedPath PagePath
}

// Live reports whether the page is neither a draft nor soft-deleted.
func (p *Page) Live() bool {
	return !p.Draft && !p.Deleted
}

// PageSource is one committed revision body.
type PageSource struct {
	PageID   PageID
	Revision uint64
	Body     string
}

func getPageTx(tx *sql.Tx, id PageID) (*Page, error) {
	var rawPath, rawDeletedPath sql.NullString
	var deleted, draft int
	page := &Page{ID: id}
	err := tx.QueryRow(
		"SELECT path, deleted, draft, oldest, latest, last_deleted_path FROM pages WHERE id=?",
		id.String()).
		Scan(&rawPath, &deleted, &draft, &page.Oldest, &page.Latest, &rawDeletedPath)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrPageNotFound)
	}
	if err != nil {
		return nil, err
	}
	page.Deleted = deleted != 0
	page.Draft = draft != 0
	if rawPath.Valid {
		page.Path = PagePath(rawPath.String)
	}
	if rawDeletedPath.Valid {
		page.LastDeletedPath = PagePath(rawDeletedPath.String)
	}
	rows, err := tx.Query("SELECT revision FROM page_renames WHERE page_id=? ORDER BY revision", id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rev uint64
		if err := rows.Scan(&rev); err != nil {
			return nil, err
		}
		page.RenameRevisions = append(page.RenameRevisions, rev)
	}
	return page, rows.Err()
}

// resolveTargetTx accepts either a page path (leading "/") or a textual
// page id and returns the page.
func resolveTargetTx(tx *sql.Tx, target string) (*Page, error) {
	if strings.HasPrefix(target, "/") {
		p, err := ParsePagePath(target)
		if err != nil {
			return nil, err
		}
		id, ok, err := resolvePathTx(tx, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%q: %w", p, ErrPageNotFound)
		}
		return getPageTx(tx, id)
	}
	id, err := ParsePageID(target)
	if err != nil {
		return nil, err
	}
	return getPageTx(tx, id)
}

// Create allocates a page id, inserts a draft record at path and issues
// the single-use creation lock bound to user.
func (w *Wiki) Create(ctx context.Context, rawPath, user string) (PageID, LockInfo, error) {
	p, err := ParsePagePath(rawPath)
	if err != nil {
		return PageID{}, LockInfo{}, err
	}
	id, err := NewPageID()
	if err != nil {
		return PageID{}, LockInfo{}, err
	}
	token, err := NewLockToken()
	if err != nil {
		return PageID{}, LockInfo{}, err
	}
	lock := LockInfo{
		Token:    token,
		PageID:   id,
		UserName: user,
		Expire:   w.now().UTC().Add(w.lockTTL),
		Creation: true,
	}
	err = w.db.Update(ctx, "page-create", func(tx *sql.Tx) error {
		if err := assignPathTx(tx, p, id); err != nil {
			return err
		}
		if _, err := tx.Exec(
			"INSERT INTO pages(id, path, deleted, draft, oldest, latest) VALUES(?, ?, 0, 1, 0, 0)",
			id.String(), string(p)); err != nil {
			return err
		}
		return insertLockTx(tx, lock)
	})
	if err != nil {
		return PageID{}, LockInfo{}, err
	}
	slog.Info("page created", "page_id", id.String(), "path", p, "user", user)
	return id, lock, nil
}

// Publish commits body as the next revision. The first publish on a draft
// writes revision 1 and consumes the creation lock; later publishes only
// need a token while a manual lock is held.
func (w *Wiki) Publish(ctx context.Context, id PageID, body string, token LockToken) (uint64, error) {
	var revision uint64
	now := w.now().UTC()
	err := w.db.Update(ctx, "page-publish", func(tx *sql.Tx) error {
		page, err := getPageTx(tx, id)
		if err != nil {
			return err
		}
		if page.Deleted {
			return fmt.Errorf("page %s is deleted: %w", id, ErrPageNotFound)
		}
		if err := checkLockTx(tx, id, token, now); err != nil {
			return err
		}
		revision = page.Latest + 1
		if _, err := tx.Exec(
			"INSERT INTO page_sources(page_id, revision, body) VALUES(?, ?, ?)",
			id.String(), revision, body); err != nil {
			return err
		}
		oldest := page.Oldest
		if page.Draft {
			oldest = revision
		}
		if _, err := tx.Exec(
			"UPDATE pages SET draft=0, oldest=?, latest=? WHERE id=?",
			oldest, revision, id.String()); err != nil {
			return err
		}
		// The creation lock is single use, released even when the
		// caller could have published without it.
		lock, err := lockRowTx(tx, id)
		if err != nil {
			return err
		}
		if lock != nil && lock.Creation {
			return deleteLockTx(tx, id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	slog.Info("page published", "page_id", id.String(), "revision", revision)
	return revision, nil
}

// Source returns one revision body. revision 0 selects the latest.
// Revisions pruned by compaction or rollback fail identically.
func (w *Wiki) Source(ctx context.Context, id PageID, revision uint64) (*PageSource, error) {
	var src *PageSource
	err := w.db.View(ctx, "page-source", func(tx *sql.Tx) error {
		page, err := getPageTx(tx, id)
		if err != nil {
			return err
		}
		rev := revision
		if rev == 0 {
			rev = page.Latest
		}
		if page.Latest == 0 || rev < page.Oldest || rev > page.Latest {
			return fmt.Errorf("page %s revision %d: %w", id, rev, ErrRevisionNotFound)
		}
		var body string
		err = tx.QueryRow(
			"SELECT body FROM page_sources WHERE page_id=? AND revision=?",
			id.String(), rev).Scan(&body)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("page %s revision %d: %w", id, rev, ErrRevisionNotFound)
		}
		if err != nil {
			return err
		}
		src = &PageSource{PageID: id, Revision: rev, Body: body}
		return nil
	})
	return src, err
}

// Move reassigns the page's path, recording the old one in the path
// history. With recursive it rewrites every live descendant in the same
// transaction; one locked member aborts the whole batch unless force.
func (w *Wiki) Move(ctx context.Context, target, rawDst string, recursive, force bool) error {
	dst, err := ParsePagePath(rawDst)
	if err != nil {
		return err
	}
	now := w.now().UTC()
	err = w.db.Update(ctx, "page-move", func(tx *sql.Tx) error {
		page, err := resolveTargetTx(tx, target)
		if err != nil {
			return err
		}
		if page.Path.IsZero() {
			return fmt.Errorf("page %s has no live path: %w", page.ID, ErrPageNotFound)
		}
		src := page.Path
		if src == dst {
			return nil
		}
		if src.Contains(dst) {
			return fmt.Errorf("cannot move %q into itself: %w", src, ErrInvalidPath)
		}

		batch := []pathEntry{{path: src, id: page.ID}}
		if recursive {
			batch, err = livePathsUnderTx(tx, src)
			if err != nil {
				return err
			}
		}

		batchIDs := make(map[PageID]bool, len(batch))
		for _, e := range batch {
			batchIDs[e.id] = true
		}

		type rewrite struct {
			entry   pathEntry
			newPath PagePath
		}
		rewrites := make([]rewrite, 0, len(batch))
		for _, e := range batch {
			if !force {
				lock, err := effectiveLockTx(tx, e.id, now)
				if err != nil {
					return err
				}
				if lock != nil {
					return fmt.Errorf("page %s at %q held by %s: %w", e.id, e.path, lock.UserName, ErrPageLocked)
				}
			}
			np, err := e.path.Rebase(src, dst)
			if err != nil {
				return err
			}
			// A new path may coincide with another batch member's old
			// path; those mappings retire below, so only an outside
			// occupant conflicts.
			if id, taken, err := resolvePathTx(tx, np); err != nil {
				return err
			} else if taken && !batchIDs[id] {
				return fmt.Errorf("%q: %w", np, ErrPathConflict)
			}
			rewrites = append(rewrites, rewrite{entry: e, newPath: np})
		}

		// Retire everything before assigning so sibling rewrites inside
		// the batch never collide transiently.
		for _, r := range rewrites {
			if err := retirePathTx(tx, r.entry.path, r.entry.id); err != nil {
				return err
			}
		}
		for _, r := range rewrites {
			if err := assignPathTx(tx, r.newPath, r.entry.id); err != nil {
				return err
			}
			moved, err := getPageTx(tx, r.entry.id)
			if err != nil {
				return err
			}
			if _, err := tx.Exec("UPDATE pages SET path=? WHERE id=?", string(r.newPath), r.entry.id.String()); err != nil {
				return err
			}
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO page_renames(page_id, revision) VALUES(?, ?)",
				r.entry.id.String(), moved.Latest); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("page moved", "target", target, "dst", dst, "recursive", recursive)
	return nil
}

// DeleteOptions control Delete.
type DeleteOptions struct {
	// Hard permanently erases metadata and all revisions. It requires
	// the page to be soft-deleted already unless Force is set.
	Hard      bool
	Recursive bool
	Force     bool
	Token     LockToken
}

// Delete soft-deletes (or with Hard, erases) the target. Recursive
// deletion pre-checks every descendant's lock before mutating anything.
func (w *Wiki) Delete(ctx context.Context, target string, opts DeleteOptions) error {
	now := w.now().UTC()
	err := w.db.Update(ctx, "page-delete", func(tx *sql.Tx) error {
		page, err := resolveTargetTx(tx, target)
		if err != nil {
			return err
		}

		var batch []*Page
		switch {
		case !page.Deleted && !page.Path.IsZero():
			entries := []pathEntry{{path: page.Path, id: page.ID}}
			if opts.Recursive {
				entries, err = livePathsUnderTx(tx, page.Path)
				if err != nil {
					return err
				}
			}
			for _, e := range entries {
				member, err := getPageTx(tx, e.id)
				if err != nil {
					return err
				}
				batch = append(batch, member)
			}
		case page.Deleted && opts.Hard:
			batch = append(batch, page)
			if opts.Recursive && !page.LastDeletedPath.IsZero() {
				others, err := deletedPagesUnderTx(tx, page.LastDeletedPath)
				if err != nil {
					return err
				}
				for _, other := range others {
					if other.ID != page.ID {
						batch = append(batch, other)
					}
				}
			}
		case page.Deleted:
			return fmt.Errorf("page %s: %w", page.ID, ErrPageNotFound)
		default:
			return fmt.Errorf("page %s: %w", page.ID, ErrPageNotFound)
		}

		// Fail fast: every lock is checked before the first mutation so
		// a locked descendant leaves the whole subtree untouched.
		if !opts.Force {
			for _, member := range batch {
				if err := checkLockTx(tx, member.ID, opts.Token, now); err != nil {
					return err
				}
			}
		}

		if opts.Hard {
			for _, member := range batch {
				if !member.Deleted && !opts.Force {
					return fmt.Errorf("page %s is live, hard delete needs force: %w", member.ID, ErrPageNotDeleted)
				}
			}
			for _, member := range batch {
				if err := hardDeletePageTx(tx, member); err != nil {
					return err
				}
			}
			return nil
		}

		for _, member := range batch {
			if err := softDeletePageTx(tx, member); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("page deleted", "target", target, "hard", opts.Hard, "recursive", opts.Recursive)
	return nil
}

func softDeletePageTx(tx *sql.Tx, page *Page) error {
	if err := retirePathTx(tx, page.Path, page.ID); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"UPDATE pages SET deleted=1, path=NULL, last_deleted_path=? WHERE id=?",
		string(page.Path), page.ID.String()); err != nil {
		return err
	}
	if err := deleteLockTx(tx, page.ID); err != nil {
		return err
	}
	// Cascade: active assets ride along with the page so undelete can
	// bring them back. Independently deleted assets keep their state.
	_, err := tx.Exec(
		"UPDATE assets SET deleted=1, deleted_with_page=1 WHERE page_id=? AND deleted=0",
		page.ID.String())
	return err
}

func hardDeletePageTx(tx *sql.Tx, page *Page) error {
	if !page.Path.IsZero() {
		if _, err := tx.Exec("DELETE FROM page_paths WHERE path=? AND page_id=?",
			string(page.Path), page.ID.String()); err != nil {
			return err
		}
	}
	id := page.ID.String()
	for _, stmt := range []string{
		"DELETE FROM page_sources WHERE page_id=?",
		"DELETE FROM page_renames WHERE page_id=?",
		"DELETE FROM deleted_paths WHERE page_id=?",
		"DELETE FROM locks WHERE page_id=?",
		"DELETE FROM pages WHERE id=?",
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return err
		}
	}
	// Assets are never hard-deleted in cascade; they turn zombie once
	// their owner stops resolving.
	return nil
}

func deletedPagesUnderTx(tx *sql.Tx, base PagePath) ([]*Page, error) {
	rows, err := tx.Query("SELECT id FROM pages WHERE deleted=1 AND last_deleted_path IS NOT NULL")
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
			return nil, fmt.Errorf("corrupt page id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	var pages []*Page
	for _, id := range ids {
		page, err := getPageTx(tx, id)
		if err != nil {
			return nil, err
		}
		if base.Contains(page.LastDeletedPath) {
			pages = append(pages, page)
		}
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].LastDeletedPath < pages[j].LastDeletedPath })
	return pages, nil
}

// Undelete restores a soft-deleted page to restoreTo (its last deleted
// path when empty). With recursive it replays the restoration over every
// deleted page under the original subtree; withAssets also revives assets
// that were deleted as a side effect of the page's deletion.
func (w *Wiki) Undelete(ctx context.Context, id PageID, restoreTo string, recursive, withAssets bool) error {
	err := w.db.Update(ctx, "page-undelete", func(tx *sql.Tx) error {
		page, err := getPageTx(tx, id)
		if err != nil {
			return err
		}
		if !page.Deleted {
			return fmt.Errorf("page %s: %w", id, ErrPageNotDeleted)
		}
		orig := page.LastDeletedPath
		if orig.IsZero() {
			return fmt.Errorf("page %s has no recorded deleted path: %w", id, ErrPageNotFound)
		}
		dst := orig
		if restoreTo != "" {
			dst, err = ParsePagePath(restoreTo)
			if err != nil {
				return err
			}
		}

		batch := []*Page{page}
		if recursive {
			others, err := deletedPagesUnderTx(tx, orig)
			if err != nil {
				return err
			}
			for _, other := range others {
				if other.ID != page.ID {
					batch = append(batch, other)
				}
			}
		}

		taken := map[PagePath]bool{}
		type restore struct {
			page    *Page
			newPath PagePath
		}
		restores := make([]restore, 0, len(batch))
		for _, member := range batch {
			np, err := member.LastDeletedPath.Rebase(orig, dst)
			if err != nil {
				return err
			}
			if taken[np] {
				return fmt.Errorf("%q restored twice: %w", np, ErrPathConflict)
			}
			taken[np] = true
			if _, occupied, err := resolvePathTx(tx, np); err != nil {
				return err
			} else if occupied {
				return fmt.Errorf("%q: %w", np, ErrPathConflict)
			}
			restores = append(restores, restore{page: member, newPath: np})
		}

		for _, r := range restores {
			if err := assignPathTx(tx, r.newPath, r.page.ID); err != nil {
				return err
			}
			if _, err := tx.Exec(
				"UPDATE pages SET deleted=0, path=?, last_deleted_path=NULL WHERE id=?",
				string(r.newPath), r.page.ID.String()); err != nil {
				return err
			}
			if withAssets {
				if _, err := tx.Exec(
					"UPDATE assets SET deleted=0, deleted_with_page=0 WHERE page_id=? AND deleted=1 AND deleted_with_page=1",
					r.page.ID.String()); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("page undeleted", "page_id", id.String(), "restore_to", restoreTo, "recursive", recursive)
	return nil
}

// RollbackTo prunes every revision above revision and lowers latest. The
// pruning is physical and irreversible, unlike reading an old revision.
func (w *Wiki) RollbackTo(ctx context.Context, id PageID, revision uint64) error {
	now := w.now().UTC()
	return w.db.Update(ctx, "page-rollback", func(tx *sql.Tx) error {
		page, err := getPageTx(tx, id)
		if err != nil {
			return err
		}
		lock, err := effectiveLockTx(tx, id, now)
		if err != nil {
			return err
		}
		if lock != nil {
			return fmt.Errorf("page %s held by %s: %w", id, lock.UserName, ErrPageLocked)
		}
		if page.Latest == 0 || revision < page.Oldest || revision > page.Latest {
			return fmt.Errorf("page %s revision %d not in [%d,%d]: %w",
				id, revision, page.Oldest, page.Latest, ErrRevisionOutOfRange)
		}
		if _, err := tx.Exec(
			"DELETE FROM page_sources WHERE page_id=? AND revision>?",
			id.String(), revision); err != nil {
			return err
		}
		_, err = tx.Exec("UPDATE pages SET latest=? WHERE id=?", revision, id.String())
		return err
	})
}

// Compact prunes every revision below keepFrom and raises oldest. latest
// is untouched.
func (w *Wiki) Compact(ctx context.Context, id PageID, keepFrom uint64) error {
	return w.db.Update(ctx, "page-compact", func(tx *sql.Tx) error {
		page, err := getPageTx(tx, id)
		if err != nil {
			return err
		}
		if page.Latest == 0 || keepFrom < page.Oldest || keepFrom > page.Latest {
			return fmt.Errorf("page %s revision %d not in [%d,%d]: %w",
				id, keepFrom, page.Oldest, page.Latest, ErrRevisionOutOfRange)
		}
		if _, err := tx.Exec(
			"DELETE FROM page_sources WHERE page_id=? AND revision<?",
			id.String(), keepFrom); err != nil {
			return err
		}
		_, err = tx.Exec("UPDATE pages SET oldest=? WHERE id=?", keepFrom, id.String())
		return err
	})
}

// GetPage returns the page record with its derived lock state.
func (w *Wiki) GetPage(ctx context.Context, id PageID) (*Page, error) {
	var page *Page
	now := w.now().UTC()
	err := w.db.View(ctx, "page-get", func(tx *sql.Tx) error {
		var err error
		page, err = getPageTx(tx, id)
		if err != nil {
			return err
		}
		lock, err := effectiveLockTx(tx, id, now)
		if err != nil {
			return err
		}
		page.Locked = lock != nil
		return nil
	})
	return page, err
}

// ListPages returns all pages ordered by path, optionally including
// soft-deleted ones (sorted by their last deleted path at the end).
func (w *Wiki) ListPages(ctx context.Context, includeDeleted bool) ([]*Page, error) {
	var pages []*Page
	now := w.now().UTC()
	err := w.db.View(ctx, "page-list", func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id FROM pages")
		if err != nil {
			return err
		}
		defer rows.Close()
		var ids []PageID
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			id, err := ParsePageID(raw)
			if err != nil {
				return fmt.Errorf("corrupt page id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			page, err := getPageTx(tx, id)
			if err != nil {
				return err
			}
			if page.Deleted && !includeDeleted {
				continue
			}
			lock, err := effectiveLockTx(tx, id, now)
			if err != nil {
				return err
			}
			page.Locked = lock != nil
			pages = append(pages, page)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(pages, func(i, j int) bool {
		pi, pj := pages[i], pages[j]
		if pi.Deleted != pj.Deleted {
			return !pi.Deleted
		}
		ki, kj := pi.Path, pj.Path
		if pi.Deleted {
			ki, kj = pi.LastDeletedPath, pj.LastDeletedPath
		}
		return ki < kj
	})
	return pages, nil
}
