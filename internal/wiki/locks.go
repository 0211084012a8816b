package wiki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// LockInfo is an advisory edit lock on a page. Expiry is cooperative: a
// lock past its expiry behaves as absent everywhere, even before Sweep
// physically removes the row.
type LockInfo struct {
	Token    LockToken
	PageID   PageID
	UserName string
	Expire   time.Time
	// Creation marks the single-use lock issued at draft creation,
	// consumed by the first successful publish.
	Creation bool
}

func lockRowTx(tx *sql.Tx, id PageID) (*LockInfo, error) {
	var rawToken string
	var user string
	var expire int64
	var creation int
	err := tx.QueryRow("SELECT token, user_name, expire, creation FROM locks WHERE page_id=?", id.String()).
		Scan(&rawToken, &user, &expire, &creation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	token, err := ParseLockToken(rawToken)
	if err != nil {
		return nil, fmt.Errorf("corrupt lock token: %w", err)
	}
	return &LockInfo{
		Token:    token,
		PageID:   id,
		UserName: user,
		Expire:   time.Unix(expire, 0).UTC(),
		Creation: creation != 0,
	}, nil
}

// effectiveLockTx returns the page's lock if one exists and has not
// expired as of now.
func effectiveLockTx(tx *sql.Tx, id PageID, now time.Time) (*LockInfo, error) {
	lock, err := lockRowTx(tx, id)
	if err != nil {
		return nil, err
	}
	if lock == nil || lock.Expire.Before(now) {
		return nil, nil
	}
	return lock, nil
}

// checkLockTx gates a mutation: no effective lock passes, a matching
// token passes, an empty token against a held lock is ErrPageLocked and a
// wrong token is ErrLockMismatch.
func checkLockTx(tx *sql.Tx, id PageID, token LockToken, now time.Time) error {
	lock, err := effectiveLockTx(tx, id, now)
	if err != nil {
		return err
	}
	if lock == nil {
		return nil
	}
	if token.IsZero() {
		return fmt.Errorf("page %s held by %s: %w", id, lock.UserName, ErrPageLocked)
	}
	if token != lock.Token {
		return fmt.Errorf("page %s: %w", id, ErrLockMismatch)
	}
	return nil
}

func insertLockTx(tx *sql.Tx, lock LockInfo) error {
	_, err := tx.Exec(
		"INSERT OR REPLACE INTO locks(page_id, token, user_name, expire, creation) VALUES(?, ?, ?, ?, ?)",
		lock.PageID.String(), lock.Token.String(), lock.UserName, lock.Expire.Unix(), boolInt(lock.Creation))
	return err
}

func deleteLockTx(tx *sql.Tx, id PageID) error {
	_, err := tx.Exec("DELETE FROM locks WHERE page_id=?", id.String())
	return err
}

// Lock acquires a manual edit lock for user. Re-acquiring by the same
// holder refreshes the expiry and keeps the token. A non-expired lock by
// someone else fails ErrAlreadyLocked.
func (w *Wiki) Lock(ctx context.Context, id PageID, user string) (LockInfo, error) {
	var out LockInfo
	now := w.now().UTC()
	err := w.db.Update(ctx, "lock-acquire", func(tx *sql.Tx) error {
		page, err := getPageTx(tx, id)
		if err != nil {
			return err
		}
		if page.Deleted {
			return fmt.Errorf("page %s is deleted: %w", id, ErrPageNotFound)
		}
		lock, err := effectiveLockTx(tx, id, now)
		if err != nil {
			return err
		}
		if lock != nil && lock.UserName != user {
			return fmt.Errorf("page %s held by %s: %w", id, lock.UserName, ErrAlreadyLocked)
		}
		if lock != nil {
			lock.Expire = now.Add(w.lockTTL)
			out = *lock
			return insertLockTx(tx, out)
		}
		token, err := NewLockToken()
		if err != nil {
			return err
		}
		out = LockInfo{
			Token:    token,
			PageID:   id,
			UserName: user,
			Expire:   now.Add(w.lockTTL),
		}
		return insertLockTx(tx, out)
	})
	if err != nil {
		return LockInfo{}, err
	}
	slog.Debug("lock acquired", "page_id", out.PageID.String(), "user", out.UserName, "expire", out.Expire)
	return out, nil
}

// Unlock releases the page's lock. A wrong token fails ErrLockMismatch;
// releasing an already unlocked page succeeds.
func (w *Wiki) Unlock(ctx context.Context, id PageID, token LockToken) error {
	return w.db.Update(ctx, "lock-release", func(tx *sql.Tx) error {
		lock, err := lockRowTx(tx, id)
		if err != nil {
			return err
		}
		if lock == nil {
			return nil
		}
		if lock.Token != token {
			return fmt.Errorf("page %s: %w", id, ErrLockMismatch)
		}
		return deleteLockTx(tx, id)
	})
}

// ValidateLock checks token against the page's effective lock. It returns
// nil on a match, ErrLockNotFound when no effective lock exists (expired
// counts as absent) and ErrLockMismatch on a wrong token.
func (w *Wiki) ValidateLock(ctx context.Context, id PageID, token LockToken) error {
	now := w.now().UTC()
	return w.db.View(ctx, "lock-validate", func(tx *sql.Tx) error {
		lock, err := effectiveLockTx(tx, id, now)
		if err != nil {
			return err
		}
		if lock == nil {
			return fmt.Errorf("page %s: %w", id, ErrLockNotFound)
		}
		if lock.Token != token {
			return fmt.Errorf("page %s: %w", id, ErrLockMismatch)
		}
		return nil
	})
}

// Sweep deletes every lock that expired before now and returns how many
// were removed. Idempotent; scheduling is the caller's concern.
func (w *Wiki) Sweep(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := w.db.Update(ctx, "lock-sweep", func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM locks WHERE expire < ?", now.UTC().Unix())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		count = int(n)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		slog.Debug("lock sweep", "removed", count)
	}
	return count, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
