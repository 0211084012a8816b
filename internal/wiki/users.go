package wiki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/kwgt/luwiki-sub001/internal/auth"
)

// UserInfo is a credential and profile record, independent of the page
// and asset graph. Password hashes never leave this package.
type UserInfo struct {
	ID          string
	Username    string
	DisplayName string
	UpdatedAt   time.Time
}

// AddUser creates a user with a hashed password.
func (w *Wiki) AddUser(ctx context.Context, username, password, displayName string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("empty username: %w", ErrInvalidInput)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidInput)
	}
	id, err := newID()
	if err != nil {
		return err
	}
	err = w.db.Update(ctx, "user-add", func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRow("SELECT id FROM users WHERE username=?", username).Scan(&existing)
		if err == nil {
			return fmt.Errorf("%q: %w", username, ErrUserExists)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		_, err = tx.Exec(
			"INSERT INTO users(id, username, password_hash, display_name, updated_at) VALUES(?, ?, ?, ?, ?)",
			id.String(), username, hash, displayName, w.now().UTC().Unix())
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("user added", "username", username)
	return nil
}

// VerifyUser reports whether the password matches the stored hash. An
// unknown user verifies false without error.
func (w *Wiki) VerifyUser(ctx context.Context, username, password string) (bool, error) {
	var hash string
	err := w.db.View(ctx, "user-verify", func(tx *sql.Tx) error {
		err := tx.QueryRow("SELECT password_hash FROM users WHERE username=?", username).Scan(&hash)
		if errors.Is(err, sql.ErrNoRows) {
			hash = ""
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	if hash == "" {
		return false, nil
	}
	return auth.VerifyPassword(hash, password)
}

// UpdateUser changes the display name and/or password. Passing neither is
// ErrNoChanges.
func (w *Wiki) UpdateUser(ctx context.Context, username string, displayName, password *string) error {
	if displayName == nil && password == nil {
		return ErrNoChanges
	}
	var hash string
	if password != nil {
		var err error
		hash, err = auth.HashPassword(*password)
		if err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalidInput)
		}
	}
	return w.db.Update(ctx, "user-update", func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRow("SELECT id FROM users WHERE username=?", username).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%q: %w", username, ErrUserNotFound)
		}
		if err != nil {
			return err
		}
		if displayName != nil {
			if _, err := tx.Exec("UPDATE users SET display_name=? WHERE id=?", *displayName, id); err != nil {
				return err
			}
		}
		if password != nil {
			if _, err := tx.Exec("UPDATE users SET password_hash=? WHERE id=?", hash, id); err != nil {
				return err
			}
		}
		_, err = tx.Exec("UPDATE users SET updated_at=? WHERE id=?", w.now().UTC().Unix(), id)
		return err
	})
}

// DeleteUser removes the user record.
func (w *Wiki) DeleteUser(ctx context.Context, username string) error {
	return w.db.Update(ctx, "user-delete", func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM users WHERE username=?", username)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%q: %w", username, ErrUserNotFound)
		}
		return nil
	})
}

// GetUser returns the user's profile, without the password hash.
func (w *Wiki) GetUser(ctx context.Context, username string) (*UserInfo, error) {
	var info *UserInfo
	err := w.db.View(ctx, "user-get", func(tx *sql.Tx) error {
		var updated int64
		u := &UserInfo{}
		err := tx.QueryRow(
			"SELECT id, username, display_name, updated_at FROM users WHERE username=?",
			username).
			Scan(&u.ID, &u.Username, &u.DisplayName, &updated)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%q: %w", username, ErrUserNotFound)
		}
		if err != nil {
			return err
		}
		u.UpdatedAt = time.Unix(updated, 0).UTC()
		info = u
		return nil
	})
	return info, err
}

// ListUsers returns all users ordered by username.
func (w *Wiki) ListUsers(ctx context.Context) ([]*UserInfo, error) {
	var users []*UserInfo
	err := w.db.View(ctx, "user-list", func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, username, display_name, updated_at FROM users")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var updated int64
			u := &UserInfo{}
			if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &updated); err != nil {
				return err
			}
			u.UpdatedAt = time.Unix(updated, 0).UTC()
			users = append(users, u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}
