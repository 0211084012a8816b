package wiki

import (
	"context"
	"errors"
	"testing"
)

func TestUserLifecycle(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()

	if err := w.AddUser(ctx, "alice", "s3cret", "Alice"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := w.AddUser(ctx, "alice", "other", "Alice II"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate add: got %v", err)
	}

	ok, err := w.VerifyUser(ctx, "alice", "s3cret")
	if err != nil || !ok {
		t.Fatalf("verify correct password: ok=%v err=%v", ok, err)
	}
	ok, err = w.VerifyUser(ctx, "alice", "wrong")
	if err != nil || ok {
		t.Fatalf("verify wrong password: ok=%v err=%v", ok, err)
	}
	ok, err = w.VerifyUser(ctx, "nobody", "s3cret")
	if err != nil || ok {
		t.Fatalf("verify unknown user must be false without error: ok=%v err=%v", ok, err)
	}

	info, err := w.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.Username != "alice" || info.DisplayName != "Alice" {
		t.Fatalf("bad profile: %+v", info)
	}

	if err := w.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := w.GetUser(ctx, "alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("get after delete: got %v", err)
	}
	if err := w.DeleteUser(ctx, "alice"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("repeat delete: got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	if err := w.AddUser(ctx, "bob", "old", "Bob"); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := w.UpdateUser(ctx, "bob", nil, nil); !errors.Is(err, ErrNoChanges) {
		t.Fatalf("update with nothing to change: got %v", err)
	}
	if err := w.UpdateUser(ctx, "nobody", ptr("X"), nil); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("update unknown user: got %v", err)
	}

	if err := w.UpdateUser(ctx, "bob", ptr("Robert"), ptr("new")); err != nil {
		t.Fatalf("update: %v", err)
	}
	info, err := w.GetUser(ctx, "bob")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.DisplayName != "Robert" {
		t.Fatalf("display name = %q", info.DisplayName)
	}
	ok, err := w.VerifyUser(ctx, "bob", "new")
	if err != nil || !ok {
		t.Fatalf("verify new password: ok=%v err=%v", ok, err)
	}
	ok, err = w.VerifyUser(ctx, "bob", "old")
	if err != nil || ok {
		t.Fatalf("old password must no longer verify: ok=%v err=%v", ok, err)
	}
}

func TestAddUserValidation(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	for _, name := range []string{"", "   "} {
		if err := w.AddUser(ctx, name, "pw", ""); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("username %q: got %v", name, err)
		}
	}
}

func TestListUsers(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	for _, name := range []string{"carol", "alice", "bob"} {
		if err := w.AddUser(ctx, name, "pw", name); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	users, err := w.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 3 || users[0].Username != "alice" || users[1].Username != "bob" || users[2].Username != "carol" {
		t.Fatalf("listing wrong: %+v", users)
	}
}

func ptr(s string) *string { return &s }
