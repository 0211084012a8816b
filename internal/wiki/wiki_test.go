package wiki

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

// fakeClock lets tests move time forward past lock expiries.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestWiki(t *testing.T) (*Wiki, *fakeClock) {
	t.Helper()
	dir := t.TempDir()
	clock := &fakeClock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	w, err := Open(filepath.Join(dir, "wiki.db"), filepath.Join(dir, "assets"), Options{
		LockTTL: time.Hour,
		Now:     clock.Now,
	})
	if err != nil {
		t.Fatalf("open wiki: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	if err := w.Init(context.Background()); err != nil {
		t.Fatalf("init wiki: %v", err)
	}
	return w, clock
}

// mustCreatePublished creates a page at path and publishes body as
// revision 1.
func mustCreatePublished(t *testing.T, w *Wiki, path, body string) PageID {
	t.Helper()
	ctx := context.Background()
	id, lock, err := w.Create(ctx, path, "tester")
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	if _, err := w.Publish(ctx, id, body, lock.Token); err != nil {
		t.Fatalf("publish %s: %v", path, err)
	}
	return id
}
