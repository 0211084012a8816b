package wiki

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestAttachAsset(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	pageID := mustCreatePublished(t, w, "/p", "body")

	data := []byte("binary payload")
	id, err := w.AttachAsset(ctx, pageID, "photo.png", "image/png", data, "alice")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	info, err := w.GetAsset(ctx, id)
	if err != nil {
		t.Fatalf("get asset: %v", err)
	}
	if info.PageID != pageID || info.FileName != "photo.png" || info.Mime != "image/png" || info.Size != int64(len(data)) {
		t.Fatalf("bad metadata: %+v", info)
	}
	if info.Deleted || info.Zombie || info.State() != " " {
		t.Fatalf("fresh asset must be active, got state %q", info.State())
	}

	// The blob lands at the sharded path on disk.
	blob := w.AssetBlobPath(id)
	got, err := os.ReadFile(blob)
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("blob content mismatch")
	}
	s := id.String()
	if !strings.Contains(blob, string(os.PathSeparator)+s[:2]+string(os.PathSeparator)+s[2:5]+string(os.PathSeparator)) {
		t.Fatalf("blob path %q is not sharded by id prefix", blob)
	}
}

func TestAttachAssetValidation(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	pageID := mustCreatePublished(t, w, "/p", "body")

	for _, name := range []string{"", "a/b.png", "a\\b.png", "a\x00b"} {
		_, err := w.AttachAsset(ctx, pageID, name, "image/png", nil, "alice")
		if !errors.Is(err, ErrInvalidFileName) {
			t.Fatalf("file name %q: got %v", name, err)
		}
	}

	missing, err := NewPageID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if _, err := w.AttachAsset(ctx, missing, "x.png", "image/png", nil, "alice"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("attach to unknown page: got %v", err)
	}
}

func TestAssetSoftThenHardDelete(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	pageID := mustCreatePublished(t, w, "/p", "body")
	id, err := w.AttachAsset(ctx, pageID, "f.bin", "application/octet-stream", []byte("x"), "alice")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	if err := w.SoftDeleteAsset(ctx, id); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	info, err := w.GetAsset(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !info.Deleted || info.State() != "D" {
		t.Fatalf("state %q, want D", info.State())
	}

	// Soft-deleting twice is a conflict, not idempotent.
	err = w.SoftDeleteAsset(ctx, id)
	if !errors.Is(err, ErrAssetDeleted) {
		t.Fatalf("second soft delete: got %v", err)
	}
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("ErrAssetDeleted must be a conflict, got %v", err)
	}

	blob := w.AssetBlobPath(id)
	if err := w.HardDeleteAsset(ctx, id); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	if _, err := w.GetAsset(ctx, id); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("metadata must be gone, got %v", err)
	}
	if _, err := os.Stat(blob); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("blob must be removed, stat err %v", err)
	}
}

func TestAssetZombieStates(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	pageID := mustCreatePublished(t, w, "/p", "body")
	active, err := w.AttachAsset(ctx, pageID, "a.bin", "application/octet-stream", nil, "alice")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	tombstoned, err := w.AttachAsset(ctx, pageID, "b.bin", "application/octet-stream", nil, "alice")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := w.SoftDeleteAsset(ctx, tombstoned); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if err := w.Delete(ctx, "/p", DeleteOptions{}); err != nil {
		t.Fatalf("delete page: %v", err)
	}

	// Soft-deleting the page cascades: the active asset rides along and
	// turns into a tombstone (deleted and zombie at once).
	for _, tc := range []struct {
		id    AssetID
		state string
	}{{active, "B"}, {tombstoned, "B"}} {
		info, err := w.GetAsset(ctx, tc.id)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if info.State() != tc.state {
			t.Fatalf("asset %s state %q, want %q", tc.id, info.State(), tc.state)
		}
		if !info.Zombie {
			t.Fatalf("asset on deleted page must be zombie")
		}
	}

	// Undelete with assets revives only the cascade victims; the asset
	// deleted on its own stays deleted.
	if err := w.Undelete(ctx, pageID, "", false, true); err != nil {
		t.Fatalf("undelete: %v", err)
	}
	info, err := w.GetAsset(ctx, active)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.State() != " " {
		t.Fatalf("cascaded asset must be active again, state %q", info.State())
	}
	info, err = w.GetAsset(ctx, tombstoned)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.State() != "D" {
		t.Fatalf("independently deleted asset must stay deleted, state %q", info.State())
	}
}

func TestAssetZombieAfterHardDelete(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	pageID := mustCreatePublished(t, w, "/p", "body")
	id, err := w.AttachAsset(ctx, pageID, "f.bin", "application/octet-stream", nil, "alice")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	if err := w.Delete(ctx, "/p", DeleteOptions{Hard: true, Force: true}); err != nil {
		t.Fatalf("hard delete page: %v", err)
	}

	// The asset record survives the page's hard delete as a zombie whose
	// page id points at nothing.
	info, err := w.GetAsset(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !info.Zombie {
		t.Fatalf("asset must be zombie after owner hard delete")
	}
	if info.Deleted {
		t.Fatalf("hard page delete must not mark the asset soft-deleted")
	}
	if info.State() != "Z" {
		t.Fatalf("state %q, want Z", info.State())
	}

	// Hard delete works on zombies; it is the only way out.
	if err := w.HardDeleteAsset(ctx, id); err != nil {
		t.Fatalf("hard delete asset: %v", err)
	}
}

func TestListAssetsByPage(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	p1 := mustCreatePublished(t, w, "/a", "a")
	p2 := mustCreatePublished(t, w, "/b", "b")

	first, err := w.AttachAsset(ctx, p1, "1.bin", "application/octet-stream", nil, "alice")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	second, err := w.AttachAsset(ctx, p1, "2.bin", "application/octet-stream", nil, "alice")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if _, err := w.AttachAsset(ctx, p2, "3.bin", "application/octet-stream", nil, "alice"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	assets, err := w.ListAssetsByPage(ctx, p1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(assets) != 2 || assets[0].ID != first || assets[1].ID != second {
		t.Fatalf("listing wrong: %+v", assets)
	}

	all, err := w.ListAssets(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all = %d assets, want 3", len(all))
	}
}
