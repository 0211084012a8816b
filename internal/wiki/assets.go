package wiki

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	storagefs "github.com/kwgt/luwiki-sub001/internal/storage/fs"
)

// AssetInfo is the metadata record of one attached binary. Zombie is
// derived at read time from the page graph and never persisted: an asset
// is a zombie when its owning page no longer resolves live and
// non-deleted.
type AssetInfo struct {
	ID         AssetID
	PageID     PageID // zero when detached
	FileName   string
	Mime       string
	Size       int64
	UploadedAt time.Time
	UserName   string
	Deleted    bool
	Zombie     bool
}

// State returns the display letter for the soft-delete x zombie
// cross-product: active " ", deleted "D", zombie "Z", tombstoned "B".
func (a *AssetInfo) State() string {
	switch {
	case a.Deleted && a.Zombie:
		return "B"
	case a.Deleted:
		return "D"
	case a.Zombie:
		return "Z"
	default:
		return " "
	}
}

// BlobPath computes the on-disk location of the asset's bytes under root:
// a two-level shard (first 2, next 3 characters of the textual id) bounds
// directory fan-out. Degenerate short ids fall back to a flat path.
func BlobPath(root string, id AssetID) string {
	s := id.String()
	if len(s) < 5 {
		return filepath.Join(root, s)
	}
	return filepath.Join(root, s[:2], s[2:5], s)
}

// AttachAsset stores data as a new asset owned by pageID and records its
// metadata. The blob is written before the metadata commits, so a crash
// between the two leaves an unreferenced file, never a dangling record.
func (w *Wiki) AttachAsset(ctx context.Context, pageID PageID, fileName, mime string, data []byte, user string) (AssetID, error) {
	if err := ValidateFileName(fileName); err != nil {
		return AssetID{}, err
	}
	id, err := NewAssetID()
	if err != nil {
		return AssetID{}, err
	}

	blob := BlobPath(w.assetRoot, id)
	if err := storagefs.WriteFileAtomic(blob, data, 0o644); err != nil {
		return AssetID{}, fmt.Errorf("write blob: %w", err)
	}

	err = w.db.Update(ctx, "asset-attach", func(tx *sql.Tx) error {
		if _, err := getPageTx(tx, pageID); err != nil {
			return err
		}
		_, err := tx.Exec(
			"INSERT INTO assets(id, page_id, file_name, mime, size, uploaded_at, user_name, deleted) VALUES(?, ?, ?, ?, ?, ?, ?, 0)",
			id.String(), pageID.String(), fileName, mime, len(data), w.now().UTC().Unix(), user)
		return err
	})
	if err != nil {
		_ = os.Remove(blob)
		return AssetID{}, err
	}
	slog.Info("asset attached", "asset_id", id.String(), "page_id", pageID.String(), "file_name", fileName, "size", len(data))
	return id, nil
}

// SoftDeleteAsset marks the asset deleted. Deleting twice is a conflict.
func (w *Wiki) SoftDeleteAsset(ctx context.Context, id AssetID) error {
	return w.db.Update(ctx, "asset-soft-delete", func(tx *sql.Tx) error {
		var deleted int
		err := tx.QueryRow("SELECT deleted FROM assets WHERE id=?", id.String()).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s: %w", id, ErrAssetNotFound)
		}
		if err != nil {
			return err
		}
		if deleted != 0 {
			return fmt.Errorf("%s: %w", id, ErrAssetDeleted)
		}
		_, err = tx.Exec("UPDATE assets SET deleted=1, deleted_with_page=0 WHERE id=?", id.String())
		return err
	})
}

// HardDeleteAsset erases metadata and blob unconditionally, in any state
// including tombstoned.
func (w *Wiki) HardDeleteAsset(ctx context.Context, id AssetID) error {
	err := w.db.Update(ctx, "asset-hard-delete", func(tx *sql.Tx) error {
		res, err := tx.Exec("DELETE FROM assets WHERE id=?", id.String())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s: %w", id, ErrAssetNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := os.Remove(BlobPath(w.assetRoot, id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}

// GetAsset returns one asset with its derived zombie state.
func (w *Wiki) GetAsset(ctx context.Context, id AssetID) (*AssetInfo, error) {
	var info *AssetInfo
	err := w.db.View(ctx, "asset-get", func(tx *sql.Tx) error {
		var err error
		info, err = getAssetTx(tx, id)
		return err
	})
	return info, err
}

// ListAssetsByPage returns the page's assets ordered by id (upload time).
func (w *Wiki) ListAssetsByPage(ctx context.Context, pageID PageID) ([]*AssetInfo, error) {
	return w.listAssets(ctx, "asset-list-page", "SELECT id FROM assets WHERE page_id=?", pageID.String())
}

// ListAssets returns every asset ordered by id.
func (w *Wiki) ListAssets(ctx context.Context) ([]*AssetInfo, error) {
	return w.listAssets(ctx, "asset-list", "SELECT id FROM assets")
}

func (w *Wiki) listAssets(ctx context.Context, op, query string, args ...any) ([]*AssetInfo, error) {
	var assets []*AssetInfo
	err := w.db.View(ctx, op, func(tx *sql.Tx) error {
		rows, err := tx.Query(query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		var ids []AssetID
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			id, err := ParseAssetID(raw)
			if err != nil {
				return fmt.Errorf("corrupt asset id: %w", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for _, id := range ids {
			info, err := getAssetTx(tx, id)
			if err != nil {
				return err
			}
			assets = append(assets, info)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].ID.Compare(assets[j].ID) < 0 })
	return assets, nil
}

func getAssetTx(tx *sql.Tx, id AssetID) (*AssetInfo, error) {
	var rawPage sql.NullString
	var uploaded int64
	var deleted int
	info := &AssetInfo{ID: id}
	err := tx.QueryRow(
		"SELECT page_id, file_name, mime, size, uploaded_at, user_name, deleted FROM assets WHERE id=?",
		id.String()).
		Scan(&rawPage, &info.FileName, &info.Mime, &info.Size, &uploaded, &info.UserName, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrAssetNotFound)
	}
	if err != nil {
		return nil, err
	}
	info.UploadedAt = time.Unix(uploaded, 0).UTC()
	info.Deleted = deleted != 0
	if rawPage.Valid {
		pageID, err := ParsePageID(rawPage.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt page id on asset: %w", err)
		}
		info.PageID = pageID
	}
	zombie, err := assetZombieTx(tx, info)
	if err != nil {
		return nil, err
	}
	info.Zombie = zombie
	return info, nil
}

// assetZombieTx recomputes the zombie flag: true when the owning page row
// is absent or soft-deleted. Never stored, so it cannot drift from the
// page graph.
func assetZombieTx(tx *sql.Tx, info *AssetInfo) (bool, error) {
	if info.PageID.IsZero() {
		return true, nil
	}
	var deleted int
	err := tx.QueryRow("SELECT deleted FROM pages WHERE id=?", info.PageID.String()).Scan(&deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return deleted != 0, nil
}

// AssetBlobPath returns where the asset's bytes live on disk.
func (w *Wiki) AssetBlobPath(id AssetID) string {
	return BlobPath(w.assetRoot, id)
}
