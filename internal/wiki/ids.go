package wiki

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// Page, asset and lock identifiers are UUIDv7 values: 128 bits, globally
// unique, and ordered by creation time so the textual form sorts the same
// way the binary form does.

type PageID struct{ id uuid.UUID }

type AssetID struct{ id uuid.UUID }

type LockToken struct{ id uuid.UUID }

func NewPageID() (PageID, error) {
	id, err := newID()
	return PageID{id}, err
}

func NewAssetID() (AssetID, error) {
	id, err := newID()
	return AssetID{id}, err
}

func NewLockToken() (LockToken, error) {
	id, err := newID()
	return LockToken{id}, err
}

func newID() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

func ParsePageID(s string) (PageID, error) {
	id, err := parseID(s)
	return PageID{id}, err
}

func ParseAssetID(s string) (AssetID, error) {
	id, err := parseID(s)
	return AssetID{id}, err
}

func ParseLockToken(s string) (LockToken, error) {
	id, err := parseID(s)
	return LockToken{id}, err
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parse id %q: %w", s, ErrInvalidInput)
	}
	return id, nil
}

func (p PageID) String() string { return p.id.String() }
func (p PageID) IsZero() bool { return p.id == uuid.UUID{} }
func (p PageID) Compare(o PageID) int {
	return bytes.Compare(p.id[:], o.id[:])
}

func (a AssetID) String() string { return a.id.String() }
func (a AssetID) IsZero() bool { return a.id == uuid.UUID{} }
func (a AssetID) Compare(o AssetID) int {
	return bytes.Compare(a.id[:], o.id[:])
}

func (t LockToken) String() string { return t.id.String() }
func (t LockToken) IsZero() bool { return t.id == uuid.UUID{} }
