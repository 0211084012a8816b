package wiki

import (
	"testing"
	"time"
)

func TestPageIDRoundTrip(t *testing.T) {
	id, err := NewPageID()
	if err != nil {
		t.Fatalf("new page id: %v", err)
	}
	parsed, err := ParsePageID(id.String())
	if err != nil {
		t.Fatalf("parse %q: %v", id, err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %v != %v", parsed, id)
	}
}

func TestParsePageIDRejectsGarbage(t *testing.T) {
	if _, err := ParsePageID("not-an-id"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestPageIDOrderFollowsCreationTime(t *testing.T) {
	a, err := NewPageID()
	if err != nil {
		t.Fatalf("new page id: %v", err)
	}
	// UUIDv7 has millisecond timestamp precision.
	time.Sleep(2 * time.Millisecond)
	b, err := NewPageID()
	if err != nil {
		t.Fatalf("new page id: %v", err)
	}
	if a.Compare(b) >= 0 {
		t.Fatalf("expected %v < %v", a, b)
	}
	if a.String() >= b.String() {
		t.Fatalf("textual form must sort like binary form: %q vs %q", a, b)
	}
}

func TestZeroIDs(t *testing.T) {
	var p PageID
	if !p.IsZero() {
		t.Fatalf("zero PageID must report IsZero")
	}
	id, err := NewPageID()
	if err != nil {
		t.Fatalf("new page id: %v", err)
	}
	if id.IsZero() {
		t.Fatalf("fresh PageID must not be zero")
	}
}
