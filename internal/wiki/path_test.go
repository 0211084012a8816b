package wiki

import (
	"errors"
	"testing"
)

func TestParsePagePath(t *testing.T) {
	cases := []struct {
		in   string
		want PagePath
		ok   bool
	}{
		{"/", "/", true},
		{"/a", "/a", true},
		{"/a/b", "/a/b", true},
		{"/a/b/", "/a/b", true},
		{"/a//b", "/a/b", true},
		{"/a/./b", "/a/b", true},
		{"/a/../b", "/b", true},
		{"", "", false},
		{"a/b", "", false},
		{"relative", "", false},
		{"/..", "", false},
		{"/../etc", "", false},
		{"\\a\\b", "", false},
		{"/a\x00b", "", false},
	}
	for _, c := range cases {
		got, err := ParsePagePath(c.in)
		if c.ok {
			if err != nil {
				t.Fatalf("ParsePagePath(%q): %v", c.in, err)
			}
			if got != c.want {
				t.Fatalf("ParsePagePath(%q) = %q, want %q", c.in, got, c.want)
			}
			continue
		}
		if err == nil {
			t.Fatalf("ParsePagePath(%q) = %q, want error", c.in, got)
		}
		if !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("ParsePagePath(%q): error %v is not ErrInvalidPath", c.in, err)
		}
	}
}

func TestPagePathContains(t *testing.T) {
	if !PagePath("/a").Contains("/a") {
		t.Fatalf("/a must contain itself")
	}
	if !PagePath("/a").Contains("/a/b/c") {
		t.Fatalf("/a must contain /a/b/c")
	}
	if PagePath("/a").Contains("/ab") {
		t.Fatalf("/a must not contain /ab")
	}
	if !RootPath.Contains("/anything") {
		t.Fatalf("root must contain every path")
	}
}

func TestPagePathRebase(t *testing.T) {
	got, err := PagePath("/a/b/c").Rebase("/a", "/x")
	if err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if got != "/x/b/c" {
		t.Fatalf("rebase = %q, want /x/b/c", got)
	}

	got, err = PagePath("/a").Rebase("/a", "/x/y")
	if err != nil {
		t.Fatalf("rebase self: %v", err)
	}
	if got != "/x/y" {
		t.Fatalf("rebase self = %q, want /x/y", got)
	}

	if _, err := PagePath("/other").Rebase("/a", "/x"); err == nil {
		t.Fatalf("rebase outside subtree must fail")
	}
}

func TestValidateFileName(t *testing.T) {
	if err := ValidateFileName("photo.png"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	for _, name := range []string{"", "   ", "a/b.png", "a\\b.png", "a\x00b"} {
		err := ValidateFileName(name)
		if err == nil {
			t.Fatalf("ValidateFileName(%q): expected error", name)
		}
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("ValidateFileName(%q): %v is not ErrInvalidInput", name, err)
		}
	}
}
