package wiki

import (
	"fmt"
	"path"
	"strings"
)

// PagePath is a normalized absolute wiki path: "/" for the root page,
// "/a/b" for children. The empty string means "no path" (deleted pages).
type PagePath string

const RootPath = PagePath("/")

// ParsePagePath validates and normalizes a raw path string.
func ParsePagePath(raw string) (PagePath, error) {
	if strings.ContainsRune(raw, 0) {
		return "", fmt.Errorf("%q: %w", raw, ErrInvalidPath)
	}
	raw = strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "", fmt.Errorf("%q: %w", raw, ErrInvalidPath)
	}
	clean := path.Clean(raw)
	if strings.HasPrefix(clean, "/..") {
		return "", fmt.Errorf("%q: %w", raw, ErrInvalidPath)
	}
	for _, seg := range strings.Split(strings.TrimPrefix(clean, "/"), "/") {
		if clean != "/" && strings.TrimSpace(seg) == "" {
			return "", fmt.Errorf("%q: %w", raw, ErrInvalidPath)
		}
	}
	return PagePath(clean), nil
}

func (p PagePath) String() string { return string(p) }

func (p PagePath) IsZero() bool { return p == "" }

// Dir returns the directory the page lives in, used as the base for
// relative link resolution. The root page is its own directory.
func (p PagePath) Dir() PagePath {
	if p == "" || p == RootPath {
		return RootPath
	}
	return PagePath(path.Dir(string(p)))
}

// Contains reports whether other is p itself or a descendant of p.
func (p PagePath) Contains(other PagePath) bool {
	if p == other {
		return true
	}
	if p == RootPath {
		return strings.HasPrefix(string(other), "/")
	}
	return strings.HasPrefix(string(other), string(p)+"/")
}

// Rebase rewrites p from the subtree rooted at from to the subtree rooted
// at to. p must be inside from.
func (p PagePath) Rebase(from, to PagePath) (PagePath, error) {
	if !from.Contains(p) {
		return "", fmt.Errorf("%q is not under %q: %w", p, from, ErrInvalidPath)
	}
	if p == from {
		return to, nil
	}
	rel := strings.TrimPrefix(string(p), strings.TrimSuffix(string(from), "/"))
	return ParsePagePath(path.Join(string(to), rel))
}

// ValidateFileName rejects empty asset file names and names carrying path
// separators or NUL bytes.
func ValidateFileName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty file name: %w", ErrInvalidFileName)
	}
	if strings.ContainsAny(name, "/\\") || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%q: %w", name, ErrInvalidFileName)
	}
	return nil
}
