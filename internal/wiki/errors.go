package wiki

import (
	"errors"
	"fmt"
)

// Error kinds. Concrete errors below wrap exactly one kind so callers can
// map a whole family with a single errors.Is check.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrLockViolation = errors.New("lock violation")
	ErrInvalidInput  = errors.New("invalid input")
)

var (
	ErrPageNotFound     = fmt.Errorf("page: %w", ErrNotFound)
	ErrRevisionNotFound = fmt.Errorf("revision: %w", ErrNotFound)
	ErrAssetNotFound    = fmt.Errorf("asset: %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user: %w", ErrNotFound)
	ErrLockNotFound     = fmt.Errorf("lock: %w", ErrNotFound)

	ErrPathConflict       = fmt.Errorf("path already in use: %w", ErrConflict)
	ErrUserExists         = fmt.Errorf("user already exists: %w", ErrConflict)
	ErrAssetDeleted       = fmt.Errorf("asset already deleted: %w", ErrConflict)
	ErrPageNotDeleted     = fmt.Errorf("page is not deleted: %w", ErrConflict)
	ErrRevisionOutOfRange = fmt.Errorf("revision outside kept range: %w", ErrConflict)

	ErrPageLocked    = fmt.Errorf("page is locked: %w", ErrLockViolation)
	ErrLockMismatch  = fmt.Errorf("lock token mismatch: %w", ErrLockViolation)
	ErrAlreadyLocked = fmt.Errorf("page locked by another user: %w", ErrLockViolation)

	ErrInvalidPath     = fmt.Errorf("malformed page path: %w", ErrInvalidInput)
	ErrInvalidFileName = fmt.Errorf("forbidden file name: %w", ErrInvalidInput)
	ErrNoChanges       = fmt.Errorf("no changes requested: %w", ErrInvalidInput)
)
