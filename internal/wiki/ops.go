package wiki

import (
	"context"
	"fmt"
)

// PageOpKind enumerates the page mutations. Keeping them a closed set
// behind one dispatcher concentrates argument validation in one place
// instead of spreading it over near-identical entry points.
type PageOpKind int

const (
	OpCreate PageOpKind = iota
	OpPublish
	OpMove
	OpDelete
	OpUndelete
	OpRollback
	OpCompact
)

func (k PageOpKind) String() string {
	switch k {
	case OpCreate:
		return "create"
	case OpPublish:
		return "publish"
	case OpMove:
		return "move"
	case OpDelete:
		return "delete"
	case OpUndelete:
		return "undelete"
	case OpRollback:
		return "rollback"
	case OpCompact:
		return "compact"
	}
	return fmt.Sprintf("PageOpKind(%d)", int(k))
}

// PageOp is one page mutation command. Unused fields stay zero; the
// dispatcher validates the combination per kind.
type PageOp struct {
	Kind PageOpKind

	// Target is a page path (leading "/") or textual page id,
	// interpreted per kind.
	Target string
	// DstPath is the destination for move and undelete.
	DstPath string
	Body    string
	User    string
	Token   LockToken

	// Revision is the rollback target; KeepFrom the compaction floor.
	// Requesting both in one op is rejected, never sequenced.
	Revision uint64
	KeepFrom uint64

	Recursive  bool
	Force      bool
	Hard       bool
	WithAssets bool
}

// OpResult carries back whatever the operation produced.
type OpResult struct {
	PageID   PageID
	Lock     LockInfo
	Revision uint64
}

// Apply dispatches op. Every kind is handled; the zero kind is OpCreate.
func (w *Wiki) Apply(ctx context.Context, op PageOp) (*OpResult, error) {
	if op.Revision != 0 && op.KeepFrom != 0 {
		return nil, fmt.Errorf("rollback and compact cannot be combined: %w", ErrInvalidInput)
	}
	switch op.Kind {
	case OpCreate:
		id, lock, err := w.Create(ctx, op.Target, op.User)
		if err != nil {
			return nil, err
		}
		return &OpResult{PageID: id, Lock: lock}, nil
	case OpPublish:
		id, err := w.opTargetID(ctx, op.Target)
		if err != nil {
			return nil, err
		}
		rev, err := w.Publish(ctx, id, op.Body, op.Token)
		if err != nil {
			return nil, err
		}
		return &OpResult{PageID: id, Revision: rev}, nil
	case OpMove:
		return nil, w.Move(ctx, op.Target, op.DstPath, op.Recursive, op.Force)
	case OpDelete:
		return nil, w.Delete(ctx, op.Target, DeleteOptions{
			Hard:      op.Hard,
			Recursive: op.Recursive,
			Force:     op.Force,
			Token:     op.Token,
		})
	case OpUndelete:
		id, err := ParsePageID(op.Target)
		if err != nil {
			return nil, err
		}
		return nil, w.Undelete(ctx, id, op.DstPath, op.Recursive, op.WithAssets)
	case OpRollback:
		id, err := w.opTargetID(ctx, op.Target)
		if err != nil {
			return nil, err
		}
		return nil, w.RollbackTo(ctx, id, op.Revision)
	case OpCompact:
		id, err := w.opTargetID(ctx, op.Target)
		if err != nil {
			return nil, err
		}
		return nil, w.Compact(ctx, id, op.KeepFrom)
	}
	return nil, fmt.Errorf("unknown op %v: %w", op.Kind, ErrInvalidInput)
}

// opTargetID resolves a path-or-id target to a page id.
func (w *Wiki) opTargetID(ctx context.Context, target string) (PageID, error) {
	if len(target) > 0 && target[0] == '/' {
		p, err := ParsePagePath(target)
		if err != nil {
			return PageID{}, err
		}
		id, ok, err := w.Resolve(ctx, p)
		if err != nil {
			return PageID{}, err
		}
		if !ok {
			return PageID{}, fmt.Errorf("%q: %w", p, ErrPageNotFound)
		}
		return id, nil
	}
	return ParsePageID(target)
}
