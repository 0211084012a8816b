package wiki

import (
	"context"
	"errors"
	"testing"
)

func TestApplyCreatePublish(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()

	created, err := w.Apply(ctx, PageOp{Kind: OpCreate, Target: "/a", User: "alice"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.PageID.IsZero() || created.Lock.Token.IsZero() {
		t.Fatalf("create result incomplete: %+v", created)
	}

	published, err := w.Apply(ctx, PageOp{
		Kind:   OpPublish,
		Target: "/a",
		Body:   "hello",
		Token:  created.Lock.Token,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if published.Revision != 1 || published.PageID != created.PageID {
		t.Fatalf("publish result = %+v", published)
	}
}

func TestApplyTargetForms(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	id := mustCreatePublished(t, w, "/a", "r1")

	// Both the path and the textual id address the same page.
	if _, err := w.Apply(ctx, PageOp{Kind: OpPublish, Target: id.String(), Body: "r2"}); err != nil {
		t.Fatalf("publish by id: %v", err)
	}
	res, err := w.Apply(ctx, PageOp{Kind: OpPublish, Target: "/a", Body: "r3"})
	if err != nil {
		t.Fatalf("publish by path: %v", err)
	}
	if res.Revision != 3 {
		t.Fatalf("revision = %d, want 3", res.Revision)
	}
}

func TestApplyRejectsRollbackPlusCompact(t *testing.T) {
	w, _ := newTestWiki(t)
	_, err := w.Apply(context.Background(), PageOp{
		Kind:     OpRollback,
		Target:   "/a",
		Revision: 2,
		KeepFrom: 1,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("combined rollback+compact: got %v", err)
	}
}

func TestApplyRollbackAndCompact(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	id := mustCreatePublished(t, w, "/a", "r1")
	for _, body := range []string{"r2", "r3", "r4"} {
		if _, err := w.Publish(ctx, id, body, LockToken{}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	if _, err := w.Apply(ctx, PageOp{Kind: OpRollback, Target: "/a", Revision: 3}); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := w.Apply(ctx, PageOp{Kind: OpCompact, Target: "/a", KeepFrom: 2}); err != nil {
		t.Fatalf("compact: %v", err)
	}
	page, err := w.GetPage(ctx, id)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if page.Oldest != 2 || page.Latest != 3 {
		t.Fatalf("scope [%d,%d], want [2,3]", page.Oldest, page.Latest)
	}
}

func TestApplyDeleteUndelete(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	id := mustCreatePublished(t, w, "/a", "body")

	if _, err := w.Apply(ctx, PageOp{Kind: OpDelete, Target: "/a"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := w.Apply(ctx, PageOp{Kind: OpUndelete, Target: id.String(), DstPath: "/b"}); err != nil {
		t.Fatalf("undelete: %v", err)
	}
	got, ok, err := w.Resolve(ctx, "/b")
	if err != nil || !ok || got != id {
		t.Fatalf("resolve /b: %v ok=%v err=%v", got, ok, err)
	}
}

func TestApplyMove(t *testing.T) {
	w, _ := newTestWiki(t)
	ctx := context.Background()
	id := mustCreatePublished(t, w, "/a", "body")

	if _, err := w.Apply(ctx, PageOp{Kind: OpMove, Target: "/a", DstPath: "/b"}); err != nil {
		t.Fatalf("move: %v", err)
	}
	got, ok, err := w.Resolve(ctx, "/b")
	if err != nil || !ok || got != id {
		t.Fatalf("resolve /b: %v ok=%v err=%v", got, ok, err)
	}
}

func TestOpKindString(t *testing.T) {
	for kind, want := range map[PageOpKind]string{
		OpCreate:       "create",
		OpPublish:      "publish",
		OpMove:         "move",
		OpDelete:       "delete",
		OpUndelete:     "undelete",
		OpRollback:     "rollback",
		OpCompact:      "compact",
		PageOpKind(99): "PageOpKind(99)",
	} {
		if got := kind.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", int(kind), got, want)
		}
	}
}
