package wiki

import (
	"context"
	"database/sql"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// LinkRef is one outbound wiki link of a page. Unresolved entries ("red
// links") keep a zero ID. Non-wiki targets (external URLs, mailto, pure
// image embeds) never produce an entry.
type LinkRef struct {
	Text     string
	Path     PagePath
	ID       PageID
	Resolved bool
}

var wikiLinkRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

var linkParser = goldmark.New()

type rawLink struct {
	pos    int
	text   string
	target string
}

// ExtractLinks parses body and returns its outbound wiki links resolved
// through resolve, in order of first occurrence, one entry per distinct
// target. base is the page's own path, the anchor for relative targets.
func ExtractLinks(body string, base PagePath, resolve func(PagePath) (PageID, bool)) []LinkRef {
	src := []byte(body)
	var raws []rawLink

	// Markdown links via the goldmark AST; wikilinks via regex since the
	// [[...]] syntax is not markdown. Both carry byte positions so the
	// merged list keeps document order.
	doc := linkParser.Parser().Parse(text.NewReader(src))
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Image:
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			// Autolinks are bare URLs, never wiki targets.
			return ast.WalkSkipChildren, nil
		case *ast.Link:
			raws = append(raws, rawLink{
				pos:    nodePos(node, len(src)),
				text:   string(node.Text(src)),
				target: string(node.Destination),
			})
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	for _, m := range wikiLinkRe.FindAllStringSubmatchIndex(body, -1) {
		inner := body[m[2]:m[3]]
		target, label := inner, inner
		if i := strings.IndexByte(inner, '|'); i >= 0 {
			target, label = inner[:i], inner[i+1:]
		}
		raws = append(raws, rawLink{
			pos:    m[0],
			text:   strings.TrimSpace(label),
			target: strings.TrimSpace(target),
		})
	}

	sortRawLinks(raws)

	var refs []LinkRef
	seen := map[PagePath]bool{}
	for _, raw := range raws {
		target, ok := resolveTargetPath(raw.target, base)
		if !ok || seen[target] {
			continue
		}
		seen[target] = true
		ref := LinkRef{Text: raw.text, Path: target}
		if id, found := resolve(target); found {
			ref.ID = id
			ref.Resolved = true
		}
		refs = append(refs, ref)
	}
	return refs
}

// nodePos approximates a link's byte offset: the first text segment of its
// subtree, else the end of the nearest preceding sibling text, else the
// start of the enclosing block. Links with no text of their own ("[](/x)")
// must still sort at their document position, not at the end.
func nodePos(n ast.Node, fallback int) int {
	for c := n.FirstChild(); c != nil; c = c.FirstChild() {
		if t, ok := c.(*ast.Text); ok {
			return t.Segment.Start
		}
	}
	for prev := n.PreviousSibling(); prev != nil; prev = prev.PreviousSibling() {
		if t, ok := prev.(*ast.Text); ok {
			return t.Segment.Stop
		}
	}
	for parent := n.Parent(); parent != nil; parent = parent.Parent() {
		if parent.Type() != ast.TypeBlock {
			continue
		}
		if lines := parent.Lines(); lines.Len() > 0 {
			return lines.At(0).Start
		}
		break
	}
	return fallback
}

func sortRawLinks(raws []rawLink) {
	for i := 1; i < len(raws); i++ {
		for j := i; j > 0 && raws[j].pos < raws[j-1].pos; j-- {
			raws[j], raws[j-1] = raws[j-1], raws[j]
		}
	}
}

// resolveTargetPath turns a raw link target into an absolute wiki path.
// External URLs, mailto and anything else carrying a scheme are not wiki
// targets and report false.
func resolveTargetPath(raw string, base PagePath) (PagePath, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
		if raw == "" {
			return "", false
		}
	}
	if strings.Contains(raw, "://") || strings.Contains(raw, ":") {
		return "", false
	}
	if !strings.HasPrefix(raw, "/") {
		raw = path.Join(string(base.Dir()), raw)
	}
	p, err := ParsePagePath(raw)
	if err != nil {
		return "", false
	}
	return p, true
}

// LinkRefs extracts the outbound link set of one revision (0 = latest),
// resolved against the live path index inside a single read snapshot.
func (w *Wiki) LinkRefs(ctx context.Context, id PageID, revision uint64) ([]LinkRef, error) {
	var refs []LinkRef
	err := w.db.View(ctx, "page-links", func(tx *sql.Tx) error {
		page, err := getPageTx(tx, id)
		if err != nil {
			return err
		}
		rev := revision
		if rev == 0 {
			rev = page.Latest
		}
		if page.Latest == 0 || rev < page.Oldest || rev > page.Latest {
			return fmt.Errorf("page %s revision %d: %w", id, rev, ErrRevisionNotFound)
		}
		var body string
		if err := tx.QueryRow(
			"SELECT body FROM page_sources WHERE page_id=? AND revision=?",
			id.String(), rev).Scan(&body); err != nil {
			return err
		}
		base := page.Path
		if base.IsZero() {
			base = page.LastDeletedPath
		}
		var resolveErr error
		refs = ExtractLinks(body, base, func(p PagePath) (PageID, bool) {
			target, ok, err := resolvePathTx(tx, p)
			if err != nil {
				resolveErr = err
				return PageID{}, false
			}
			return target, ok
		})
		return resolveErr
	})
	return refs, err
}
