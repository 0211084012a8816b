package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kwgt/luwiki-sub001/internal/config"
	"github.com/kwgt/luwiki-sub001/internal/search"
	"github.com/kwgt/luwiki-sub001/internal/wiki"
)

const usage = `usage: wiki <command> [args]

commands (flags before positional arguments):
  page create -user <name> <path>
  page publish -body <text> [-token <token>] <path|id>
  page show [-rev <n>] <path|id>
  page list [-deleted]
  page move [-recursive] [-force] <path|id> <dst>
  page delete [-hard] [-recursive] [-force] [-token <token>] <path|id>
  page undelete [-to <path>] [-recursive] [-with-assets] <id>
  page rollback -rev <n> <path|id>
  page compact -keep-from <n> <path|id>
  page links <path|id>
  lock -user <name> <path|id>
  unlock -token <token> <path|id>
  asset attach [-mime <type>] [-user <name>] <page-path|id> <file>
  asset list [-page <path|id>]
  asset delete [-hard] <asset-id>
  search <query>
  sweep [-loop]
`

func main() {
	initLogging()
	os.Exit(run(os.Args[1:]))
}

func initLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("WIKI_DEBUG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	var handler slog.Handler
	if strings.EqualFold(os.Getenv("WIKI_LOG_PRETTY"), "1") || strings.EqualFold(os.Getenv("WIKI_LOG_PRETTY"), "true") {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	cfg := config.Load()
	w, err := wiki.Open(cfg.DBPath, cfg.AssetPath, wiki.Options{LockTTL: cfg.LockTTL})
	if err != nil {
		return fail(err)
	}
	defer w.Close()

	ctx := context.Background()
	if err := w.Init(ctx); err != nil {
		return fail(err)
	}
	idx := search.New(w.DB())

	switch args[0] {
	case "page":
		err = runPage(ctx, w, idx, args[1:])
	case "lock":
		err = runLock(ctx, w, args[1:])
	case "unlock":
		err = runUnlock(ctx, w, args[1:])
	case "asset":
		err = runAsset(ctx, w, args[1:])
	case "search":
		err = runSearch(ctx, idx, args[1:])
	case "sweep":
		err = runSweep(ctx, w, cfg.SweepInterval, args[1:])
	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	if err != nil {
		return fail(err)
	}
	return 0
}

func fail(err error) int {
	fmt.Fprintln(os.Stderr, "wiki:", err)
	switch {
	case errors.Is(err, wiki.ErrInvalidInput):
		return 2
	case errors.Is(err, wiki.ErrNotFound):
		return 3
	case errors.Is(err, wiki.ErrConflict):
		return 4
	case errors.Is(err, wiki.ErrLockViolation):
		return 5
	}
	return 1
}

func runPage(ctx context.Context, w *wiki.Wiki, idx *search.Index, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("page: missing subcommand: %w", wiki.ErrInvalidInput)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "create":
		fs := flag.NewFlagSet("page create", flag.ExitOnError)
		user := fs.String("user", "", "acting user")
		target, err := parseTargetArg(fs, rest)
		if err != nil {
			return err
		}
		res, err := w.Apply(ctx, wiki.PageOp{Kind: wiki.OpCreate, Target: target, User: *user})
		if err != nil {
			return err
		}
		fmt.Printf("page %s created as draft\nlock token: %s\n", res.PageID, res.Lock.Token)
		return nil
	case "publish":
		fs := flag.NewFlagSet("page publish", flag.ExitOnError)
		body := fs.String("body", "", "page body")
		rawToken := fs.String("token", "", "lock token")
		target, err := parseTargetArg(fs, rest)
		if err != nil {
			return err
		}
		token, err := parseToken(*rawToken)
		if err != nil {
			return err
		}
		res, err := w.Apply(ctx, wiki.PageOp{Kind: wiki.OpPublish, Target: target, Body: *body, Token: token})
		if err != nil {
			return err
		}
		fmt.Printf("published revision %d\n", res.Revision)
		return reindexPage(ctx, w, idx, res.PageID)
	case "show":
		fs := flag.NewFlagSet("page show", flag.ExitOnError)
		rev := fs.Uint64("rev", 0, "revision (default latest)")
		target, err := parseTargetArg(fs, rest)
		if err != nil {
			return err
		}
		id, err := targetPageID(ctx, w, target)
		if err != nil {
			return err
		}
		src, err := w.Source(ctx, id, *rev)
		if err != nil {
			return err
		}
		fmt.Printf("# %s revision %d\n%s\n", src.PageID, src.Revision, src.Body)
		return nil
	case "list":
		fs := flag.NewFlagSet("page list", flag.ExitOnError)
		deleted := fs.Bool("deleted", false, "include deleted pages")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		pages, err := w.ListPages(ctx, *deleted)
		if err != nil {
			return err
		}
		for _, p := range pages {
			flagCh := " "
			switch {
			case p.Deleted:
				flagCh = "D"
			case p.Draft:
				flagCh = "d"
			case p.Locked:
				flagCh = "L"
			}
			path := p.Path
			if p.Deleted {
				path = p.LastDeletedPath
			}
			fmt.Printf("%s %-40s %s [%d,%d]\n", flagCh, path, p.ID, p.Oldest, p.Latest)
		}
		return nil
	case "move":
		fs := flag.NewFlagSet("page move", flag.ExitOnError)
		recursive := fs.Bool("recursive", false, "move the whole subtree")
		force := fs.Bool("force", false, "ignore locks")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() != 2 {
			return fmt.Errorf("page move needs <target> <dst>: %w", wiki.ErrInvalidInput)
		}
		// Resolve before the move retires the old path.
		id, err := targetPageID(ctx, w, fs.Arg(0))
		if err != nil {
			return err
		}
		if _, err := w.Apply(ctx, wiki.PageOp{
			Kind: wiki.OpMove, Target: fs.Arg(0), DstPath: fs.Arg(1),
			Recursive: *recursive, Force: *force,
		}); err != nil {
			return err
		}
		return reindexPage(ctx, w, idx, id)
	case "delete":
		fs := flag.NewFlagSet("page delete", flag.ExitOnError)
		hard := fs.Bool("hard", false, "erase metadata and revisions")
		recursive := fs.Bool("recursive", false, "delete the whole subtree")
		force := fs.Bool("force", false, "ignore locks")
		rawToken := fs.String("token", "", "lock token")
		target, err := parseTargetArg(fs, rest)
		if err != nil {
			return err
		}
		token, err := parseToken(*rawToken)
		if err != nil {
			return err
		}
		id, err := targetPageID(ctx, w, target)
		if err != nil {
			return err
		}
		if _, err := w.Apply(ctx, wiki.PageOp{
			Kind: wiki.OpDelete, Target: target, Token: token,
			Hard: *hard, Recursive: *recursive, Force: *force,
		}); err != nil {
			return err
		}
		if *hard {
			return idx.Delete(ctx, id)
		}
		return reindexPage(ctx, w, idx, id)
	case "undelete":
		fs := flag.NewFlagSet("page undelete", flag.ExitOnError)
		to := fs.String("to", "", "restore path (default: original)")
		recursive := fs.Bool("recursive", false, "restore the whole subtree")
		withAssets := fs.Bool("with-assets", false, "restore cascaded assets")
		target, err := parseTargetArg(fs, rest)
		if err != nil {
			return err
		}
		if _, err := w.Apply(ctx, wiki.PageOp{
			Kind: wiki.OpUndelete, Target: target, DstPath: *to,
			Recursive: *recursive, WithAssets: *withAssets,
		}); err != nil {
			return err
		}
		id, err := wiki.ParsePageID(target)
		if err != nil {
			return err
		}
		return reindexPage(ctx, w, idx, id)
	case "rollback":
		fs := flag.NewFlagSet("page rollback", flag.ExitOnError)
		rev := fs.Uint64("rev", 0, "revision to roll back to")
		target, err := parseTargetArg(fs, rest)
		if err != nil {
			return err
		}
		if _, err := w.Apply(ctx, wiki.PageOp{Kind: wiki.OpRollback, Target: target, Revision: *rev}); err != nil {
			return err
		}
		id, err := targetPageID(ctx, w, target)
		if err != nil {
			return err
		}
		return reindexPage(ctx, w, idx, id)
	case "compact":
		fs := flag.NewFlagSet("page compact", flag.ExitOnError)
		keep := fs.Uint64("keep-from", 0, "oldest revision to keep")
		target, err := parseTargetArg(fs, rest)
		if err != nil {
			return err
		}
		_, err = w.Apply(ctx, wiki.PageOp{Kind: wiki.OpCompact, Target: target, KeepFrom: *keep})
		return err
	case "links":
		fs := flag.NewFlagSet("page links", flag.ExitOnError)
		target, err := parseTargetArg(fs, rest)
		if err != nil {
			return err
		}
		id, err := targetPageID(ctx, w, target)
		if err != nil {
			return err
		}
		refs, err := w.LinkRefs(ctx, id, 0)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			mark := "?" // red link
			idText := "-"
			if ref.Resolved {
				mark = " "
				idText = ref.ID.String()
			}
			fmt.Printf("%s %-40s %s\n", mark, ref.Path, idText)
		}
		return nil
	}
	return fmt.Errorf("page: unknown subcommand %q: %w", sub, wiki.ErrInvalidInput)
}

func runLock(ctx context.Context, w *wiki.Wiki, args []string) error {
	fs := flag.NewFlagSet("lock", flag.ExitOnError)
	user := fs.String("user", "", "acting user")
	target, err := parseTargetArg(fs, args)
	if err != nil {
		return err
	}
	id, err := targetPageID(ctx, w, target)
	if err != nil {
		return err
	}
	lock, err := w.Lock(ctx, id, *user)
	if err != nil {
		return err
	}
	fmt.Printf("locked until %s\nlock token: %s\n", lock.Expire.Format(time.RFC3339), lock.Token)
	return nil
}

func runUnlock(ctx context.Context, w *wiki.Wiki, args []string) error {
	fs := flag.NewFlagSet("unlock", flag.ExitOnError)
	rawToken := fs.String("token", "", "lock token")
	target, err := parseTargetArg(fs, args)
	if err != nil {
		return err
	}
	token, err := parseToken(*rawToken)
	if err != nil {
		return err
	}
	id, err := targetPageID(ctx, w, target)
	if err != nil {
		return err
	}
	return w.Unlock(ctx, id, token)
}

func runAsset(ctx context.Context, w *wiki.Wiki, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("asset: missing subcommand: %w", wiki.ErrInvalidInput)
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "attach":
		fs := flag.NewFlagSet("asset attach", flag.ExitOnError)
		mime := fs.String("mime", "application/octet-stream", "content type")
		user := fs.String("user", "", "acting user")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() != 2 {
			return fmt.Errorf("asset attach needs <page> <file>: %w", wiki.ErrInvalidInput)
		}
		id, err := targetPageID(ctx, w, fs.Arg(0))
		if err != nil {
			return err
		}
		data, err := os.ReadFile(fs.Arg(1))
		if err != nil {
			return err
		}
		assetID, err := w.AttachAsset(ctx, id, baseName(fs.Arg(1)), *mime, data, *user)
		if err != nil {
			return err
		}
		fmt.Printf("asset %s attached\n", assetID)
		return nil
	case "list":
		fs := flag.NewFlagSet("asset list", flag.ExitOnError)
		page := fs.String("page", "", "restrict to one page")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		var assets []*wiki.AssetInfo
		var err error
		if *page != "" {
			id, err2 := targetPageID(ctx, w, *page)
			if err2 != nil {
				return err2
			}
			assets, err = w.ListAssetsByPage(ctx, id)
		} else {
			assets, err = w.ListAssets(ctx)
		}
		if err != nil {
			return err
		}
		for _, a := range assets {
			fmt.Printf("%s %s %-30s %8d %s\n", a.State(), a.ID, a.FileName, a.Size, a.Mime)
		}
		return nil
	case "delete":
		fs := flag.NewFlagSet("asset delete", flag.ExitOnError)
		hard := fs.Bool("hard", false, "erase metadata and blob")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("asset delete needs <asset-id>: %w", wiki.ErrInvalidInput)
		}
		id, err := wiki.ParseAssetID(fs.Arg(0))
		if err != nil {
			return err
		}
		if *hard {
			return w.HardDeleteAsset(ctx, id)
		}
		return w.SoftDeleteAsset(ctx, id)
	}
	return fmt.Errorf("asset: unknown subcommand %q: %w", sub, wiki.ErrInvalidInput)
}

func runSearch(ctx context.Context, idx *search.Index, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("search needs <query>: %w", wiki.ErrInvalidInput)
	}
	results, err := idx.Search(ctx, args[0], 20)
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Printf("%-40s %s\n", r.Path, r.Snippet)
	}
	return nil
}

func runSweep(ctx context.Context, w *wiki.Wiki, interval time.Duration, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	loop := fs.Bool("loop", false, "sweep periodically until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}
	sweep := func() error {
		n, err := w.Sweep(ctx, time.Now())
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("expired locks removed", "count", n)
		}
		return nil
	}
	if !*loop {
		return sweep()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := sweep(); err != nil {
				return err
			}
		}
	}
}

// reindexPage feeds the search index after the storage transaction has
// committed; the committed state is stable by the time this runs.
func reindexPage(ctx context.Context, w *wiki.Wiki, idx *search.Index, id wiki.PageID) error {
	page, err := w.GetPage(ctx, id)
	if err != nil {
		return err
	}
	body := ""
	if page.Live() && page.Latest > 0 {
		src, err := w.Source(ctx, id, 0)
		if err != nil {
			return err
		}
		body = src.Body
	}
	return idx.Reindex(ctx, page, body)
}

func parseTargetArg(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s needs exactly one target: %w", fs.Name(), wiki.ErrInvalidInput)
	}
	return fs.Arg(0), nil
}

func parseToken(raw string) (wiki.LockToken, error) {
	if raw == "" {
		return wiki.LockToken{}, nil
	}
	return wiki.ParseLockToken(raw)
}

func targetPageID(ctx context.Context, w *wiki.Wiki, target string) (wiki.PageID, error) {
	if strings.HasPrefix(target, "/") {
		p, err := wiki.ParsePagePath(target)
		if err != nil {
			return wiki.PageID{}, err
		}
		id, ok, err := w.Resolve(ctx, p)
		if err != nil {
			return wiki.PageID{}, err
		}
		if !ok {
			return wiki.PageID{}, fmt.Errorf("%q: %w", p, wiki.ErrPageNotFound)
		}
		return id, nil
	}
	return wiki.ParsePageID(target)
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, "/\\"); i >= 0 {
		return p[i+1:]
	}
	return p
}
