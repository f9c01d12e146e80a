// Package walk traverses a remote directory tree, listing subdirectories in
// parallel.
package walk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

// DefaultParallelism bounds concurrent listings when Options leaves it zero.
const DefaultParallelism = 4

// SkipDir may be returned by a VisitFunc for a directory to skip its
// contents.
var SkipDir = errors.New("walk: skip directory") //nolint:revive,staticcheck // mirrors filepath.SkipDir

// Lister lists one directory.
type Lister interface {
	ListDirectory(ctx context.Context, p string) ([]entity.Entry, error)
}

// VisitFunc is called once per entry. depth is 1 for the root's children.
// Calls are serialized, but their order across directories is not fixed.
type VisitFunc func(depth int, e entity.Entry) error

// Options tunes a walk.
type Options struct {
	// Parallelism bounds concurrent listings.
	Parallelism int
	// MaxDepth stops descending below this depth; zero means unlimited.
	MaxDepth int
	Logger   *slog.Logger
}

type walker struct {
	ctx      context.Context
	g        *errgroup.Group
	lister   Lister
	visit    VisitFunc
	maxDepth int
	logger   *slog.Logger
	mu       sync.Mutex
}

// Walk visits every entry below root. The first listing or visit error
// cancels the remaining work and is returned.
func Walk(ctx context.Context, l Lister, root string, opts Options, visit VisitFunc) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := opts.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	w := &walker{
		ctx:      gctx,
		g:        g,
		lister:   l,
		visit:    visit,
		maxDepth: opts.MaxDepth,
		logger:   logger,
	}

	root = filesystem.Clean(root)

	g.Go(func() error { return w.dir(root, 1) })

	return g.Wait()
}

// dir lists p and visits its entries at depth. Subdirectories are handed to
// a new goroutine when the limit allows, otherwise walked inline so a full
// pool never blocks on itself.
func (w *walker) dir(p string, depth int) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}

	entries, err := w.lister.ListDirectory(w.ctx, p)
	if err != nil {
		return fmt.Errorf("walk: listing %s: %w", p, err)
	}

	w.logger.Debug("walked directory",
		slog.String("path", p),
		slog.Int("depth", depth),
		slog.Int("count", len(entries)),
	)

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		w.mu.Lock()
		err := w.visit(depth, e)
		w.mu.Unlock()

		if errors.Is(err, SkipDir) {
			continue
		}

		if err != nil {
			return err
		}

		if !e.IsDir() || (w.maxDepth > 0 && depth >= w.maxDepth) {
			continue
		}

		child := e.FullPath()

		if !w.g.TryGo(func() error { return w.dir(child, depth+1) }) {
			if err := w.dir(child, depth+1); err != nil {
				return err
			}
		}
	}

	return nil
}

// Item is one entry found by Collect.
type Item struct {
	Depth int
	Entry entity.Entry
}

// Collect walks root and returns every entry sorted by full path, which
// puts each directory directly before its contents.
func Collect(ctx context.Context, l Lister, root string, opts Options) ([]Item, error) {
	var items []Item

	err := Walk(ctx, l, root, opts, func(depth int, e entity.Entry) error {
		items = append(items, Item{Depth: depth, Entry: e})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return pathLess(items[i].Entry.FullPath(), items[j].Entry.FullPath())
	})

	return items, nil
}

// pathLess orders paths segment by segment so "/a/x" sorts before "/a b".
func pathLess(a, b string) bool {
	as, bs := strings.Split(a, "/"), strings.Split(b, "/")

	for i := range min(len(as), len(bs)) {
		if as[i] != bs[i] {
			return as[i] < bs[i]
		}
	}

	return len(as) < len(bs)
}
