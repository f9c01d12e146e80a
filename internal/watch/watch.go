// Package watch mirrors files written into a local folder to a remote
// directory. Events from the watcher are debounced per file so an upload
// starts only once the writer has gone quiet.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

// DefaultDebounce is how long a file must stay unchanged before upload.
const DefaultDebounce = 2 * time.Second

const (
	errInitBackoff = 1 * time.Second
	errMaxBackoff  = 30 * time.Second
	errBackoffMult = 2
)

// Watcher is the subset of *fsnotify.Watcher the pusher needs.
type Watcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f *fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f *fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f *fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

// NewWatcher returns a Watcher backed by fsnotify.
func NewWatcher() (Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: creating watcher: %w", err)
	}

	return &fsnotifyWatcher{w: w}, nil
}

// Uploader creates files in a remote directory.
type Uploader interface {
	CreateFile(ctx context.Context, parent, name string, content io.Reader, size int64) (*entity.File, error)
}

// Result is the outcome of one local file.
type Result struct {
	Local string
	File  *entity.File
	// Skipped is set when the remote already had a file of that name.
	Skipped bool
	Err     error
}

// Options tunes a Pusher.
type Options struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// OnResult is called after every upload attempt.
	OnResult func(Result)
	// NewWatcher overrides the fsnotify watcher.
	NewWatcher func() (Watcher, error)
}

// Pusher uploads files from a local folder into a remote directory.
type Pusher struct {
	fs         Uploader
	localDir   string
	remoteDir  string
	debounce   time.Duration
	logger     *slog.Logger
	onResult   func(Result)
	newWatcher func() (Watcher, error)
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// NewPusher returns a Pusher mirroring localDir into remoteDir on fs.
func NewPusher(fs Uploader, localDir, remoteDir string, opts Options) *Pusher {
	p := &Pusher{
		fs:         fs,
		localDir:   localDir,
		remoteDir:  filesystem.Clean(remoteDir),
		debounce:   opts.Debounce,
		logger:     opts.Logger,
		onResult:   opts.OnResult,
		newWatcher: opts.NewWatcher,
		sleep:      sleepCtx,
		now:        time.Now,
	}

	if p.debounce <= 0 {
		p.debounce = DefaultDebounce
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	if p.newWatcher == nil {
		p.newWatcher = NewWatcher
	}

	if p.onResult == nil {
		p.onResult = func(Result) {}
	}

	return p
}

// PushExisting uploads every regular file already in the local folder.
// Files that exist remotely are skipped. Only authentication failures stop
// the pass.
func (p *Pusher) PushExisting(ctx context.Context) ([]Result, error) {
	entries, err := os.ReadDir(p.localDir)
	if err != nil {
		return nil, fmt.Errorf("watch: reading %s: %w", p.localDir, err)
	}

	var results []Result

	for _, de := range entries {
		if !de.Type().IsRegular() || isExcluded(de.Name()) {
			continue
		}

		r := p.upload(ctx, filepath.Join(p.localDir, de.Name()))
		results = append(results, r)

		if isFatal(r.Err) {
			return results, r.Err
		}
	}

	return results, nil
}

// Watch uploads files as they are written until ctx is canceled. It returns
// nil on cancellation and an error when the watcher cannot start, the
// remote rejects the credentials or the remote folder is read-only.
func (p *Pusher) Watch(ctx context.Context) error {
	w, err := p.newWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(p.localDir); err != nil {
		return fmt.Errorf("watch: adding %s: %w", p.localDir, err)
	}

	p.logger.Info("watching local folder",
		slog.String("local", p.localDir),
		slog.String("remote", p.remoteDir),
		slog.Duration("debounce", p.debounce),
	)

	return p.loop(ctx, w)
}

func (p *Pusher) loop(ctx context.Context, w Watcher) error {
	tick := time.NewTicker(p.debounce / 2)
	defer tick.Stop()

	pending := make(map[string]time.Time)
	errBackoff := errInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}

			p.handleEvent(ev, pending)
			errBackoff = errInitBackoff

		case watchErr, ok := <-w.Errors():
			if !ok {
				return nil
			}

			p.logger.Warn("filesystem watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			if p.sleep(ctx, errBackoff) != nil {
				return nil
			}

			errBackoff = min(errBackoff*errBackoffMult, errMaxBackoff)

		case <-tick.C:
			if err := p.flush(ctx, pending); err != nil {
				return err
			}
		}
	}
}

func (p *Pusher) handleEvent(ev fsnotify.Event, pending map[string]time.Time) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			delete(pending, ev.Name)
		}

		return
	}

	if filepath.Dir(ev.Name) != filepath.Clean(p.localDir) || isExcluded(filepath.Base(ev.Name)) {
		return
	}

	p.logger.Debug("local change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
	pending[ev.Name] = p.now()
}

// flush uploads pending files that have been quiet for the debounce window.
func (p *Pusher) flush(ctx context.Context, pending map[string]time.Time) error {
	cutoff := p.now().Add(-p.debounce)

	var ready []string

	for name, last := range pending {
		if !last.After(cutoff) {
			ready = append(ready, name)
		}
	}

	sort.Strings(ready)

	for _, name := range ready {
		delete(pending, name)

		info, err := os.Stat(name)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}

		if r := p.upload(ctx, name); isFatal(r.Err) {
			return r.Err
		}
	}

	return nil
}

func (p *Pusher) upload(ctx context.Context, local string) Result {
	r := Result{Local: local}
	name := filepath.Base(local)

	f, err := os.Open(local)
	if err != nil {
		r.Err = fmt.Errorf("watch: opening %s: %w", local, err)
		p.report(r)

		return r
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		r.Err = fmt.Errorf("watch: stat %s: %w", local, err)
		p.report(r)

		return r
	}

	r.File, r.Err = p.fs.CreateFile(ctx, p.remoteDir, name, f, info.Size())
	if errors.Is(r.Err, filesystem.ErrConflict) {
		r.Skipped = true
		r.Err = nil
	}

	p.report(r)

	return r
}

func (p *Pusher) report(r Result) {
	switch {
	case r.Skipped:
		p.logger.Info("skipped existing remote file",
			slog.String("local", r.Local),
			slog.String("remote", p.remoteDir),
		)
	case r.Err != nil:
		p.logger.Warn("upload failed",
			slog.String("local", r.Local),
			slog.String("error", r.Err.Error()),
		)
	default:
		p.logger.Info("uploaded",
			slog.String("local", r.Local),
			slog.String("remote", r.File.FullPath()),
			slog.Int64("size", r.File.Size()),
		)
	}

	p.onResult(r)
}

// isFatal reports errors that every later upload would repeat.
func isFatal(err error) bool {
	return errors.Is(err, filesystem.ErrAuthentication) ||
		errors.Is(err, filesystem.ErrReadOnly) ||
		errors.Is(err, context.Canceled)
}

// isExcluded reports editor temporaries and partial downloads.
func isExcluded(name string) bool {
	if strings.HasPrefix(name, "~") || strings.HasPrefix(name, ".~") || strings.HasPrefix(name, ".#") {
		return true
	}

	lower := strings.ToLower(name)

	for _, ext := range excludedSuffixes {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}

	return false
}

var excludedSuffixes = []string{".partial", ".tmp", ".swp", ".crdownload"}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
