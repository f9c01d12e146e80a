package watch

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
)

type fakeWatcher struct {
	events chan fsnotify.Event
	errs   chan error
	added  []string
	closed bool
}

func newFakeWatcher() *fakeWatcher {
	return &fakeWatcher{events: make(chan fsnotify.Event, 16), errs: make(chan error, 4)}
}

func (f *fakeWatcher) Add(name string) error         { f.added = append(f.added, name); return nil }
func (f *fakeWatcher) Close() error                  { f.closed = true; return nil }
func (f *fakeWatcher) Events() <-chan fsnotify.Event { return f.events }
func (f *fakeWatcher) Errors() <-chan error          { return f.errs }

type fakeUploader struct {
	mu       sync.Mutex
	existing map[string]bool
	uploads  map[string]string
	err      error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{existing: map[string]bool{}, uploads: map[string]string{}}
}

func (u *fakeUploader) CreateFile(_ context.Context, parent, name string, content io.Reader, size int64) (*entity.File, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	p := filesystem.Join(parent, name)

	if u.err != nil {
		return nil, u.err
	}

	if u.existing[p] {
		return nil, &filesystem.Error{Op: "put", Path: p, Err: filesystem.ErrConflict}
	}

	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}

	u.uploads[p] = string(data)

	return entity.NewFile(p, p, entity.WithSize(size)), nil
}

func (u *fakeUploader) uploaded(p string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	s, ok := u.uploads[p]

	return s, ok
}

func (u *fakeUploader) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()

	return len(u.uploads)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))

	return p
}

func TestPushExisting(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "alpha")
	writeFile(t, dir, "b.txt", "beta")
	writeFile(t, dir, "draft.swp", "temp")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o700))

	u := newFakeUploader()
	u.existing["/inbox/b.txt"] = true

	results, err := NewPusher(u, dir, "/inbox/", Options{}).PushExisting(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	got, ok := u.uploaded("/inbox/a.txt")
	require.True(t, ok)
	assert.Equal(t, "alpha", got)
	assert.Equal(t, int64(5), results[0].File.Size())

	assert.True(t, results[1].Skipped)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, 1, u.count())
}

func TestPushExisting_FatalErrorStops(t *testing.T) {
	for _, sentinel := range []error{filesystem.ErrAuthentication, filesystem.ErrReadOnly} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "a.txt", "alpha")
			writeFile(t, dir, "b.txt", "beta")

			u := newFakeUploader()
			u.err = &filesystem.Error{Op: "put", Path: "/a.txt", Err: sentinel}

			results, err := NewPusher(u, dir, "/", Options{}).PushExisting(context.Background())
			require.ErrorIs(t, err, sentinel)
			assert.Len(t, results, 1)
		})
	}
}

func TestWatch_UploadsAfterDebounce(t *testing.T) {
	dir := t.TempDir()
	w := newFakeWatcher()
	u := newFakeUploader()

	var (
		mu      sync.Mutex
		results []Result
	)

	p := NewPusher(u, dir, "/inbox", Options{
		Debounce:   40 * time.Millisecond,
		NewWatcher: func() (Watcher, error) { return w, nil },
		OnResult: func(r Result) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- p.Watch(ctx) }()

	path := writeFile(t, dir, "new.txt", "fresh")
	w.events <- fsnotify.Event{Name: path, Op: fsnotify.Create}
	w.events <- fsnotify.Event{Name: path, Op: fsnotify.Write}
	w.events <- fsnotify.Event{Name: filepath.Join(dir, "x.tmp"), Op: fsnotify.Create}
	w.events <- fsnotify.Event{Name: path, Op: fsnotify.Chmod}

	require.Eventually(t, func() bool {
		_, ok := u.uploaded("/inbox/new.txt")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{dir}, w.added)
	assert.True(t, w.closed)
	assert.Equal(t, 1, u.count(), "one upload for a burst of events")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.Equal(t, path, results[0].Local)
}

func TestWatch_RemovedBeforeDebounce(t *testing.T) {
	dir := t.TempDir()
	w := newFakeWatcher()
	u := newFakeUploader()

	p := NewPusher(u, dir, "/", Options{
		Debounce:   40 * time.Millisecond,
		NewWatcher: func() (Watcher, error) { return w, nil },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- p.Watch(ctx) }()

	path := filepath.Join(dir, "gone.txt")
	w.events <- fsnotify.Event{Name: path, Op: fsnotify.Create}
	w.events <- fsnotify.Event{Name: path, Op: fsnotify.Remove}

	time.Sleep(120 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Zero(t, u.count())
}

func TestWatch_FatalErrorStops(t *testing.T) {
	for _, sentinel := range []error{filesystem.ErrAuthentication, filesystem.ErrReadOnly} {
		t.Run(sentinel.Error(), func(t *testing.T) {
			dir := t.TempDir()
			w := newFakeWatcher()
			u := newFakeUploader()
			u.err = &filesystem.Error{Op: "put", Path: "/a.txt", Err: sentinel}

			p := NewPusher(u, dir, "/", Options{
				Debounce:   20 * time.Millisecond,
				NewWatcher: func() (Watcher, error) { return w, nil },
			})

			path := writeFile(t, dir, "a.txt", "x")
			w.events <- fsnotify.Event{Name: path, Op: fsnotify.Create}

			err := p.Watch(context.Background())
			require.ErrorIs(t, err, sentinel)
		})
	}
}

func TestWatch_WatcherErrorsBackOff(t *testing.T) {
	w := newFakeWatcher()
	p := NewPusher(newFakeUploader(), t.TempDir(), "/", Options{
		Debounce:   time.Second,
		NewWatcher: func() (Watcher, error) { return w, nil },
	})

	var (
		mu     sync.Mutex
		sleeps []time.Duration
	)

	p.sleep = func(_ context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()

		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- p.Watch(ctx) }()

	for range 3 {
		w.errs <- errors.New("queue overflow")
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(sleeps) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeps)
}

func TestWatch_NewWatcherError(t *testing.T) {
	boom := errors.New("inotify limit")
	p := NewPusher(newFakeUploader(), t.TempDir(), "/", Options{
		NewWatcher: func() (Watcher, error) { return nil, boom },
	})

	require.ErrorIs(t, p.Watch(context.Background()), boom)
}

func TestIsExcluded(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"report.docx", false},
		{"~report.docx", true},
		{".~lock.report.odt#", true},
		{".#notes.txt", true},
		{"movie.mp4.partial", true},
		{"setup.EXE.crdownload", true},
		{"notes.txt.swp", true},
		{"build.tmp", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isExcluded(tc.name))
		})
	}
}
