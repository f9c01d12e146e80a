package filesystem

import (
	"context"
	"io"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
)

// readOnlyFS forwards reads to the wrapped file system, marks every entry it
// returns read-only and rejects every mutation with ErrReadOnly before any
// request is sent.
type readOnlyFS struct {
	inner FileSystem
}

// ReadOnly wraps fs so that all mutations fail with ErrReadOnly.
func ReadOnly(fs FileSystem) FileSystem {
	if _, ok := fs.(*readOnlyFS); ok {
		return fs
	}

	return &readOnlyFS{inner: fs}
}

func (r *readOnlyFS) ListDirectory(ctx context.Context, p string) ([]entity.Entry, error) {
	entries, err := r.inner.ListDirectory(ctx, p)
	if err != nil {
		return nil, err
	}

	out := make([]entity.Entry, len(entries))
	for i, e := range entries {
		out[i] = entity.AsReadOnly(e)
	}

	return out, nil
}

func (r *readOnlyFS) Stat(ctx context.Context, p string) (entity.Entry, error) {
	e, err := r.inner.Stat(ctx, p)
	if err != nil {
		return nil, err
	}

	return entity.AsReadOnly(e), nil
}

func (r *readOnlyFS) CreateDirectory(_ context.Context, parent, name string) (*entity.Directory, error) {
	return nil, ReadOnlyError("mkdir", Join(parent, name))
}

func (r *readOnlyFS) CreateFile(_ context.Context, parent, name string, _ io.Reader, _ int64) (*entity.File, error) {
	return nil, ReadOnlyError("put", Join(parent, name))
}

func (r *readOnlyFS) Update(_ context.Context, e entity.Entry) (entity.Entry, error) {
	return nil, ReadOnlyError("update", e.FullPath())
}

func (r *readOnlyFS) Delete(_ context.Context, p string) error {
	return ReadOnlyError("delete", Clean(p))
}

func (r *readOnlyFS) Move(_ context.Context, p, _ string) (entity.Entry, error) {
	return nil, ReadOnlyError("move", Clean(p))
}

func (r *readOnlyFS) Rename(_ context.Context, p, _ string) (entity.Entry, error) {
	return nil, ReadOnlyError("rename", Clean(p))
}
