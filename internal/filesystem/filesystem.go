package filesystem

import (
	"context"
	"io"
	"net/http"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
)

// AuthenticationManager supplies credentials for outgoing requests. File
// systems hold a reference to a manager but never own it; token refresh and
// re-authentication stay inside the manager. An error from Authenticate is
// surfaced to the caller as ErrAuthentication.
type AuthenticationManager interface {
	Authenticate(ctx context.Context, req *http.Request) error
}

// FileSystem is the CRUD surface of one backend bound to one authentication
// context. Paths are slash-separated and absolute ("/" is the root).
//
// Implementations keep no per-call state, so concurrent calls are safe but
// unordered. Listings are all-or-nothing: on error no entries are returned.
type FileSystem interface {
	// ListDirectory returns the children of the directory at path.
	ListDirectory(ctx context.Context, path string) ([]entity.Entry, error)

	// Stat returns the entry at path.
	Stat(ctx context.Context, path string) (entity.Entry, error)

	// CreateDirectory creates name under parent. Fails with ErrConflict when
	// an entry with that name already exists.
	CreateDirectory(ctx context.Context, parent, name string) (*entity.Directory, error)

	// CreateFile uploads size bytes from content as name under parent.
	// Fails with ErrConflict when an entry with that name already exists.
	CreateFile(ctx context.Context, parent, name string, content io.Reader, size int64) (*entity.File, error)

	// Update pushes the entry's backend-specific mutable fields and returns
	// the entry as the backend now reports it.
	Update(ctx context.Context, e entity.Entry) (entity.Entry, error)

	// Delete removes the entry at path (recursively for directories).
	Delete(ctx context.Context, path string) error

	// Move moves the entry at path into newParent, keeping its name.
	Move(ctx context.Context, path, newParent string) (entity.Entry, error)

	// Rename gives the entry at path a new name within the same parent.
	Rename(ctx context.Context, path, newName string) (entity.Entry, error)
}
