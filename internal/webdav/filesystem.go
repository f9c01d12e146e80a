// Package webdav implements filesystem.FileSystem over WebDav (RFC 4918).
// Sharepoint document libraries are served by the same implementation.
package webdav

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/tonimelisma/cloudexplorer/internal/davxml"
	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
	"github.com/tonimelisma/cloudexplorer/internal/transport"
)

// DefaultLabel names the backend in logs when Config.Label is empty.
const DefaultLabel = "webdav"

// Config describes one WebDav mount.
type Config struct {
	// URL is the collection the file system is rooted at, for example
	// "https://cloud.example.com/remote.php/dav/files/alice".
	URL        string
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
	MaxRetries int
	// Label identifies the provider in logs ("webdav", "sharepoint").
	Label string
}

// FileSystem is a WebDav-backed file system. It keeps no state between
// calls beyond its configuration, so concurrent use is safe.
type FileSystem struct {
	client   *transport.Client
	mount    string // URL path of the root collection, stripped from hrefs
	logger   *slog.Logger
	label    string
	propfind []byte
}

// New creates a WebDav file system. auth is consulted for every request and
// is not owned by the file system.
func New(cfg Config, auth filesystem.AuthenticationManager) *FileSystem {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	label := cfg.Label
	if label == "" {
		label = DefaultLabel
	}

	logger = logger.With(slog.String("provider", label))

	client := transport.NewClient(cfg.URL, cfg.HTTPClient, auth, logger, transport.Options{
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
	})

	mount := "/"
	if u, err := url.Parse(client.BaseURL()); err == nil && u.Path != "" {
		mount = u.Path
	}

	return &FileSystem{
		client:   client,
		mount:    mount,
		logger:   logger,
		label:    label,
		propfind: davxml.PropfindBody(davxml.DefaultProps...),
	}
}

// Label returns the provider label the file system was created with.
func (fs *FileSystem) Label() string {
	return fs.label
}

// ListDirectory returns the children of the collection at p. The listing is
// all-or-nothing: any malformed entry fails the whole call.
func (fs *FileSystem) ListDirectory(ctx context.Context, p string) ([]entity.Entry, error) {
	p = filesystem.Clean(p)

	entries, err := fs.propfindEntries(ctx, opList, p, collectionPath(p), "1")
	if err != nil {
		return nil, err
	}

	children := make([]entity.Entry, 0, len(entries))

	for _, e := range entries {
		if e.FullPath() == p {
			if !e.IsDir() {
				return nil, &filesystem.Error{Op: opList, Path: p, Err: filesystem.ErrNotFound, Message: "not a directory"}
			}

			continue
		}

		children = append(children, e)
	}

	fs.logger.Debug("listed directory",
		slog.String("path", p),
		slog.Int("count", len(children)),
	)

	return children, nil
}

// Stat returns the entry at p.
func (fs *FileSystem) Stat(ctx context.Context, p string) (entity.Entry, error) {
	p = filesystem.Clean(p)

	entries, err := fs.propfindEntries(ctx, opStat, p, filesystem.EscapePath(p), "0")
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.FullPath() == p {
			return e, nil
		}
	}

	if len(entries) == 1 {
		return entries[0], nil
	}

	return nil, &filesystem.Error{Op: opStat, Path: p, Err: filesystem.ErrNotFound, Message: "no entry in response"}
}

func (fs *FileSystem) propfindEntries(ctx context.Context, op, p, reqPath, depth string) ([]entity.Entry, error) {
	resp, err := fs.client.Do(ctx, &transport.Request{
		Method: "PROPFIND",
		Path:   reqPath,
		Header: http.Header{
			"Depth":        []string{depth},
			"Content-Type": []string{"application/xml; charset=utf-8"},
		},
		Body: bytes.NewReader(fs.propfind),
	})
	if err != nil {
		return nil, classify(op, p, err)
	}
	defer resp.Body.Close()

	entries, err := davxml.Parse(resp.Body, fs.mount, fs.logger)
	if err != nil {
		return nil, fmt.Errorf("webdav: %s %s: %w", op, p, err)
	}

	return entries, nil
}

// CreateDirectory creates the collection name inside parent.
func (fs *FileSystem) CreateDirectory(ctx context.Context, parent, name string) (*entity.Directory, error) {
	if err := filesystem.ValidateName(name); err != nil {
		return nil, err
	}

	target := filesystem.Join(parent, name)

	fs.logger.Info("creating directory", slog.String("path", target))

	resp, err := fs.client.Do(ctx, &transport.Request{Method: "MKCOL", Path: collectionPath(target)})
	if err != nil {
		return nil, classify(opMkdir, target, err)
	}
	resp.Body.Close()

	return entity.NewDirectory(fs.href(target, true), target), nil
}

// CreateFile uploads content as a new file. An existing entry with the same
// name is reported as filesystem.ErrConflict; nothing is overwritten.
func (fs *FileSystem) CreateFile(
	ctx context.Context, parent, name string, content io.Reader, size int64,
) (*entity.File, error) {
	if err := filesystem.ValidateName(name); err != nil {
		return nil, err
	}

	target := filesystem.Join(parent, name)

	if err := fs.ensureAbsent(ctx, opPut, target); err != nil {
		return nil, err
	}

	fs.logger.Info("uploading file",
		slog.String("path", target),
		slog.Int64("size", size),
	)

	resp, err := fs.client.Do(ctx, &transport.Request{
		Method:        http.MethodPut,
		Path:          filesystem.EscapePath(target),
		Header:        http.Header{"If-None-Match": []string{"*"}},
		Body:          content,
		ContentLength: size,
	})
	if err != nil {
		return nil, classify(opPut, target, err)
	}
	resp.Body.Close()

	e, err := fs.Stat(ctx, target)
	if err != nil {
		return nil, err
	}

	f, ok := entity.AsFile(e)
	if !ok {
		return nil, &filesystem.Error{Op: opPut, Path: target, Err: filesystem.ErrParse, Message: "uploaded entry is not a file"}
	}

	return f, nil
}

// Update always fails: WebDav entries carry no editable metadata.
func (fs *FileSystem) Update(_ context.Context, e entity.Entry) (entity.Entry, error) {
	return nil, filesystem.ReadOnlyError(opUpdate, e.FullPath())
}

// Delete removes the entry at p; collections are removed recursively by the
// server.
func (fs *FileSystem) Delete(ctx context.Context, p string) error {
	p = filesystem.Clean(p)
	if filesystem.IsRoot(p) {
		return filesystem.ReadOnlyError(opDelete, p)
	}

	fs.logger.Info("deleting entry", slog.String("path", p))

	resp, err := fs.client.Do(ctx, &transport.Request{Method: http.MethodDelete, Path: filesystem.EscapePath(p)})
	if err != nil {
		return classify(opDelete, p, err)
	}
	resp.Body.Close()

	return nil
}

// Move relocates the entry at p into newParent, keeping its name.
func (fs *FileSystem) Move(ctx context.Context, p, newParent string) (entity.Entry, error) {
	p = filesystem.Clean(p)
	_, name := filesystem.Split(p)

	return fs.move(ctx, opMove, p, filesystem.Join(newParent, name))
}

// Rename gives the entry at p a new name in the same directory.
func (fs *FileSystem) Rename(ctx context.Context, p, newName string) (entity.Entry, error) {
	if err := filesystem.ValidateName(newName); err != nil {
		return nil, err
	}

	p = filesystem.Clean(p)
	parent, _ := filesystem.Split(p)

	return fs.move(ctx, opRename, p, filesystem.Join(parent, newName))
}

func (fs *FileSystem) move(ctx context.Context, op, from, to string) (entity.Entry, error) {
	if filesystem.IsRoot(from) {
		return nil, filesystem.ReadOnlyError(op, from)
	}

	if from == to {
		return fs.Stat(ctx, from)
	}

	if filesystem.HasPrefix(to, from) {
		return nil, &filesystem.Error{Op: op, Path: from, Err: filesystem.ErrConflict, Message: "destination is inside the source"}
	}

	fs.logger.Info("moving entry",
		slog.String("from", from),
		slog.String("to", to),
	)

	resp, err := fs.client.Do(ctx, &transport.Request{
		Method: "MOVE",
		Path:   filesystem.EscapePath(from),
		Header: http.Header{
			"Destination": []string{fs.client.BaseURL() + filesystem.EscapePath(to)},
			"Overwrite":   []string{"F"},
		},
	})
	if err != nil {
		return nil, classify(op, from, err)
	}
	resp.Body.Close()

	return fs.Stat(ctx, to)
}

// ensureAbsent reports ErrConflict when p already exists.
func (fs *FileSystem) ensureAbsent(ctx context.Context, op, p string) error {
	_, err := fs.Stat(ctx, p)

	switch {
	case err == nil:
		return &filesystem.Error{Op: op, Path: p, Err: filesystem.ErrConflict, Message: "entry already exists"}
	case isNotFound(err):
		return nil
	default:
		return err
	}
}

// href builds the identifier the server would report for p.
func (fs *FileSystem) href(p string, collection bool) string {
	if filesystem.IsRoot(fs.mount) {
		return collectionPathIf(filesystem.EscapePath(p), collection)
	}

	return collectionPathIf(filesystem.EscapePath(fs.mount)+filesystem.EscapePath(p), collection)
}

// collectionPath is the escaped request path of a collection, with the
// trailing slash servers expect.
func collectionPath(p string) string {
	return collectionPathIf(filesystem.EscapePath(p), true)
}

func collectionPathIf(escaped string, collection bool) string {
	if !collection || escaped == "/" || escaped[len(escaped)-1] == '/' {
		return escaped
	}

	return escaped + "/"
}
