// Package onedrive implements filesystem.FileSystem over the Microsoft Graph
// drive API. The root directory lists the user's own drive plus a virtual
// "Shared with me" directory holding items other users shared.
package onedrive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
	"github.com/tonimelisma/cloudexplorer/internal/transport"
)

const (
	// DefaultBaseURL is the Graph endpoint used when Config.BaseURL is empty.
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"

	// SharedWithMeName is the virtual root directory holding shared items.
	SharedWithMeName = "Shared with me"
	// SharedWithMePath is the absolute path of the virtual directory.
	SharedWithMePath = "/" + SharedWithMeName

	listPageSize = 200
)

// Config describes one OneDrive account.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
	UserAgent  string
	MaxRetries int
	// ChunkSize is the upload session fragment size. It is rounded down to
	// a multiple of 320 KiB; zero selects DefaultChunkSize.
	ChunkSize int64
	// SimpleUploadMax is the largest file sent with a single PUT; zero
	// selects 4 MiB.
	SimpleUploadMax int64
}

// FileSystem is a OneDrive-backed file system. Concurrent use is safe.
type FileSystem struct {
	client          *transport.Client
	logger          *slog.Logger
	chunkSize       int64
	simpleUploadMax int64
}

// New creates a OneDrive file system. auth is consulted for every request
// and is not owned by the file system.
func New(cfg Config, auth filesystem.AuthenticationManager) *FileSystem {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger = logger.With(slog.String("provider", "onedrive"))

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}

	chunk = max(chunk-chunk%chunkAlignment, chunkAlignment)

	simpleMax := cfg.SimpleUploadMax
	if simpleMax <= 0 {
		simpleMax = simpleUploadMaxSize
	}

	return &FileSystem{
		client: transport.NewClient(baseURL, cfg.HTTPClient, auth, logger, transport.Options{
			UserAgent:  cfg.UserAgent,
			MaxRetries: cfg.MaxRetries,
		}),
		logger:          logger,
		chunkSize:       chunk,
		simpleUploadMax: simpleMax,
	}
}

// location addresses an item in the Graph API. Own-drive items are
// addressed by path below the drive root; shared items by the remote drive
// and item id plus an optional path below that item.
type location struct {
	path    string
	shared  bool
	driveID string
	itemID  string
	rel     string
	top     *driveItem // the sharedWithMe entry a shared location hangs off
}

func (l location) itemPath() string {
	if l.shared {
		base := "/drives/" + url.PathEscape(l.driveID) + "/items/" + url.PathEscape(l.itemID)
		if l.rel == "" {
			return base
		}

		return base + ":" + filesystem.EscapePath(l.rel) + ":"
	}

	if filesystem.IsRoot(l.path) {
		return "/me/drive/root"
	}

	return "/me/drive/root:" + filesystem.EscapePath(l.path) + ":"
}

func (l location) childrenPath() string {
	return l.itemPath() + "/children?$top=" + strconv.Itoa(listPageSize)
}

func isShared(p string) bool {
	return filesystem.HasPrefix(p, SharedWithMePath)
}

// resolve maps an absolute path to a location. Paths below the virtual
// directory are looked up in the sharedWithMe listing by their first
// segment.
func (fs *FileSystem) resolve(ctx context.Context, op, p string) (location, error) {
	if !isShared(p) || p == SharedWithMePath {
		return location{path: p}, nil
	}

	rest := strings.TrimPrefix(p, SharedWithMePath+"/")
	top, rel, _ := strings.Cut(rest, "/")

	items, err := fs.sharedItems(ctx, op, p)
	if err != nil {
		return location{}, err
	}

	for i := range items {
		if items[i].displayName() != norm.NFC.String(top) {
			continue
		}

		driveID, itemID := items[i].remoteRef()
		loc := location{path: p, shared: true, driveID: driveID, itemID: itemID, top: &items[i]}

		if rel != "" {
			loc.rel = "/" + rel
		}

		return loc, nil
	}

	return location{}, &filesystem.Error{Op: op, Path: p, Err: filesystem.ErrNotFound, Message: "no shared item named " + top}
}

// ListDirectory returns the children of the directory at p. The listing is
// all-or-nothing: any malformed item fails the whole call.
func (fs *FileSystem) ListDirectory(ctx context.Context, p string) ([]entity.Entry, error) {
	p = filesystem.Clean(p)

	var (
		entries []entity.Entry
		err     error
	)

	switch {
	case filesystem.IsRoot(p):
		entries, err = fs.listRoot(ctx)
	case p == SharedWithMePath:
		entries, err = fs.listShared(ctx)
	default:
		var loc location

		loc, err = fs.resolve(ctx, opList, p)
		if err != nil {
			return nil, err
		}

		if loc.top != nil && loc.rel == "" && !loc.top.isFolder() {
			return nil, &filesystem.Error{Op: opList, Path: p, Err: filesystem.ErrNotFound, Message: "not a directory"}
		}

		entries, err = fs.listChildren(ctx, p, loc)
	}

	if err != nil {
		return nil, err
	}

	fs.logger.Debug("listed directory",
		slog.String("path", p),
		slog.Int("count", len(entries)),
	)

	return entries, nil
}

func (fs *FileSystem) listRoot(ctx context.Context) ([]entity.Entry, error) {
	entries, err := fs.listChildren(ctx, "/", location{path: "/"})
	if err != nil {
		return nil, err
	}

	out := make([]entity.Entry, 0, len(entries)+1)

	for _, e := range entries {
		if e.Name() == SharedWithMeName {
			fs.logger.Warn("hiding drive item shadowed by the shared directory",
				slog.String("id", e.ID()),
			)

			continue
		}

		out = append(out, e)
	}

	return append(out, entity.NewVirtualDirectory(SharedWithMeName, SharedWithMePath)), nil
}

func (fs *FileSystem) listShared(ctx context.Context) ([]entity.Entry, error) {
	items, err := fs.sharedItems(ctx, opList, SharedWithMePath)
	if err != nil {
		return nil, err
	}

	entries := make([]entity.Entry, 0, len(items))

	for i := range items {
		e, err := items[i].toEntry(opList, filesystem.Join(SharedWithMePath, items[i].displayName()), true)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, nil
}

func (fs *FileSystem) listChildren(ctx context.Context, p string, loc location) ([]entity.Entry, error) {
	items, err := fs.collect(ctx, opList, p, loc.childrenPath())
	if err != nil {
		return nil, err
	}

	entries := make([]entity.Entry, 0, len(items))

	for i := range items {
		e, err := items[i].toEntry(opList, filesystem.Join(p, items[i].displayName()), loc.shared)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	return entries, nil
}

func (fs *FileSystem) sharedItems(ctx context.Context, op, p string) ([]driveItem, error) {
	return fs.collect(ctx, op, p, "/me/drive/sharedWithMe")
}

// collect follows @odata.nextLink until the collection is exhausted.
func (fs *FileSystem) collect(ctx context.Context, op, p, apiPath string) ([]driveItem, error) {
	var items []driveItem

	for apiPath != "" {
		var page listResponse
		if err := fs.getJSON(ctx, op, p, apiPath, &page); err != nil {
			return nil, err
		}

		items = append(items, page.Value...)
		apiPath = ""

		if page.NextLink != "" {
			next, err := fs.client.StripBaseURL(page.NextLink)
			if err != nil {
				return nil, fmt.Errorf("onedrive: %s %s: %w", op, p, err)
			}

			fs.logger.Debug("following next page", slog.String("path", p))

			apiPath = next
		}
	}

	return items, nil
}

// Stat returns the entry at p.
func (fs *FileSystem) Stat(ctx context.Context, p string) (entity.Entry, error) {
	p = filesystem.Clean(p)

	switch {
	case filesystem.IsRoot(p):
		var item driveItem
		if err := fs.getJSON(ctx, opStat, p, "/me/drive/root", &item); err != nil {
			return nil, err
		}

		return item.toEntry(opStat, "/", false)
	case p == SharedWithMePath:
		return entity.NewVirtualDirectory(SharedWithMeName, SharedWithMePath), nil
	}

	loc, err := fs.resolve(ctx, opStat, p)
	if err != nil {
		return nil, err
	}

	if loc.top != nil && loc.rel == "" {
		return loc.top.toEntry(opStat, p, true)
	}

	var item driveItem
	if err := fs.getJSON(ctx, opStat, p, loc.itemPath(), &item); err != nil {
		return nil, err
	}

	return item.toEntry(opStat, p, loc.shared)
}

func (fs *FileSystem) getJSON(ctx context.Context, op, p, apiPath string, out any) error {
	return fs.sendJSON(ctx, op, p, http.MethodGet, apiPath, nil, out)
}

// sendJSON issues a request with an optional JSON body and decodes the
// response into out when out is non-nil.
func (fs *FileSystem) sendJSON(ctx context.Context, op, p, method, apiPath string, body, out any) error {
	req := &transport.Request{Method: method, Path: apiPath}

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("onedrive: %s %s: encoding request: %w", op, p, err)
		}

		req.Body = bytes.NewReader(data)
		req.Header = http.Header{"Content-Type": []string{"application/json"}}
	}

	resp, err := fs.client.Do(ctx, req)
	if err != nil {
		return classify(op, p, err)
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return parseError(op, p, "decoding response: "+err.Error())
	}

	return nil
}
