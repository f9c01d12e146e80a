package onedrive

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/cloudexplorer/internal/auth"
	"github.com/tonimelisma/cloudexplorer/internal/entity"
	"github.com/tonimelisma/cloudexplorer/internal/filesystem"
	"github.com/tonimelisma/cloudexplorer/internal/transport"
)

func newTestFS(t *testing.T, g *fakeGraph, mod ...func(*Config)) *FileSystem {
	t.Helper()

	cfg := Config{BaseURL: g.srv.URL, MaxRetries: -1}
	for _, m := range mod {
		m(&cfg)
	}

	return New(cfg, auth.NewBearer(auth.StaticToken(testToken), nil))
}

func names(entries []entity.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}

	return out
}

func TestListDirectory_Root(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)

	entries, err := fs.ListDirectory(context.Background(), "/")
	require.NoError(t, err)

	assert.Equal(t, []string{"Documents", "notes.txt", SharedWithMeName}, names(entries))

	docs := entries[0]
	assert.True(t, docs.IsDir())
	assert.False(t, docs.IsReadOnly())
	assert.Equal(t, "/Documents", docs.FullPath())

	notes, ok := entity.AsFile(entries[1])
	require.True(t, ok)
	assert.Equal(t, int64(len("remember the milk")), notes.Size())
	assert.Equal(t, "text/plain", notes.ContentType())
	assert.True(t, notes.HasField(entity.FieldDescription))

	created, ok := notes.CreatedAt()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), created.UTC())

	shared := entries[2]
	assert.True(t, shared.IsDir())
	assert.True(t, shared.IsReadOnly())
	assert.Equal(t, SharedWithMePath, shared.FullPath())
}

func TestListDirectory_HidesFolderShadowingSharedRoot(t *testing.T) {
	g := newFakeGraph(t)
	g.add(ownDriveID, "/Shared with me", true, "")
	fs := newTestFS(t, g)

	entries, err := fs.ListDirectory(context.Background(), "/")
	require.NoError(t, err)

	var count int
	for _, e := range entries {
		if e.Name() == SharedWithMeName {
			count++
			assert.True(t, e.IsReadOnly(), "only the virtual directory is listed")
		}
	}

	assert.Equal(t, 1, count)
}

func TestListDirectory_FollowsPages(t *testing.T) {
	g := newFakeGraph(t)
	g.add(ownDriveID, "/Documents/a.txt", false, "a")
	g.add(ownDriveID, "/Documents/b.txt", false, "b")
	g.pageSize = 1
	fs := newTestFS(t, g)

	entries, err := fs.ListDirectory(context.Background(), "/Documents")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt", "b.txt", "report.docx"}, names(entries))
	assert.Equal(t, 3, g.requestCount("GET /me/drive/root:/Documents:/children"))
}

func TestListDirectory_NormalizesNames(t *testing.T) {
	g := newFakeGraph(t)
	g.add(ownDriveID, "/Documents/cafe\u0301.txt", false, "nfd")
	fs := newTestFS(t, g)

	entries, err := fs.ListDirectory(context.Background(), "/Documents")
	require.NoError(t, err)

	assert.Contains(t, names(entries), "caf\u00e9.txt")
}

func TestListDirectory_Timestamps(t *testing.T) {
	t.Run("empty leaves the field unset", func(t *testing.T) {
		g := newFakeGraph(t)
		g.item(ownDriveID, "/notes.txt").created = ""
		fs := newTestFS(t, g)

		entries, err := fs.ListDirectory(context.Background(), "/")
		require.NoError(t, err)

		_, ok := entries[1].CreatedAt()
		assert.False(t, ok)

		_, ok = entries[1].ModifiedAt()
		assert.True(t, ok)
	})

	t.Run("malformed fails the whole listing", func(t *testing.T) {
		g := newFakeGraph(t)
		g.item(ownDriveID, "/notes.txt").modified = "yesterday"
		fs := newTestFS(t, g)

		entries, err := fs.ListDirectory(context.Background(), "/")
		require.ErrorIs(t, err, filesystem.ErrParse)
		assert.Nil(t, entries)
		assert.Contains(t, err.Error(), "yesterday")
	})
}

func TestListDirectory_Shared(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)
	ctx := context.Background()

	entries, err := fs.ListDirectory(ctx, SharedWithMePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"Team", "photo.jpg"}, names(entries))

	for _, e := range entries {
		assert.True(t, e.IsReadOnly(), e.Name())
	}

	assert.True(t, entries[0].IsDir())
	assert.Equal(t, "/Shared with me/Team", entries[0].FullPath())

	team, err := fs.ListDirectory(ctx, "/Shared with me/Team")
	require.NoError(t, err)
	require.Len(t, team, 1)
	assert.Equal(t, "plan.txt", team[0].Name())
	assert.Equal(t, "/Shared with me/Team/plan.txt", team[0].FullPath())
	assert.True(t, team[0].IsReadOnly())

	_, err = fs.ListDirectory(ctx, "/Shared with me/photo.jpg")
	require.ErrorIs(t, err, filesystem.ErrNotFound)

	_, err = fs.ListDirectory(ctx, "/Shared with me/nobody")
	require.ErrorIs(t, err, filesystem.ErrNotFound)
}

func TestListDirectory_Missing(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)

	_, err := fs.ListDirectory(context.Background(), "/nope")
	require.ErrorIs(t, err, filesystem.ErrNotFound)

	var fsErr *filesystem.Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, http.StatusNotFound, fsErr.StatusCode)
	assert.Contains(t, fsErr.Message, "itemNotFound")
}

func TestStat(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)
	ctx := context.Background()

	root, err := fs.Stat(ctx, "/")
	require.NoError(t, err)
	assert.True(t, root.IsDir())
	assert.Equal(t, "/", root.FullPath())

	e, err := fs.Stat(ctx, "/Documents/report.docx")
	require.NoError(t, err)

	f, ok := entity.AsFile(e)
	require.True(t, ok)

	desc, err := f.Field(entity.FieldDescription)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly", desc)
	assert.False(t, f.IsReadOnly())

	virtual, err := fs.Stat(ctx, SharedWithMePath)
	require.NoError(t, err)
	assert.True(t, virtual.IsReadOnly())

	photo, err := fs.Stat(ctx, "/Shared with me/photo.jpg")
	require.NoError(t, err)
	assert.False(t, photo.IsDir())
	assert.True(t, photo.IsReadOnly())

	plan, err := fs.Stat(ctx, "/Shared with me/Team/plan.txt")
	require.NoError(t, err)
	assert.True(t, plan.IsReadOnly())
	assert.Equal(t, "plan.txt", plan.Name())

	_, err = fs.Stat(ctx, "/Documents/missing.docx")
	require.ErrorIs(t, err, filesystem.ErrNotFound)
}

func TestWrongTokenIsAuthenticationError(t *testing.T) {
	g := newFakeGraph(t)
	fs := New(Config{BaseURL: g.srv.URL, MaxRetries: -1}, auth.NewBearer(auth.StaticToken("expired"), nil))

	_, err := fs.ListDirectory(context.Background(), "/")
	require.ErrorIs(t, err, filesystem.ErrAuthentication)
	assert.Contains(t, err.Error(), "InvalidAuthenticationToken")
}

func TestCreateDirectory(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)
	ctx := context.Background()

	d, err := fs.CreateDirectory(ctx, "/Documents", "2024 Drafts")
	require.NoError(t, err)
	assert.Equal(t, "/Documents/2024 Drafts", d.FullPath())
	assert.Equal(t, "2024 Drafts", d.Name())
	assert.NotNil(t, g.item(ownDriveID, "/Documents/2024 Drafts"))

	tests := []struct {
		name   string
		parent string
		child  string
		want   error
	}{
		{"existing", "/", "Documents", filesystem.ErrConflict},
		{"reserved root name", "/", SharedWithMeName, filesystem.ErrConflict},
		{"inside shared", "/Shared with me/Team", "x", filesystem.ErrReadOnly},
		{"in virtual root", SharedWithMePath, "x", filesystem.ErrReadOnly},
		{"missing parent", "/nope", "x", filesystem.ErrNotFound},
		{"invalid name", "/", "a/b", filesystem.ErrInvalidName},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fs.CreateDirectory(ctx, tc.parent, tc.child)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateFile_Simple(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)
	ctx := context.Background()

	content := "line one\n"

	f, err := fs.CreateFile(ctx, "/Documents", "todo #1.txt", strings.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, "/Documents/todo #1.txt", f.FullPath())
	assert.Equal(t, int64(len(content)), f.Size())
	assert.Equal(t, content, string(g.item(ownDriveID, "/Documents/todo #1.txt").content))
	assert.Equal(t, 0, g.requestCount("POST /me/drive/root:/Documents/todo #1.txt:/createUploadSession"))

	_, err = fs.CreateFile(ctx, "/Documents", "todo #1.txt", strings.NewReader("again"), 5)
	require.ErrorIs(t, err, filesystem.ErrConflict)

	_, err = fs.CreateFile(ctx, "/Shared with me/Team", "x.txt", strings.NewReader("x"), 1)
	require.ErrorIs(t, err, filesystem.ErrReadOnly)

	_, err = fs.CreateFile(ctx, "/", SharedWithMeName, strings.NewReader("x"), 1)
	require.ErrorIs(t, err, filesystem.ErrConflict)
}

func TestCreateFile_UnknownSize(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)

	f, err := fs.CreateFile(context.Background(), "/", "stream.log", strings.NewReader("streamed"), -1)
	require.NoError(t, err)
	assert.Equal(t, int64(len("streamed")), f.Size())
}

func TestCreateFile_ShortContent(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)

	_, err := fs.CreateFile(context.Background(), "/", "short.txt", strings.NewReader("abc"), 10)
	require.Error(t, err)
	assert.Nil(t, g.item(ownDriveID, "/short.txt"))
}

func TestCreateFile_UploadSession(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g, func(c *Config) {
		c.SimpleUploadMax = 1024
		c.ChunkSize = chunkAlignment + 1000
	})

	content := bytes.Repeat([]byte("0123456789abcdef"), (2*chunkAlignment+chunkAlignment/2)/16)

	f, err := fs.CreateFile(context.Background(), "/Documents", "big.bin", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), f.Size())

	stored := g.item(ownDriveID, "/Documents/big.bin")
	require.NotNil(t, stored)
	assert.Equal(t, content, stored.content)

	g.mu.Lock()
	defer g.mu.Unlock()

	assert.Equal(t, 3, g.chunks, "chunk size is rounded down to 320 KiB")

	for _, a := range g.chunkAuth {
		assert.Empty(t, a, "upload URLs are pre-authenticated")
	}
}

func TestCreateFile_SessionCanceledOnChunkFailure(t *testing.T) {
	g := newFakeGraph(t)
	g.failChunk = 2
	fs := newTestFS(t, g, func(c *Config) {
		c.SimpleUploadMax = 1024
		c.ChunkSize = chunkAlignment
	})

	content := make([]byte, 3*chunkAlignment)

	_, err := fs.CreateFile(context.Background(), "/", "big.bin", bytes.NewReader(content), int64(len(content)))
	require.ErrorIs(t, err, filesystem.ErrTransport)

	g.mu.Lock()
	defer g.mu.Unlock()

	assert.Equal(t, 1, g.canceled)
	assert.Nil(t, g.drives[ownDriveID].items["/big.bin"])
}

func TestCreateFile_HashMismatch(t *testing.T) {
	g := newFakeGraph(t)
	g.overrideHash = "AAAAAAAAAAAAAAAAAAAAAAAAAAA="
	fs := newTestFS(t, g)

	_, err := fs.CreateFile(context.Background(), "/", "corrupt.txt", strings.NewReader("payload"), 7)
	require.ErrorIs(t, err, filesystem.ErrTransport)
	assert.Contains(t, err.Error(), "quickXorHash mismatch")
}

func TestUpdate(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)
	ctx := context.Background()

	e, err := fs.Stat(ctx, "/Documents/report.docx")
	require.NoError(t, err)

	f, _ := entity.AsFile(e)
	require.NoError(t, f.SetField(entity.FieldDescription, "Final figures"))

	updated, err := fs.Update(ctx, f)
	require.NoError(t, err)

	uf, ok := entity.AsFile(updated)
	require.True(t, ok)

	desc, _ := uf.Field(entity.FieldDescription)
	assert.Equal(t, "Final figures", desc)
	assert.Equal(t, "Final figures", g.item(ownDriveID, "/Documents/report.docx").description)

	dir, err := fs.Stat(ctx, "/Documents")
	require.NoError(t, err)

	same, err := fs.Update(ctx, dir)
	require.NoError(t, err)
	assert.Same(t, dir, same)

	shared, err := fs.Stat(ctx, "/Shared with me/Team/plan.txt")
	require.NoError(t, err)

	_, err = fs.Update(ctx, shared)
	require.ErrorIs(t, err, filesystem.ErrReadOnly)

	ro := entity.NewFile("x", "/notes.txt", entity.WithReadOnly(true), entity.WithField(entity.FieldDescription, ""))
	_, err = fs.Update(ctx, ro)
	require.ErrorIs(t, err, filesystem.ErrReadOnly)

	bare := entity.NewFile("y", "/notes.txt")
	_, err = fs.Update(ctx, bare)
	require.ErrorIs(t, err, entity.ErrUnsupportedField)
}

func TestDelete(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)
	ctx := context.Background()

	require.NoError(t, fs.Delete(ctx, "/Documents"))
	assert.Nil(t, g.item(ownDriveID, "/Documents"))
	assert.Nil(t, g.item(ownDriveID, "/Documents/report.docx"))

	assert.ErrorIs(t, fs.Delete(ctx, "/"), filesystem.ErrReadOnly)
	assert.ErrorIs(t, fs.Delete(ctx, SharedWithMePath), filesystem.ErrReadOnly)
	assert.ErrorIs(t, fs.Delete(ctx, "/Shared with me/photo.jpg"), filesystem.ErrReadOnly)
	assert.ErrorIs(t, fs.Delete(ctx, "/missing"), filesystem.ErrNotFound)
}

func TestMove(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)
	ctx := context.Background()

	moved, err := fs.Move(ctx, "/notes.txt", "/Documents")
	require.NoError(t, err)
	assert.Equal(t, "/Documents/notes.txt", moved.FullPath())
	assert.NotNil(t, g.item(ownDriveID, "/Documents/notes.txt"))
	assert.Nil(t, g.item(ownDriveID, "/notes.txt"))

	g.add(ownDriveID, "/report.docx", false, "dup")

	tests := []struct {
		name   string
		from   string
		parent string
		want   error
	}{
		{"name taken", "/report.docx", "/Documents", filesystem.ErrConflict},
		{"into itself", "/Documents", "/Documents/sub", filesystem.ErrConflict},
		{"into shared", "/report.docx", "/Shared with me/Team", filesystem.ErrReadOnly},
		{"out of shared", "/Shared with me/photo.jpg", "/", filesystem.ErrReadOnly},
		{"root", "/", "/Documents", filesystem.ErrReadOnly},
		{"into a file", "/report.docx", "/Documents/notes.txt", filesystem.ErrNotFound},
		{"missing parent", "/report.docx", "/nope", filesystem.ErrNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fs.Move(ctx, tc.from, tc.parent)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestRename(t *testing.T) {
	g := newFakeGraph(t)
	fs := newTestFS(t, g)
	ctx := context.Background()

	renamed, err := fs.Rename(ctx, "/Documents", "Archive")
	require.NoError(t, err)
	assert.Equal(t, "/Archive", renamed.FullPath())
	assert.Equal(t, "Archive", renamed.Name())
	assert.NotNil(t, g.item(ownDriveID, "/Archive/report.docx"))

	same, err := fs.Rename(ctx, "/notes.txt", "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "/notes.txt", same.FullPath())

	_, err = fs.Rename(ctx, "/notes.txt", "Archive")
	require.ErrorIs(t, err, filesystem.ErrConflict)

	_, err = fs.Rename(ctx, "/notes.txt", SharedWithMeName)
	require.ErrorIs(t, err, filesystem.ErrConflict)

	_, err = fs.Rename(ctx, "/", "x")
	require.ErrorIs(t, err, filesystem.ErrReadOnly)

	_, err = fs.Rename(ctx, "/Shared with me/Team", "Mine")
	require.ErrorIs(t, err, filesystem.ErrReadOnly)

	_, err = fs.Rename(ctx, "/notes.txt", "..")
	require.ErrorIs(t, err, filesystem.ErrInvalidName)
}

func TestStatusSentinel(t *testing.T) {
	tests := []struct {
		op   string
		code int
		want error
	}{
		{opList, http.StatusUnauthorized, filesystem.ErrAuthentication},
		{opList, http.StatusForbidden, filesystem.ErrAuthentication},
		{opMkdir, http.StatusForbidden, filesystem.ErrReadOnly},
		{opStat, http.StatusNotFound, filesystem.ErrNotFound},
		{opDelete, http.StatusGone, filesystem.ErrNotFound},
		{opRename, http.StatusConflict, filesystem.ErrConflict},
		{opPut, http.StatusPreconditionFailed, filesystem.ErrConflict},
		{opUpdate, http.StatusLocked, filesystem.ErrReadOnly},
		{opList, http.StatusServiceUnavailable, filesystem.ErrTransport},
		{opPut, http.StatusRequestedRangeNotSatisfiable, filesystem.ErrTransport},
	}

	for _, tc := range tests {
		t.Run(tc.op+" "+http.StatusText(tc.code), func(t *testing.T) {
			assert.ErrorIs(t, statusSentinel(tc.op, tc.code), tc.want)
		})
	}
}

func TestClassify(t *testing.T) {
	err := classify(opStat, "/a", &transport.StatusError{
		StatusCode: http.StatusNotFound,
		RequestID:  "req-1",
		Message:    `{"error":{"code":"itemNotFound","message":"Item does not exist"}}`,
	})

	var fsErr *filesystem.Error
	require.ErrorAs(t, err, &fsErr)
	assert.Equal(t, "itemNotFound: Item does not exist", fsErr.Message)
	assert.Equal(t, "req-1", fsErr.RequestID)

	plain := classify(opStat, "/a", &transport.StatusError{StatusCode: http.StatusBadGateway, Message: "upstream down"})
	require.ErrorAs(t, plain, &fsErr)
	assert.Equal(t, "upstream down", fsErr.Message)

	wrapped := classify(opStat, "/a", context.Canceled)
	assert.True(t, errors.Is(wrapped, context.Canceled))
}

func TestLocationPaths(t *testing.T) {
	tests := []struct {
		loc  location
		want string
	}{
		{location{path: "/"}, "/me/drive/root"},
		{location{path: "/a b/c#1"}, "/me/drive/root:/a%20b/c%231:"},
		{location{shared: true, driveID: "d1", itemID: "i1"}, "/drives/d1/items/i1"},
		{location{shared: true, driveID: "d1", itemID: "i1", rel: "/x y"}, "/drives/d1/items/i1:/x%20y:"},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, tc.loc.itemPath())
	}

	assert.Equal(t, "/me/drive/root/children?$top=200", location{path: "/"}.childrenPath())
}

func TestNew_ChunkSizeAlignment(t *testing.T) {
	fs := New(Config{ChunkSize: chunkAlignment*3 + 7}, nil)
	assert.Equal(t, int64(3*chunkAlignment), fs.chunkSize)

	fs = New(Config{ChunkSize: 10}, nil)
	assert.Equal(t, int64(chunkAlignment), fs.chunkSize)

	fs = New(Config{}, nil)
	assert.Equal(t, int64(DefaultChunkSize), fs.chunkSize)
	assert.Equal(t, int64(simpleUploadMaxSize), fs.simpleUploadMax)
}
