package onedrive

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/tonimelisma/cloudexplorer/pkg/quickxorhash"
)

const (
	testToken   = "graph-token"
	testCreated = "2024-01-02T03:04:05Z"
	testChanged = "2024-02-03T04:05:06Z"
	ownDriveID  = "drive-a"
	peerDriveID = "drive-b"
)

type fakeItem struct {
	id          string
	name        string
	folder      bool
	content     []byte
	description string
	created     string
	modified    string
}

type fakeDrive struct {
	id    string
	items map[string]*fakeItem // keyed by path, "/" is the drive root
}

type fakeUpload struct {
	drive    *fakeDrive
	path     string
	data     []byte
	received int64
}

// fakeGraph is an in-memory subset of the Graph drive API: path and id
// addressing, paged children, folder creation, simple and session uploads,
// PATCH and DELETE, and sharedWithMe.
type fakeGraph struct {
	mu     sync.Mutex
	srv    *httptest.Server
	drives map[string]*fakeDrive
	shared []string // item ids in the peer drive shared with the user
	nextID int

	pageSize     int
	uploads      map[string]*fakeUpload
	chunkAuth    []string
	chunks       int
	canceled     int
	failChunk    int // 1-based chunk number answered with 500
	overrideHash string
	requests     []string
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()

	g := &fakeGraph{
		drives: map[string]*fakeDrive{
			ownDriveID:  {id: ownDriveID, items: map[string]*fakeItem{}},
			peerDriveID: {id: peerDriveID, items: map[string]*fakeItem{}},
		},
		uploads: map[string]*fakeUpload{},
	}

	g.add(ownDriveID, "/", true, "")
	g.add(ownDriveID, "/Documents", true, "")
	g.add(ownDriveID, "/Documents/report.docx", false, "quarterly numbers").description = "Quarterly"
	g.add(ownDriveID, "/notes.txt", false, "remember the milk")

	g.add(peerDriveID, "/", true, "")
	team := g.add(peerDriveID, "/Team", true, "")
	g.add(peerDriveID, "/Team/plan.txt", false, "ship it")
	photo := g.add(peerDriveID, "/photo.jpg", false, "jpeg")
	g.shared = []string{team.id, photo.id}

	g.srv = httptest.NewServer(http.HandlerFunc(g.serve))
	t.Cleanup(g.srv.Close)

	return g
}

func (g *fakeGraph) add(driveID, p string, folder bool, content string) *fakeItem {
	g.nextID++

	it := &fakeItem{
		id:       fmt.Sprintf("%s-%d", driveID, g.nextID),
		name:     path.Base(p),
		folder:   folder,
		created:  testCreated,
		modified: testChanged,
	}

	if p == "/" {
		it.name = "root"
	}

	if !folder {
		it.content = []byte(content)
	}

	g.drives[driveID].items[p] = it

	return it
}

func (g *fakeGraph) item(driveID, p string) *fakeItem {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.drives[driveID].items[p]
}

func (g *fakeGraph) requestCount(prefix string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0

	for _, r := range g.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}

	return n
}

func (d *fakeDrive) pathOf(id string) (string, bool) {
	for p, it := range d.items {
		if it.id == id {
			return p, true
		}
	}

	return "", false
}

func (d *fakeDrive) children(p string) []string {
	var out []string

	for cp := range d.items {
		if cp != "/" && path.Dir(cp) == p {
			out = append(out, cp)
		}
	}

	sort.Strings(out)

	return out
}

// relocate moves the item at from and everything beneath it to to.
func (d *fakeDrive) relocate(from, to string) {
	moved := map[string]*fakeItem{}

	for p, it := range d.items {
		if p == from || strings.HasPrefix(p, from+"/") {
			moved[to+strings.TrimPrefix(p, from)] = it
			delete(d.items, p)
		}
	}

	for p, it := range moved {
		d.items[p] = it
	}

	d.items[to].name = path.Base(to)
}

func (g *fakeGraph) itemJSON(d *fakeDrive, it *fakeItem) map[string]any {
	m := map[string]any{
		"id":                   it.id,
		"name":                 it.name,
		"eTag":                 "etag-" + it.id,
		"createdDateTime":      it.created,
		"lastModifiedDateTime": it.modified,
		"parentReference":      map[string]any{"driveId": d.id},
	}

	if it.folder {
		m["folder"] = map[string]any{"childCount": 0}
		return m
	}

	h := quickxorhash.New()
	_, _ = h.Write(it.content)

	sum := quickxorhash.Base64(h)
	if g.overrideHash != "" {
		sum = g.overrideHash
	}

	m["size"] = len(it.content)
	m["description"] = it.description
	m["file"] = map[string]any{
		"mimeType": "text/plain",
		"hashes":   map[string]any{"quickXorHash": sum},
	}

	return m
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func graphError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

// route splits a request path into drive, item path and the trailing
// action ("", "/children", "/content", "/createUploadSession").
func (g *fakeGraph) route(p string) (d *fakeDrive, itemPath, action string, ok bool) {
	var rest string

	switch {
	case strings.HasPrefix(p, "/me/drive/root"):
		d, itemPath, rest = g.drives[ownDriveID], "/", strings.TrimPrefix(p, "/me/drive/root")
	case strings.HasPrefix(p, "/drives/"):
		driveID, rem, _ := strings.Cut(strings.TrimPrefix(p, "/drives/"), "/items/")

		d = g.drives[driveID]
		if d == nil {
			return nil, "", "", false
		}

		id := rem
		if i := strings.IndexAny(rem, ":/"); i >= 0 {
			id, rest = rem[:i], rem[i:]
		}

		if itemPath, ok = d.pathOf(id); !ok {
			return nil, "", "", false
		}
	default:
		return nil, "", "", false
	}

	if strings.HasPrefix(rest, ":") {
		rel, after, found := strings.Cut(rest[1:], ":")
		if !found {
			return nil, "", "", false
		}

		itemPath, rest = path.Join(itemPath, rel), after
	}

	return d, itemPath, rest, true
}

func (g *fakeGraph) serve(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.requests = append(g.requests, r.Method+" "+r.URL.Path)

	if strings.HasPrefix(r.URL.Path, "/upload/") {
		g.serveUpload(w, r)
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+testToken {
		graphError(w, http.StatusUnauthorized, "InvalidAuthenticationToken", "Access token is empty.")
		return
	}

	if r.URL.Path == "/me/drive/sharedWithMe" {
		g.serveShared(w)
		return
	}

	d, p, action, ok := g.route(r.URL.Path)
	if !ok {
		graphError(w, http.StatusNotFound, "itemNotFound", "The resource could not be found.")
		return
	}

	switch {
	case r.Method == http.MethodGet && action == "":
		g.serveGet(w, d, p)
	case r.Method == http.MethodGet && action == "/children":
		g.serveChildren(w, r, d, p)
	case r.Method == http.MethodPost && action == "/children":
		g.serveMkdir(w, r, d, p)
	case r.Method == http.MethodPut && action == "/content":
		g.servePut(w, r, d, p)
	case r.Method == http.MethodPost && action == "/createUploadSession":
		g.serveSession(w, d, p)
	case r.Method == http.MethodPatch && action == "":
		g.servePatch(w, r, d, p)
	case r.Method == http.MethodDelete && action == "":
		g.serveDelete(w, d, p)
	default:
		graphError(w, http.StatusBadRequest, "invalidRequest", "unsupported "+r.Method+" "+action)
	}
}

func (g *fakeGraph) serveGet(w http.ResponseWriter, d *fakeDrive, p string) {
	it := d.items[p]
	if it == nil {
		graphError(w, http.StatusNotFound, "itemNotFound", "The resource could not be found.")
		return
	}

	writeJSON(w, http.StatusOK, g.itemJSON(d, it))
}

func (g *fakeGraph) serveChildren(w http.ResponseWriter, r *http.Request, d *fakeDrive, p string) {
	if d.items[p] == nil {
		graphError(w, http.StatusNotFound, "itemNotFound", "The resource could not be found.")
		return
	}

	kids := d.children(p)
	skip, _ := strconv.Atoi(r.URL.Query().Get("$skiptoken"))
	kids = kids[min(skip, len(kids)):]

	resp := map[string]any{}

	if g.pageSize > 0 && len(kids) > g.pageSize {
		kids = kids[:g.pageSize]
		resp["@odata.nextLink"] = g.srv.URL + r.URL.EscapedPath() + "?$skiptoken=" + strconv.Itoa(skip+g.pageSize)
	}

	values := make([]map[string]any, 0, len(kids))
	for _, cp := range kids {
		values = append(values, g.itemJSON(d, d.items[cp]))
	}

	resp["value"] = values
	writeJSON(w, http.StatusOK, resp)
}

func (g *fakeGraph) serveShared(w http.ResponseWriter) {
	peer := g.drives[peerDriveID]
	values := make([]map[string]any, 0, len(g.shared))

	for _, id := range g.shared {
		p, _ := peer.pathOf(id)
		it := peer.items[p]
		m := g.itemJSON(peer, it)

		remote := map[string]any{"id": it.id, "parentReference": map[string]any{"driveId": peer.id}}
		if it.folder {
			remote["folder"] = map[string]any{"childCount": 1}
		}

		m["remoteItem"] = remote
		delete(m, "parentReference")
		values = append(values, m)
	}

	writeJSON(w, http.StatusOK, map[string]any{"value": values})
}

func (g *fakeGraph) serveMkdir(w http.ResponseWriter, r *http.Request, d *fakeDrive, parent string) {
	var req struct {
		Name string `json:"name"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		graphError(w, http.StatusBadRequest, "invalidRequest", err.Error())
		return
	}

	if d.items[parent] == nil {
		graphError(w, http.StatusNotFound, "itemNotFound", "parent not found")
		return
	}

	target := path.Join(parent, req.Name)
	if d.items[target] != nil {
		graphError(w, http.StatusConflict, "nameAlreadyExists", "An item with the same name already exists.")
		return
	}

	writeJSON(w, http.StatusCreated, g.itemJSON(d, g.add(d.id, target, true, "")))
}

func (g *fakeGraph) servePut(w http.ResponseWriter, r *http.Request, d *fakeDrive, p string) {
	if !g.creatable(w, d, p) {
		return
	}

	body, _ := io.ReadAll(r.Body)
	writeJSON(w, http.StatusCreated, g.itemJSON(d, g.add(d.id, p, false, string(body))))
}

func (g *fakeGraph) serveSession(w http.ResponseWriter, d *fakeDrive, p string) {
	if !g.creatable(w, d, p) {
		return
	}

	g.nextID++
	id := strconv.Itoa(g.nextID)
	g.uploads[id] = &fakeUpload{drive: d, path: p}

	writeJSON(w, http.StatusOK, map[string]any{"uploadUrl": g.srv.URL + "/upload/" + id})
}

func (g *fakeGraph) creatable(w http.ResponseWriter, d *fakeDrive, p string) bool {
	if d.items[path.Dir(p)] == nil {
		graphError(w, http.StatusNotFound, "itemNotFound", "parent not found")
		return false
	}

	if d.items[p] != nil {
		graphError(w, http.StatusConflict, "nameAlreadyExists", "An item with the same name already exists.")
		return false
	}

	return true
}

func (g *fakeGraph) serveUpload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/upload/")

	up := g.uploads[id]
	if up == nil {
		graphError(w, http.StatusNotFound, "itemNotFound", "no such upload session")
		return
	}

	if r.Method == http.MethodDelete {
		delete(g.uploads, id)
		g.canceled++
		w.WriteHeader(http.StatusNoContent)

		return
	}

	g.chunks++
	g.chunkAuth = append(g.chunkAuth, r.Header.Get("Authorization"))

	if g.chunks == g.failChunk {
		graphError(w, http.StatusInternalServerError, "generalException", "chunk rejected")
		return
	}

	var start, end, total int64
	if _, err := fmt.Sscanf(r.Header.Get("Content-Range"), "bytes %d-%d/%d", &start, &end, &total); err != nil || start != up.received {
		graphError(w, http.StatusRequestedRangeNotSatisfiable, "invalidRange", "unexpected range")
		return
	}

	body, _ := io.ReadAll(r.Body)
	up.data = append(up.data, body...)
	up.received += int64(len(body))

	if up.received < total {
		writeJSON(w, http.StatusAccepted, map[string]any{"nextExpectedRanges": []string{strconv.FormatInt(up.received, 10) + "-"}})
		return
	}

	delete(g.uploads, id)
	writeJSON(w, http.StatusCreated, g.itemJSON(up.drive, g.add(up.drive.id, up.path, false, string(up.data))))
}

func (g *fakeGraph) servePatch(w http.ResponseWriter, r *http.Request, d *fakeDrive, p string) {
	it := d.items[p]
	if it == nil {
		graphError(w, http.StatusNotFound, "itemNotFound", "The resource could not be found.")
		return
	}

	var req struct {
		Name            string  `json:"name"`
		Description     *string `json:"description"`
		ParentReference *struct {
			ID string `json:"id"`
		} `json:"parentReference"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		graphError(w, http.StatusBadRequest, "invalidRequest", err.Error())
		return
	}

	dest := p

	if req.ParentReference != nil {
		parent, ok := d.pathOf(req.ParentReference.ID)
		if !ok {
			graphError(w, http.StatusNotFound, "itemNotFound", "parent not found")
			return
		}

		dest = path.Join(parent, it.name)
	}

	if req.Name != "" {
		dest = path.Join(path.Dir(dest), req.Name)
	}

	if dest != p {
		if d.items[dest] != nil {
			graphError(w, http.StatusConflict, "nameAlreadyExists", "An item with the same name already exists.")
			return
		}

		d.relocate(p, dest)
	}

	if req.Description != nil {
		it.description = *req.Description
	}

	writeJSON(w, http.StatusOK, g.itemJSON(d, it))
}

func (g *fakeGraph) serveDelete(w http.ResponseWriter, d *fakeDrive, p string) {
	if d.items[p] == nil {
		graphError(w, http.StatusNotFound, "itemNotFound", "The resource could not be found.")
		return
	}

	for cp := range d.items {
		if cp == p || strings.HasPrefix(cp, p+"/") {
			delete(d.items, cp)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
