package dropbox

import (
	"context"
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
	"time"

	"github.com/openmined/gridsync/internal/contenthash"
	"github.com/openmined/gridsync/internal/jsonx"
	"github.com/openmined/gridsync/internal/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRefreshToken = "refresh-token"
	testAccessToken  = "access-token"
)

// fakeDropbox implements the handful of endpoints the client uses.
type fakeDropbox struct {
	mu         sync.Mutex
	files      map[string][]byte
	tokenCalls int
	pageSize   int
	failStatus int
	lastArg    map[string]any
}

func newFakeDropbox(t *testing.T) (*fakeDropbox, *Client) {
	t.Helper()
	fd := &fakeDropbox{files: make(map[string][]byte), pageSize: 2}
	srv := httptest.NewServer(fd)
	t.Cleanup(srv.Close)

	c, err := New(&Config{
		AppKey:            "app-key",
		AppSecret:         "app-secret",
		RefreshToken:      testRefreshToken,
		APIURL:            srv.URL + "/2",
		ContentURL:        srv.URL + "/2",
		TokenURL:          srv.URL + "/oauth2/token",
		RequestsPerSecond: 1000,
	})
	require.NoError(t, err)
	return fd, c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, _ := jsonx.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func notFound(w http.ResponseWriter, tag string) {
	writeJSON(w, http.StatusConflict, map[string]any{"error_summary": tag + "/not_found/.."})
}

func (fd *fakeDropbox) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fd.mu.Lock()
	defer fd.mu.Unlock()

	if r.URL.Path == "/oauth2/token" {
		fd.tokenCalls++
		r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != testRefreshToken ||
			r.Form.Get("client_id") != "app-key" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": testAccessToken, "token_type": "bearer", "expires_in": 14400,
		})
		return
	}

	if r.Header.Get("Authorization") != "Bearer "+testAccessToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error_summary": "invalid_access_token/"})
		return
	}
	if fd.failStatus != 0 {
		w.WriteHeader(fd.failStatus)
		return
	}

	switch r.URL.Path {
	case "/2/files/list_folder":
		var arg listFolderArg
		fd.decodeBody(r, &arg)
		names := fd.namesIn(arg.Path)
		if len(names) == 0 {
			notFound(w, "path")
			return
		}
		fd.writePage(w, arg.Path, names, 0)
	case "/2/files/list_folder/continue":
		var arg listFolderContinueArg
		fd.decodeBody(r, &arg)
		folder, offset, _ := strings.Cut(arg.Cursor, "|")
		n, _ := strconv.Atoi(offset)
		fd.writePage(w, folder, fd.namesIn(folder), n)
	case "/2/files/download":
		p := fd.decodeArg(r)
		data, ok := fd.files[p]
		if !ok {
			notFound(w, "path")
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(data)
	case "/2/files/upload":
		p := fd.decodeArg(r)
		data, _ := io.ReadAll(r.Body)
		fd.files[p] = data
		writeJSON(w, http.StatusOK, map[string]any{"name": path.Base(p), "content_hash": contenthash.Sum(data)})
	case "/2/files/delete_v2":
		var arg pathArg
		fd.decodeBody(r, &arg)
		if _, ok := fd.files[arg.Path]; !ok {
			notFound(w, "path_lookup")
			return
		}
		delete(fd.files, arg.Path)
		writeJSON(w, http.StatusOK, map[string]any{})
	default:
		http.NotFound(w, r)
	}
}

func (fd *fakeDropbox) decodeBody(r *http.Request, v any) {
	data, _ := io.ReadAll(r.Body)
	jsonx.Unmarshal(data, v)
}

func (fd *fakeDropbox) decodeArg(r *http.Request) string {
	fd.lastArg = map[string]any{}
	jsonx.Unmarshal([]byte(r.Header.Get(headerAPIArg)), &fd.lastArg)
	p, _ := fd.lastArg["path"].(string)
	return p
}

func (fd *fakeDropbox) namesIn(folder string) []string {
	var names []string
	for p := range fd.files {
		if path.Dir(p) == folder {
			names = append(names, path.Base(p))
		}
	}
	sort.Strings(names)
	return names
}

func (fd *fakeDropbox) writePage(w http.ResponseWriter, folder string, names []string, offset int) {
	end := min(offset+fd.pageSize, len(names))
	var entries []map[string]any
	for _, name := range names[offset:end] {
		data := fd.files[folder+"/"+name]
		entries = append(entries, map[string]any{
			".tag":            "file",
			"name":            name,
			"content_hash":    contenthash.Sum(data),
			"size":            len(data),
			"server_modified": "2024-05-01T10:00:00Z",
		})
	}
	if offset == 0 {
		entries = append(entries, map[string]any{".tag": "folder", "name": "nested"})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":  entries,
		"cursor":   fmt.Sprintf("%s|%d", folder, end),
		"has_more": end < len(names),
	})
}

func TestNewRequiresRefreshToken(t *testing.T) {
	_, err := New(&Config{AppKey: "k"})
	assert.ErrorIs(t, err, ErrNoRefreshToken)
}

func TestListPaginates(t *testing.T) {
	fd, c := newFakeDropbox(t)
	for _, name := range []string{"10p.png", "20p.png", "30_hero.jpg"} {
		fd.files["/alice/SteamGridSync/"+name] = []byte(name)
	}
	fd.files["/alice/other/40p.png"] = []byte("elsewhere")

	entries, err := c.List(context.Background(), "/alice/SteamGridSync")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	e := entries["30_hero.jpg"]
	assert.Equal(t, contenthash.Sum([]byte("30_hero.jpg")), e.Hash)
	assert.EqualValues(t, len("30_hero.jpg"), e.Size)
	assert.True(t, e.ModTime.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	assert.NotContains(t, entries, "nested")
}

func TestListMissingFolderIsEmpty(t *testing.T) {
	_, c := newFakeDropbox(t)
	entries, err := c.List(context.Background(), "/nobody/SteamGridSync")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPutGetDelete(t *testing.T) {
	fd, c := newFakeDropbox(t)
	ctx := context.Background()
	p := "/alice/SteamGridSync/440p.png"
	mtime := time.Date(2024, 3, 2, 1, 0, 0, 0, time.FixedZone("x", 3600))

	require.NoError(t, c.Put(ctx, p, []byte("poster"), mtime))
	assert.Equal(t, "overwrite", fd.lastArg["mode"])
	assert.Equal(t, true, fd.lastArg["mute"])
	assert.Equal(t, "2024-03-02T00:00:00Z", fd.lastArg["client_modified"])

	data, err := c.Get(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "poster", string(data))

	require.NoError(t, c.Delete(ctx, p))
	_, err = c.Get(ctx, p)
	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, p), remote.ErrNotFound)

	assert.Equal(t, 1, fd.tokenCalls, "access token is reused")
}

func TestNonASCIIPath(t *testing.T) {
	fd, c := newFakeDropbox(t)
	p := "/ålice/SteamGridSync/440p.png"

	require.NoError(t, c.Put(context.Background(), p, []byte("x"), time.Time{}))
	assert.Contains(t, fd.files, p)
	assert.NotContains(t, fd.lastArg, "client_modified")
}

func TestInvalidRefreshTokenIsFatal(t *testing.T) {
	fd, _ := newFakeDropbox(t)
	srv := httptest.NewServer(fd)
	t.Cleanup(srv.Close)

	c, err := New(&Config{
		AppKey:       "app-key",
		RefreshToken: "revoked",
		APIURL:       srv.URL + "/2",
		ContentURL:   srv.URL + "/2",
		TokenURL:     srv.URL + "/oauth2/token",
	})
	require.NoError(t, err)

	_, err = c.List(context.Background(), "/alice/SteamGridSync")
	assert.ErrorIs(t, err, remote.ErrUnauthorized)
	assert.True(t, remote.IsFatal(err))
}

func TestServerErrorIsTransient(t *testing.T) {
	fd, c := newFakeDropbox(t)
	fd.failStatus = http.StatusServiceUnavailable

	_, err := c.Get(context.Background(), "/alice/SteamGridSync/440p.png")
	assert.ErrorIs(t, err, remote.ErrTransient)

	var se *remote.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "download", se.Op)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
}

func TestEscapeNonASCII(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"path":"/a.png"}`, `{"path":"/a.png"}`},
		{`{"path":"/é"}`, `{"path":"/\u00e9"}`},
		{`{"path":"/😀"}`, `{"path":"/\ud83d\ude00"}`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeNonASCII(tt.in))
	}
}

func TestStoreKind(t *testing.T) {
	_, c := newFakeDropbox(t)
	assert.Equal(t, remote.KindHash, c.Kind())
	assert.Equal(t, "dropbox", c.Name())
}
