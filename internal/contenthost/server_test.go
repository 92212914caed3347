package contenthost

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	helpers "git.home.luguber.info/inful/hotupdate/internal/testutil/testutils"
)

func get(t *testing.T, h http.Handler, target string) (int, string, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, rec.Header().Get("Content-Type"), string(body)
}

func newSite(t *testing.T) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), "www")
	helpers.WriteTree(t, root, map[string]string{
		"index.html":   "<html>home</html>",
		"js/app.mjs":   "export {}",
		"data/x.json":  "{}",
		"bin/blob.xyz": "raw",
	})
	return root
}

func TestServe_EntryFileAndTypes(t *testing.T) {
	root := newSite(t)
	s := New(func() string { return root }, "index.html", nil)

	code, ctype, body := get(t, s, "/")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "text/html", ctype)
	assert.Equal(t, "<html>home</html>", body)

	_, ctype, _ = get(t, s, "/js/app.mjs")
	assert.Equal(t, "application/javascript", ctype)
	_, ctype, _ = get(t, s, "/data/x.json")
	assert.Equal(t, "application/json", ctype)
	_, ctype, _ = get(t, s, "/bin/blob.xyz")
	assert.Equal(t, "application/octet-stream", ctype)
}

func TestServe_NotFound(t *testing.T) {
	root := newSite(t)
	s := New(func() string { return root }, "index.html", nil)

	code, _, _ := get(t, s, "/missing.html")
	assert.Equal(t, http.StatusNotFound, code)
	code, _, _ = get(t, s, "/js")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestServe_BlocksEscapes(t *testing.T) {
	root := newSite(t)
	secret := filepath.Join(filepath.Dir(root), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))
	require.NoError(t, os.Symlink(secret, filepath.Join(root, "link.txt")))
	s := New(func() string { return root }, "index.html", nil)

	code, _, body := get(t, s, "/link.txt")
	assert.Equal(t, http.StatusNotFound, code)
	assert.NotContains(t, body, "secret")

	code, _, _ = get(t, s, "/../secret.txt")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestReload_FlushesCache(t *testing.T) {
	root := newSite(t)
	s := New(func() string { return root }, "index.html", nil)

	_, _, body := get(t, s, "/")
	require.Equal(t, "<html>home</html>", body)
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>v2</html>"), 0o600))

	_, _, body = get(t, s, "/")
	assert.Equal(t, "<html>home</html>", body, "served from cache")

	require.NoError(t, s.Reload(root))
	_, _, body = get(t, s, "/")
	assert.Equal(t, "<html>v2</html>", body)
}

func TestReload_SwitchesRoot(t *testing.T) {
	bundle := newSite(t)
	active := filepath.Join(t.TempDir(), "www")
	helpers.WriteTree(t, active, map[string]string{"index.html": "active"})

	current := bundle
	s := New(func() string { return current }, "index.html", nil)
	_, _, body := get(t, s, "/")
	require.Equal(t, "<html>home</html>", body)

	current = active
	require.NoError(t, s.Reload(active))
	_, _, body = get(t, s, "/")
	assert.Equal(t, "active", body)
}

func TestWatcher_FlushesOnChange(t *testing.T) {
	root := newSite(t)
	s := New(func() string { return root }, "index.html", nil)
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer func() { _ = s.Close() }()

	_, _, body := get(t, s, "/")
	require.Equal(t, "<html>home</html>", body)
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<html>edited</html>"), 0o600))

	assert.Eventually(t, func() bool {
		_, _, body := get(t, s, "/")
		return body == "<html>edited</html>"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestServe_RejectsWrites(t *testing.T) {
	root := newSite(t)
	s := New(func() string { return root }, "index.html", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMimeType(t *testing.T) {
	assert.Equal(t, "application/wasm", MimeType("a/b.WASM"))
	assert.Equal(t, "image/svg+xml", MimeType("icon.svg"))
	assert.Equal(t, "image/png", MimeType("logo.png"))
}
