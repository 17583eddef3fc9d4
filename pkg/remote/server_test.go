package remote

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blimp-pm/blimp/pkg/model"
	"github.com/blimp-pm/blimp/pkg/repository"
	"github.com/blimp-pm/blimp/pkg/version"
)

func newTestServer(t *testing.T) (*httptest.Server, repository.Repository) {
	t.Helper()
	root := t.TempDir()
	repo := repository.New(root)

	dir := filepath.Join(root, "libm", "1.0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	pkg := model.Package{Name: "libm", Version: version.MustParse("1.0")}
	data, err := json.Marshal(pkg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "desc"), data, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "archive"), []byte("archive-bytes"), 0o644))

	s := NewServer(repo, "welcome to blimp", nil)
	return httptest.NewServer(s.Router()), repo
}

func TestHandleRoot(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Blimp server version")
}

func TestHandleMOTD(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/motd")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "welcome to blimp", string(body))
}

func TestHandleListAndInfo(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/package")
	require.NoError(t, err)
	defer resp.Body.Close()
	var packages []model.Package
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&packages))
	assert.Len(t, packages, 1)

	resp2, err := http.Get(srv.URL + "/package/libm/version/1.0")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}

func TestHandleInfoInvalidName(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/package/bad_name!/version/1.0")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleInfoNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/package/libm/version/9.9")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleArchiveHeadAndGet(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	headResp, err := http.Head(srv.URL + "/package/libm/version/1.0/archive")
	require.NoError(t, err)
	defer headResp.Body.Close()
	assert.Equal(t, "13", headResp.Header.Get("Content-Length"))

	getResp, err := http.Get(srv.URL + "/package/libm/version/1.0/archive")
	require.NoError(t, err)
	defer getResp.Body.Close()
	body, _ := io.ReadAll(getResp.Body)
	assert.Equal(t, "archive-bytes", string(body))
	assert.Equal(t, archiveContentType, getResp.Header.Get("Content-Type"))
}
