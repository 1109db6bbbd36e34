package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/leapstack-labs/barrel/internal/resolve"
	"github.com/leapstack-labs/barrel/internal/source"
	"github.com/leapstack-labs/barrel/internal/testutil"
	"github.com/leapstack-labs/barrel/pkg/core"
	"github.com/leapstack-labs/barrel/pkg/manifest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManifest() *core.Manifest {
	return &core.Manifest{
		Name: "admins",
		Modules: []core.ModuleRef{
			{Path: "./a", Mode: core.ModeWildcard},
			{Path: "./b", Mode: core.ModeNamed, Names: []core.NamedExport{{Name: "baz", As: "qux"}}},
		},
	}
}

// newTestServer returns a server whose reload resolves against src.
func newTestServer(t *testing.T, src source.MapSource) *Server {
	t.Helper()
	r := resolve.New(resolve.Config{Source: src})
	return New(Config{
		Logger: testutil.NewTestLogger(t),
		Reload: func(ctx context.Context, _ []string) (*core.Manifest, *core.Surface, error) {
			m := testManifest()
			s, err := r.Resolve(ctx, m)
			return m, s, err
		},
	})
}

func do(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHandler_Health(t *testing.T) {
	srv := newTestServer(t, source.MapSource{"./a": {"foo"}, "./b": {"baz"}})
	h := srv.Handler()

	rec := do(t, h, "/-/healthy")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "/-/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no surface resolved yet")

	require.NoError(t, srv.Refresh(context.Background(), nil))
	rec = do(t, h, "/-/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_inflight_requests")
}

func TestHandler_Surface(t *testing.T) {
	srv := newTestServer(t, source.MapSource{"./a": {"foo", "bar"}, "./b": {"baz"}})
	require.NoError(t, srv.Refresh(context.Background(), nil))
	h := srv.Handler()

	rec := do(t, h, "/surface")
	require.Equal(t, http.StatusOK, rec.Code)

	var body surfaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "admins", body.Manifest)
	assert.Equal(t, 3, body.Symbols)
	assert.Empty(t, body.Error)

	_, surface, _, _ := srv.Snapshot().Current()
	assert.Equal(t, manifest.Digest(surface), body.Digest)
	assert.Equal(t, `"`+body.Digest+`"`, rec.Header().Get("ETag"))

	rec = do(t, h, "/surface/qux")
	require.Equal(t, http.StatusOK, rec.Code)
	var b core.Binding
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	assert.Equal(t, core.Binding{Name: "qux", Module: "./b", Original: "baz", Ref: 1}, b)

	rec = do(t, h, "/surface/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `symbol \"nope\" is not exported`)

	rec = do(t, h, "/entry.js")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/javascript"))
	assert.Contains(t, rec.Body.String(), `export { foo, bar } from "./a";`)
}

func TestRefresh_KeepsLastGoodSurface(t *testing.T) {
	src := source.MapSource{"./a": {"foo"}, "./b": {"baz"}}
	srv := newTestServer(t, src)
	require.NoError(t, srv.Refresh(context.Background(), nil))

	// ./a now collides with the renamed symbol from ./b.
	src["./a"] = []string{"foo", "qux"}
	err := srv.Refresh(context.Background(), []string{"/src/a.ts"})
	require.True(t, errors.Is(err, core.ErrExportCollision))

	h := srv.Handler()
	rec := do(t, h, "/surface")
	require.Equal(t, http.StatusOK, rec.Code)
	var body surfaceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Symbols)
	assert.Contains(t, body.Error, "export collision")

	assert.Equal(t, http.StatusOK, do(t, h, "/-/ready").Code)
}

func TestHandler_NotReady(t *testing.T) {
	srv := newTestServer(t, source.MapSource{})
	err := srv.Refresh(context.Background(), nil)
	require.True(t, errors.Is(err, core.ErrModuleNotFound))

	h := srv.Handler()
	for _, path := range []string{"/surface", "/surface/foo", "/entry.js"} {
		rec := do(t, h, path)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.Contains(t, rec.Body.String(), "module not found", path)
	}
	assert.Contains(t, do(t, h, "/-/ready").Body.String(), "module not found")
}

func TestRefresh_NoReloadFunc(t *testing.T) {
	srv := New(Config{})
	assert.Error(t, srv.Refresh(context.Background(), nil))
}
