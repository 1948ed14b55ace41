package adminapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maloquacious/busboard/internal/logger"
	"github.com/maloquacious/busboard/internal/store"
	"github.com/maloquacious/busboard/internal/tenant"
)

func newTestAPI(t *testing.T, mode tenant.Mode, shutdown func()) http.Handler {
	t.Helper()
	log := logger.New(&bytes.Buffer{}, logger.LevelDebug)
	p, err := tenant.New(filepath.Join(t.TempDir(), "data"), mode, store.SortNumeric, log)
	require.NoError(t, err)
	return New(p, BuildInfo{Version: "0.1.0-test", BuildDate: "2026-01-01"}, log, shutdown).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestStatus(t *testing.T) {
	h := newTestAPI(t, tenant.Multi, nil)

	w := do(t, h, http.MethodGet, "/admin/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "0.1.0-test", got["version"])
	assert.Equal(t, "0.2", got["schemaVersion"])
	assert.Equal(t, "multi", got["mode"])
	assert.Equal(t, float64(0), got["districts"])
}

func TestDistricts_CreateAndList(t *testing.T) {
	h := newTestAPI(t, tenant.Multi, nil)

	w := do(t, h, http.MethodPost, "/admin/districts", `{"district":"North"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created tenant.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "north", created.District)
	assert.Equal(t, "ready", created.State)
	assert.Equal(t, "0.2", created.Version)

	w = do(t, h, http.MethodPost, "/admin/districts", `{"district":"north"}`)
	require.Equal(t, http.StatusCreated, w.Code, "provisioning is idempotent")

	w = do(t, h, http.MethodGet, "/admin/districts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []tenant.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "north", list[0].District)
	assert.Equal(t, "ready", list[0].State)
}

func TestDistricts_CreateRejected(t *testing.T) {
	h := newTestAPI(t, tenant.Multi, nil)

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "bad json", body: `{`, code: "invalid_request"},
		{name: "missing district", body: `{}`, code: "missing_field"},
		{name: "traversal", body: `{"district":"../x"}`, code: "invalid_district"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/admin/districts", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			var got map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.Equal(t, tt.code, got["error"])
		})
	}
}

func TestJSONOnly(t *testing.T) {
	h := newTestAPI(t, tenant.Multi, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/status", nil)
	req.Header.Set("Accept", "text/html")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotAcceptable, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/districts", strings.NewReader("district=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestShutdown(t *testing.T) {
	called := false
	h := newTestAPI(t, tenant.Multi, func() { called = true })

	w := do(t, h, http.MethodPost, "/admin/shutdown", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.True(t, called)
}

func TestSingleModeListsGlobalStore(t *testing.T) {
	h := newTestAPI(t, tenant.Single, nil)

	w := do(t, h, http.MethodGet, "/admin/districts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []tenant.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "missing", list[0].State)
	assert.Equal(t, store.DefaultDBFile, filepath.Base(list[0].Path))
}
