// Package adminapi serves the JSON-only operator API. It is meant to be
// bound to the loopback interface.
package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/maloquacious/busboard/internal/logger"
	"github.com/maloquacious/busboard/internal/store"
	"github.com/maloquacious/busboard/internal/store/sqlite"
	"github.com/maloquacious/busboard/internal/tenant"
)

// BuildInfo is reported by /admin/status.
type BuildInfo struct {
	Version   string
	BuildDate string
}

// API holds the admin handlers' dependencies.
type API struct {
	tenants  *tenant.Provisioner
	build    BuildInfo
	log      logger.Logger
	shutdown func()
}

// New creates an API. shutdown is called once the shutdown response has
// been written; it must not block.
func New(tenants *tenant.Provisioner, build BuildInfo, log logger.Logger, shutdown func()) *API {
	if log == nil {
		log = logger.Default
	}
	return &API{tenants: tenants, build: build, log: log, shutdown: shutdown}
}

// Handler returns the admin routes wrapped in the JSON-only contract.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /admin/status", a.handleStatus)
	mux.HandleFunc("GET /admin/districts", a.handleListDistricts)
	mux.HandleFunc("POST /admin/districts", a.handleCreateDistrict)
	mux.HandleFunc("POST /admin/shutdown", a.handleShutdown)
	return jsonOnly(mux)
}

func (a *API) mode() string {
	if a.tenants.Mode() == tenant.Single {
		return "single"
	}
	return "multi"
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	districts, err := a.tenants.List()
	if err != nil {
		a.log.Error("admin: status: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "storage_unavailable", "cannot list districts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"version":       a.build.Version,
		"schemaVersion": sqlite.SchemaVersion,
		"buildDate":     a.build.BuildDate,
		"time":          time.Now().UTC().Format(time.RFC3339),
		"mode":          a.mode(),
		"districts":     len(districts),
	})
}

func (a *API) handleListDistricts(w http.ResponseWriter, r *http.Request) {
	districts, err := a.tenants.List()
	if err != nil {
		a.log.Error("admin: list districts: %v", err)
		writeJSONError(w, http.StatusInternalServerError, "storage_unavailable", "cannot list districts")
		return
	}
	if a.tenants.Mode() == tenant.Single {
		districts = []string{""}
	}

	out := make([]tenant.Status, 0, len(districts))
	for _, d := range districts {
		st, err := a.tenants.Verify(r.Context(), d)
		if err != nil {
			a.log.Error("admin: verify %q: %v", d, err)
			writeJSONError(w, http.StatusInternalServerError, "storage_unavailable", "cannot inspect district "+d)
			return
		}
		out = append(out, st)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleCreateDistrict(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		District string `json:"district"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if a.tenants.Mode() == tenant.Multi && payload.District == "" {
		writeJSONError(w, http.StatusBadRequest, "missing_field", "district is required")
		return
	}

	s, err := a.tenants.EnsureStore(r.Context(), payload.District)
	switch {
	case errors.Is(err, store.ErrInvalidDistrict):
		writeJSONError(w, http.StatusBadRequest, "invalid_district", err.Error())
		return
	case err != nil:
		a.log.Error("admin: provision %q: %v", payload.District, err)
		writeJSONError(w, http.StatusInternalServerError, "storage_unavailable", "cannot provision district")
		return
	}
	s.Close()

	st, err := a.tenants.Verify(r.Context(), payload.District)
	if err != nil {
		a.log.Error("admin: verify %q: %v", payload.District, err)
		writeJSONError(w, http.StatusInternalServerError, "storage_unavailable", "cannot inspect district")
		return
	}
	a.log.Info("admin: provisioned district %q", payload.District)
	writeJSON(w, http.StatusCreated, st)
}

func (a *API) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "shutting down"})
	if a.shutdown != nil {
		a.shutdown()
	}
}

// jsonOnly enforces JSON-only contract for admin routes.
func jsonOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept")
		if !strings.Contains(accept, "application/json") && accept != "" && accept != "*/*" {
			writeJSONError(w, http.StatusNotAcceptable, "not_acceptable", "Accept must include application/json")
			return
		}
		if r.Method != http.MethodGet && r.ContentLength != 0 && !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": msg,
	})
}

// ShutdownFunc returns a shutdown hook that calls cancel after a short
// delay so the response can flush.
func ShutdownFunc(cancel context.CancelFunc) func() {
	return func() {
		time.AfterFunc(200*time.Millisecond, cancel)
	}
}
