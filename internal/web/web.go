// Package web serves the HTML pages for managing buses and runs.
//
// Every page handler provisions its district's store at the top of the
// request and closes it before returning. A successful POST redirects to
// the page's canonical URL; a rejected one re-renders the page with a 400.
package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"

	"github.com/maloquacious/busboard/internal/logger"
	"github.com/maloquacious/busboard/internal/store"
	"github.com/maloquacious/busboard/internal/tenant"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server holds the dependencies of the public HTML handlers.
type Server struct {
	tenants *tenant.Provisioner
	log     logger.Logger
	pages   map[string]*template.Template
}

// New parses the page templates and returns a Server backed by tenants.
func New(tenants *tenant.Provisioner, log logger.Logger) (*Server, error) {
	if log == nil {
		log = logger.Default
	}
	s := &Server{
		tenants: tenants,
		log:     log,
		pages:   make(map[string]*template.Template),
	}
	for _, name := range []string{"districts.html", "buses.html", "admin.html", "runs.html"} {
		t, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		s.pages[name] = t
	}
	return s, nil
}

// Handler returns the routed, logged and panic-safe HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /ready", s.handleReady)

	buses := s.page(busesPage)
	admin := s.page(adminPage)
	runs := s.page(runsPage)

	if s.tenants.Mode() == tenant.Single {
		mux.HandleFunc("GET /{$}", buses)
		mux.HandleFunc("GET /admin", admin)
		mux.HandleFunc("POST /admin", admin)
		mux.HandleFunc("GET /runs", runs)
		mux.HandleFunc("POST /runs", runs)
	} else {
		mux.HandleFunc("GET /{$}", s.handleDistricts)
		mux.HandleFunc("POST /{$}", s.handleOpenDistrict)
		mux.HandleFunc("GET /district/{district}/{$}", buses)
		mux.HandleFunc("GET /district/{district}/admin", admin)
		mux.HandleFunc("POST /district/{district}/admin", admin)
		mux.HandleFunc("GET /district/{district}/runs", runs)
		mux.HandleFunc("POST /district/{district}/runs", runs)
	}

	return s.recoverPanics(s.logRequests(mux))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.tenants.Ready(); err != nil {
		s.log.Warn("ready: %v", err)
		http.Error(w, "NOT READY", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// links are the canonical URLs of one district's pages.
type links struct {
	Home  string
	Buses string
	Admin string
	Runs  string
}

func (s *Server) linksFor(district string) links {
	if s.tenants.Mode() == tenant.Single {
		return links{Home: "/", Buses: "/", Admin: "/admin", Runs: "/runs"}
	}
	base := "/district/" + district + "/"
	return links{Home: "/", Buses: base, Admin: base + "admin", Runs: base + "runs"}
}

// pageData is the model handed to every template.
type pageData struct {
	Title     string
	District  string
	Single    bool
	Links     links
	Buses     []store.Bus
	Runs      []store.Run
	Districts []string
	Error     string
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := s.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.log.Error("render %s: %v", name, err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// fail maps store and routing errors onto a generic response. Details stay in the log.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrInvalidDistrict) {
		s.log.Warn("%s %s: %v", r.Method, r.URL.Path, err)
		http.NotFound(w, r)
		return
	}
	s.log.Error("%s %s: %v", r.Method, r.URL.Path, err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
