package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/maloquacious/busboard/internal/store"
	"github.com/maloquacious/busboard/internal/tenant"
)

// pageSpec describes one listing page: what it shows and which actions it accepts.
type pageSpec struct {
	template string
	title    string
	actions  map[string]action
	self     func(links) string
	load     func(ctx context.Context, rec store.Records, data *pageData) error
}

var busesPage = pageSpec{
	template: "buses.html",
	title:    "Buses",
	self:     func(l links) string { return l.Buses },
	load:     loadBuses,
}

var adminPage = pageSpec{
	template: "admin.html",
	title:    "Admin",
	actions:  adminActions,
	self:     func(l links) string { return l.Admin },
	load: func(ctx context.Context, rec store.Records, data *pageData) error {
		if err := loadBuses(ctx, rec, data); err != nil {
			return err
		}
		return loadRuns(ctx, rec, data)
	},
}

var runsPage = pageSpec{
	template: "runs.html",
	title:    "Runs",
	actions:  runActions,
	self:     func(l links) string { return l.Runs },
	load:     loadRuns,
}

func loadBuses(ctx context.Context, rec store.Records, data *pageData) (err error) {
	data.Buses, err = rec.ListBuses(ctx)
	return err
}

func loadRuns(ctx context.Context, rec store.Records, data *pageData) (err error) {
	data.Runs, err = rec.ListRuns(ctx)
	return err
}

// page builds the handler for a district listing page.
func (s *Server) page(p pageSpec) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		district := r.PathValue("district")

		if s.tenants.Mode() == tenant.Multi {
			id, err := store.NormalizeDistrict(district)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			district = id
		}

		st, err := s.tenants.EnsureStore(ctx, district)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		defer st.Close()

		data := pageData{
			Title:    p.title,
			District: district,
			Single:   s.tenants.Mode() == tenant.Single,
			Links:    s.linksFor(district),
		}
		status := http.StatusOK

		if r.Method == http.MethodPost {
			name, err := s.mutate(r, st, p.actions)
			if err == nil {
				s.log.Info("district %q: %s ok", district, name)
				http.Redirect(w, r, p.self(data.Links), http.StatusSeeOther)
				return
			}
			if !isBadRequest(err) {
				s.fail(w, r, err)
				return
			}
			s.log.Warn("district %q: %s rejected: %v", district, name, err)
			status = http.StatusBadRequest
			data.Error = err.Error()
		}

		if err := p.load(ctx, st, &data); err != nil {
			s.fail(w, r, err)
			return
		}
		s.render(w, status, p.template, data)
	}
}

func (s *Server) mutate(r *http.Request, rec store.Records, actions map[string]action) (string, error) {
	if err := r.ParseForm(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedForm, err)
	}
	return dispatch(r.Context(), rec, r.PostForm, actions)
}

// handleDistricts lists the provisioned districts.
func (s *Server) handleDistricts(w http.ResponseWriter, r *http.Request) {
	s.renderDistricts(w, r, http.StatusOK, "")
}

// handleOpenDistrict sends the user to a district's bus listing, which
// provisions the district on first visit.
func (s *Server) handleOpenDistrict(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderDistricts(w, r, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrMalformedForm, err).Error())
		return
	}
	raw := r.PostForm.Get("district")
	if raw == "" {
		s.renderDistricts(w, r, http.StatusBadRequest, (&MissingFieldError{Fields: []string{"district"}}).Error())
		return
	}
	id, err := store.NormalizeDistrict(raw)
	if err != nil {
		s.renderDistricts(w, r, http.StatusBadRequest, err.Error())
		return
	}
	http.Redirect(w, r, s.linksFor(id).Buses, http.StatusSeeOther)
}

func (s *Server) renderDistricts(w http.ResponseWriter, r *http.Request, status int, msg string) {
	districts, err := s.tenants.List()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.render(w, status, "districts.html", pageData{
		Title:     "Districts",
		Links:     links{Home: "/"},
		Districts: districts,
		Error:     msg,
	})
}
