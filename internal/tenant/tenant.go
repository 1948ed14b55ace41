// Package tenant provisions the per-district SQLite stores.
//
// A Provisioner never caches open stores: every EnsureStore call returns a
// freshly opened store that the caller closes when its request ends.
package tenant

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/maloquacious/busboard/internal/logger"
	"github.com/maloquacious/busboard/internal/store"
	"github.com/maloquacious/busboard/internal/store/sqlite"
)

// Mode selects between one global store and one store per district.
type Mode int

const (
	Multi Mode = iota
	Single
)

// Provisioner maps district ids to store files under a data directory.
type Provisioner struct {
	dataDir string
	mode    Mode
	busSort store.BusSort
	log     logger.Logger
}

// New creates a Provisioner and makes sure dataDir exists.
func New(dataDir string, mode Mode, busSort store.BusSort, log logger.Logger) (*Provisioner, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data directory: %v", store.ErrStorageUnavailable, err)
	}
	if log == nil {
		log = logger.Default
	}
	return &Provisioner{
		dataDir: dataDir,
		mode:    mode,
		busSort: busSort,
		log:     log,
	}, nil
}

// DataDir returns the directory holding the store files.
func (p *Provisioner) DataDir() string {
	return p.dataDir
}

// Mode reports the deployment mode.
func (p *Provisioner) Mode() Mode {
	return p.mode
}

// Path resolves the store file for a district, normalizing the id.
// In single mode the district is ignored.
func (p *Provisioner) Path(district string) (string, error) {
	_, path, err := p.resolve(district)
	return path, err
}

// resolve returns the normalized district id and its store file. The id is
// empty in single mode.
func (p *Provisioner) resolve(district string) (string, string, error) {
	if p.mode == Single {
		return "", store.GetDBPath(p.dataDir), nil
	}
	id, err := store.NormalizeDistrict(district)
	if err != nil {
		return "", "", err
	}
	return id, store.DistrictPath(p.dataDir, id), nil
}

// EnsureStore opens the district's store, creating and migrating it if
// needed. Calling it again for the same district leaves existing data and
// schema untouched. The caller must Close the returned store.
func (p *Provisioner) EnsureStore(ctx context.Context, district string) (*sqlite.SQLiteStore, error) {
	path, err := p.Path(district)
	if err != nil {
		return nil, err
	}

	s := sqlite.New(path, p.busSort)
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}

	applied, err := s.Migrate(ctx)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}
	if len(applied) > 0 {
		p.log.Info("tenant: %s: applied schema %v", path, applied)
	}
	return s, nil
}

// Status describes a store without modifying it.
type Status struct {
	District string `json:"district"`
	Path     string `json:"path"`
	State    string `json:"state"`
	Version  string `json:"version"`
}

// Verify reports the state of a district's store. The store is opened read
// only; a missing file is reported as StateMissing and is not created.
func (p *Provisioner) Verify(ctx context.Context, district string) (Status, error) {
	id, path, err := p.resolve(district)
	if err != nil {
		return Status{}, err
	}
	st := Status{District: id, Path: path, State: store.StateMissing.String()}

	exists, err := store.CheckExists(path)
	if err != nil {
		return st, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}
	if !exists {
		return st, nil
	}

	s := sqlite.New(path, p.busSort)
	if err := s.OpenReadOnly(); err != nil {
		return st, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}
	defer s.Close()

	state, err := s.CheckState(ctx)
	if err != nil {
		return st, err
	}
	st.State = state.String()
	if state != store.StateUninitialized {
		if st.Version, err = s.GetSchemaVersion(ctx); err != nil {
			return st, err
		}
	}
	return st, nil
}

// List returns the known districts in id order. Single mode has none.
func (p *Provisioner) List() ([]string, error) {
	if p.mode == Single {
		return nil, nil
	}
	districts, err := store.ListDistricts(p.dataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStorageUnavailable, err)
	}
	return districts, nil
}

// Ready reports whether the data directory is still usable.
func (p *Provisioner) Ready() error {
	info, err := os.Stat(p.dataDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("data directory is not a directory")
	}
	return nil
}
