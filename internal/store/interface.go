package store

import (
	"context"
	"errors"
)

// StoreState represents the initialization state of a district store.
type StoreState int

const (
	StateMissing         StoreState = iota // File doesn't exist
	StateUninitialized                     // File exists but no schema
	StateVersionMismatch                   // Schema exists but wrong version
	StateReady                             // Initialized and correct version
)

func (s StoreState) String() string {
	switch s {
	case StateMissing:
		return "missing"
	case StateUninitialized:
		return "uninitialized"
	case StateVersionMismatch:
		return "version_mismatch"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

var (
	// ErrStorageUnavailable is returned when a store cannot be created, opened or migrated.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidDistrict is returned for district ids that cannot name a store file.
	ErrInvalidDistrict = errors.New("invalid district id")
)

// BusSort selects how ListBuses orders bus numbers.
type BusSort int

const (
	// SortNumeric orders "1", "2", "10". Non-numeric bus numbers sort as 0.
	SortNumeric BusSort = iota
	// SortLexical orders "1", "10", "2".
	SortLexical
)

// Bus is a vehicle in a district's fleet.
type Bus struct {
	ID        int64
	BusNumber string
	Driver    string
	Status    string
	Notes     string
}

// Run is a scheduled trip. BusNumber loosely refers to Bus.BusNumber;
// nothing enforces that the bus exists.
type Run struct {
	ID          int64
	RunDate     string
	RunTime     string
	GroupName   string
	Destination string
	Driver      string
	BusNumber   string
}

// Records defines the CRUD contract over one district's buses and runs.
// Updates and deletes of missing ids are no-ops, not errors.
type Records interface {
	// ListBuses returns all buses ordered by bus number.
	ListBuses(ctx context.Context) ([]Bus, error)

	// AddBus inserts a bus and returns its new id. Bus numbers need not be unique.
	AddBus(ctx context.Context, b Bus) (int64, error)

	// UpdateBus overwrites driver, status and notes of the bus with the given id.
	UpdateBus(ctx context.Context, id int64, driver, status, notes string) error

	// DeleteBus removes a bus. Runs naming its bus number are left alone.
	DeleteBus(ctx context.Context, id int64) error

	// ListRuns returns all runs ordered by date, then time, then insertion.
	ListRuns(ctx context.Context) ([]Run, error)

	// AddRun inserts a run and returns its new id.
	AddRun(ctx context.Context, r Run) (int64, error)

	// DeleteRun removes a run.
	DeleteRun(ctx context.Context, id int64) error
}
