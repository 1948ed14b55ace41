package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maloquacious/busboard/internal/store"
)

// openTestStore opens and migrates a store in a temp directory.
func openTestStore(t *testing.T, sort store.BusSort) *SQLiteStore {
	t.Helper()

	s := New(filepath.Join(t.TempDir(), "test.db"), sort)
	require.NoError(t, s.Open())
	t.Cleanup(func() { assert.NoError(t, s.Close()) })

	_, err := s.Migrate(context.Background())
	require.NoError(t, err)
	return s
}

func TestMigrate_FreshStore(t *testing.T) {
	ctx := context.Background()
	s := New(filepath.Join(t.TempDir(), "fresh.db"), store.SortNumeric)
	require.NoError(t, s.Open())
	defer s.Close()

	state, err := s.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateUninitialized, state)

	applied, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0.1", "0.2"}, applied)

	state, err = s.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, state)

	version, err := s.GetSchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, store.SortNumeric)

	id, err := s.AddBus(ctx, store.Bus{BusNumber: "7", Driver: "Ortiz", Status: "active"})
	require.NoError(t, err)

	applied, err := s.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	buses, err := s.ListBuses(ctx)
	require.NoError(t, err)
	require.Len(t, buses, 1)
	assert.Equal(t, id, buses[0].ID)
}

func TestMigrate_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")

	first := New(path, store.SortNumeric)
	require.NoError(t, first.Open())
	_, err := first.Migrate(ctx)
	require.NoError(t, err)
	_, err = first.AddRun(ctx, store.Run{RunDate: "2024-09-01", RunTime: "08:00", GroupName: "Band", Destination: "Stadium", Driver: "Kim", BusNumber: "3"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := New(path, store.SortNumeric)
	require.NoError(t, second.Open())
	defer second.Close()
	_, err = second.Migrate(ctx)
	require.NoError(t, err)

	runs, err := second.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "Band", runs[0].GroupName)
}

// Stores created before version tracking have the tables but no
// schema_migrations. Migration must adopt them without losing rows.
func TestMigrate_AdoptsUntrackedStore(t *testing.T) {
	tests := []struct {
		name   string
		ddl    string
		insert string
	}{
		{
			name:   "without notes column",
			ddl:    `CREATE TABLE buses (id INTEGER PRIMARY KEY AUTOINCREMENT, bus_number TEXT NOT NULL, driver TEXT NOT NULL, status TEXT NOT NULL)`,
			insert: `INSERT INTO buses (bus_number, driver, status) VALUES ('12', 'Smith', 'active')`,
		},
		{
			name:   "with notes column",
			ddl:    `CREATE TABLE buses (id INTEGER PRIMARY KEY AUTOINCREMENT, bus_number TEXT NOT NULL, driver TEXT NOT NULL, status TEXT NOT NULL, notes TEXT DEFAULT '')`,
			insert: `INSERT INTO buses (bus_number, driver, status, notes) VALUES ('12', 'Smith', 'active', '')`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "buses.db")

			raw, err := sql.Open("sqlite", path)
			require.NoError(t, err)
			_, err = raw.Exec(tt.ddl)
			require.NoError(t, err)
			_, err = raw.Exec(tt.insert)
			require.NoError(t, err)
			require.NoError(t, raw.Close())

			s := New(path, store.SortNumeric)
			require.NoError(t, s.Open())
			defer s.Close()

			_, err = s.Migrate(ctx)
			require.NoError(t, err)

			state, err := s.CheckState(ctx)
			require.NoError(t, err)
			assert.Equal(t, store.StateReady, state)

			buses, err := s.ListBuses(ctx)
			require.NoError(t, err)
			require.Len(t, buses, 1)
			assert.Equal(t, store.Bus{ID: 1, BusNumber: "12", Driver: "Smith", Status: "active"}, buses[0])
		})
	}
}

func TestCheckState_VersionMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, store.SortNumeric)

	_, err := s.db.Exec(`DELETE FROM schema_migrations WHERE version = ?`, SchemaVersion)
	require.NoError(t, err)

	state, err := s.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateVersionMismatch, state)
}

func TestNotOpened(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "closed.db"), store.SortNumeric)
	ctx := context.Background()

	_, err := s.Migrate(ctx)
	assert.Error(t, err)
	_, err = s.CheckState(ctx)
	assert.Error(t, err)
	_, err = s.GetSchemaVersion(ctx)
	assert.Error(t, err)
	assert.NoError(t, s.Close())
}

func TestOpen_UnwritableLocation(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "no", "such", "dir", "x.db"), store.SortNumeric)
	assert.Error(t, s.Open())
}

func TestOpenReadOnly(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ro.db")

	missing := New(path, store.SortNumeric)
	require.Error(t, missing.OpenReadOnly(), "read-only open must not create the file")

	rw := New(path, store.SortNumeric)
	require.NoError(t, rw.Open())
	_, err := rw.Migrate(ctx)
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	ro := New(path, store.SortNumeric)
	require.NoError(t, ro.OpenReadOnly())
	defer ro.Close()

	state, err := ro.CheckState(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.StateReady, state)

	_, err = ro.AddBus(ctx, store.Bus{BusNumber: "1", Driver: "D", Status: "active"})
	assert.Error(t, err)
}
