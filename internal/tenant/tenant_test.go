package tenant

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maloquacious/busboard/internal/logger"
	"github.com/maloquacious/busboard/internal/store"
)

func newProvisioner(t *testing.T, mode Mode) *Provisioner {
	t.Helper()
	p, err := New(filepath.Join(t.TempDir(), "data"), mode, store.SortNumeric, logger.New(&bytes.Buffer{}, logger.LevelDebug))
	require.NoError(t, err)
	return p
}

func TestNew_CreatesDataDir(t *testing.T) {
	p := newProvisioner(t, Multi)
	info, err := os.Stat(p.DataDir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NoError(t, p.Ready())
}

func TestEnsureStore_Idempotent(t *testing.T) {
	ctx := context.Background()
	p := newProvisioner(t, Multi)

	s, err := p.EnsureStore(ctx, "north")
	require.NoError(t, err)
	_, err = s.AddBus(ctx, store.Bus{BusNumber: "12", Driver: "Smith", Status: "active"})
	require.NoError(t, err)
	_, err = s.AddRun(ctx, store.Run{RunDate: "2024-09-01", RunTime: "08:00", GroupName: "Choir", Destination: "Downtown", Driver: "Lee", BusNumber: "12"})
	require.NoError(t, err)
	before, err := s.ListBuses(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	again, err := p.EnsureStore(ctx, "NORTH")
	require.NoError(t, err)
	defer again.Close()

	after, err := again.ListBuses(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	runs, err := again.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestEnsureStore_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	p := newProvisioner(t, Multi)

	a, err := p.EnsureStore(ctx, "alpha")
	require.NoError(t, err)
	defer a.Close()
	b, err := p.EnsureStore(ctx, "beta")
	require.NoError(t, err)
	defer b.Close()

	_, err = a.AddBus(ctx, store.Bus{BusNumber: "1", Driver: "Ames", Status: "active"})
	require.NoError(t, err)

	busesB, err := b.ListBuses(ctx)
	require.NoError(t, err)
	assert.Empty(t, busesB)

	busesA, err := a.ListBuses(ctx)
	require.NoError(t, err)
	assert.Len(t, busesA, 1)
	assert.NotEqual(t, a.Path(), b.Path())
}

func TestEnsureStore_InvalidDistrict(t *testing.T) {
	p := newProvisioner(t, Multi)

	for _, id := range []string{"", "../escape", "a/b", "x.y"} {
		_, err := p.EnsureStore(context.Background(), id)
		assert.ErrorIs(t, err, store.ErrInvalidDistrict, "district %q", id)
	}

	entries, err := os.ReadDir(p.DataDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "no artifact may be created for a rejected id")
	_, err = os.Stat(filepath.Join(filepath.Dir(p.DataDir()), "escape.db"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestEnsureStore_StorageUnavailable(t *testing.T) {
	p := newProvisioner(t, Multi)
	// A directory squatting on the store path cannot be opened as a database.
	require.NoError(t, os.Mkdir(filepath.Join(p.DataDir(), "blocked.db"), 0o755))

	_, err := p.EnsureStore(context.Background(), "blocked")
	assert.ErrorIs(t, err, store.ErrStorageUnavailable)
}

func TestSingleMode(t *testing.T) {
	ctx := context.Background()
	p := newProvisioner(t, Single)

	s, err := p.EnsureStore(ctx, "ignored")
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, store.GetDBPath(p.DataDir()), s.Path())

	districts, err := p.List()
	require.NoError(t, err)
	assert.Empty(t, districts)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	p := newProvisioner(t, Multi)

	for _, id := range []string{"west", "east"} {
		s, err := p.EnsureStore(ctx, id)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	districts, err := p.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"east", "west"}, districts)
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	p := newProvisioner(t, Multi)

	st, err := p.Verify(ctx, "north")
	require.NoError(t, err)
	assert.Equal(t, "missing", st.State)
	_, err = os.Stat(st.Path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "verify must not create the store")

	s, err := p.EnsureStore(ctx, "north")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	st, err = p.Verify(ctx, "NORTH")
	require.NoError(t, err)
	assert.Equal(t, "north", st.District, "reports the normalized id")
	assert.Equal(t, "north.db", filepath.Base(st.Path))
	assert.Equal(t, "ready", st.State)
	assert.Equal(t, "0.2", st.Version)

	_, err = p.Verify(ctx, "../x")
	assert.ErrorIs(t, err, store.ErrInvalidDistrict)
}

func TestVerify_LeavesLegacyStoreUntouched(t *testing.T) {
	ctx := context.Background()
	p := newProvisioner(t, Single)
	path := store.GetDBPath(p.DataDir())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE buses (id INTEGER PRIMARY KEY, bus_number TEXT, driver TEXT, status TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	st, err := p.Verify(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "", st.District)
	assert.Equal(t, "uninitialized", st.State)

	db, err = sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()
	var journal string
	require.NoError(t, db.QueryRow(`PRAGMA journal_mode`).Scan(&journal))
	assert.Equal(t, "delete", journal)
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE name = 'schema_migrations'`).Scan(&n))
	assert.Zero(t, n, "verify must not migrate")
}
