package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/maloquacious/busboard/internal/store"
	_ "modernc.org/sqlite"
)

// Connection defaults. synchronous(FULL) makes every auto-committed write
// durable before Exec returns; _txlock=immediate serializes concurrent
// first-time migrations on busy_timeout instead of failing on upgrade.
const pragmas = "?_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(FULL)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=busy_timeout(5000)" +
	"&_txlock=immediate"

// SQLiteStore implements store.Records for one district using modernc.org/sqlite.
type SQLiteStore struct {
	dbPath  string
	db      *sql.DB
	busSort store.BusSort
}

var _ store.Records = (*SQLiteStore)(nil)

// New creates a new SQLiteStore. Nothing is opened until Open.
func New(dbPath string, busSort store.BusSort) *SQLiteStore {
	return &SQLiteStore{
		dbPath:  dbPath,
		busSort: busSort,
	}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// readOnlyPragmas leave the journal mode of an existing file alone.
const readOnlyPragmas = "?mode=ro&_pragma=busy_timeout(5000)"

// Open opens the SQLite database, creating the file if needed.
func (s *SQLiteStore) Open() error {
	return s.open(s.dbPath + pragmas)
}

// OpenReadOnly opens an existing database without creating it or changing
// its journal mode. Writes through the store fail.
func (s *SQLiteStore) OpenReadOnly() error {
	return s.open("file:" + s.dbPath + readOnlyPragmas)
}

func (s *SQLiteStore) open(dsn string) error {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// sql.Open is lazy; force the file to be opened and the pragmas applied.
	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to open database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Migrate applies every migration not yet recorded in schema_migrations and
// returns the versions it applied. Running it on an up-to-date store does
// nothing.
func (s *SQLiteStore) Migrate(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database not opened")
	}

	if _, err := s.db.ExecContext(ctx, migrationsTable); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var applied []string
	for _, m := range migrations {
		ok, err := s.apply(ctx, m)
		if err != nil {
			return applied, fmt.Errorf("failed to apply migration %s: %w", m.version, err)
		}
		if ok {
			applied = append(applied, m.version)
		}
	}
	return applied, nil
}

// apply runs one migration unless another connection already recorded it.
func (s *SQLiteStore) apply(ctx context.Context, m migration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, m.version).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check schema version: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	if err := m.up(ctx, tx); err != nil {
		return false, err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, strftime('%s', 'now'))`, m.version)
	if err != nil {
		return false, fmt.Errorf("failed to insert schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// CheckState returns the current state of the datastore.
func (s *SQLiteStore) CheckState(ctx context.Context) (store.StoreState, error) {
	if s.db == nil {
		return store.StateMissing, fmt.Errorf("database not opened")
	}

	// Check if schema_migrations table exists
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`).Scan(&count)
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to check schema_migrations table: %w", err)
	}

	if count == 0 {
		return store.StateUninitialized, nil
	}

	version, err := s.GetSchemaVersion(ctx)
	if err != nil {
		return store.StateUninitialized, fmt.Errorf("failed to get schema version: %w", err)
	}

	switch version {
	case "":
		return store.StateUninitialized, nil
	case SchemaVersion:
		return store.StateReady, nil
	}
	return store.StateVersionMismatch, nil
}

// GetSchemaVersion returns the most recently applied schema version, or ""
// when none has been recorded.
func (s *SQLiteStore) GetSchemaVersion(ctx context.Context) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("database not opened")
	}

	var version string
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_migrations ORDER BY rowid DESC LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query schema version: %w", err)
	}

	return version, nil
}
