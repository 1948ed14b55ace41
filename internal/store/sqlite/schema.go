package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is the version a fully migrated store reports.
const SchemaVersion = "0.2"

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);
`

// migration upgrades a store to version. Migrations run in order, each in
// its own transaction together with its schema_migrations row.
type migration struct {
	version string
	up      func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: "0.1", up: createFleetTables},
	{version: "0.2", up: addBusNotes},
}

// createFleetTables uses IF NOT EXISTS so an existing buses.db created
// without version tracking is adopted as-is.
func createFleetTables(ctx context.Context, tx *sql.Tx) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS buses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    bus_number TEXT NOT NULL,
    driver TEXT NOT NULL,
    status TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_date TEXT NOT NULL,
    run_time TEXT NOT NULL,
    group_name TEXT NOT NULL,
    destination TEXT NOT NULL,
    driver TEXT NOT NULL,
    bus_number TEXT NOT NULL
);
`
	_, err := tx.ExecContext(ctx, ddl)
	return err
}

func addBusNotes(ctx context.Context, tx *sql.Tx) error {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('buses') WHERE name = 'notes'`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect buses: %w", err)
	}
	if n > 0 {
		return nil
	}
	_, err = tx.ExecContext(ctx, `ALTER TABLE buses ADD COLUMN notes TEXT NOT NULL DEFAULT ''`)
	return err
}
