package sqlite

import (
	"context"
	"fmt"

	"github.com/maloquacious/busboard/internal/store"
)

const (
	orderBusesNumeric = ` ORDER BY CAST(bus_number AS INTEGER), bus_number, id`
	orderBusesLexical = ` ORDER BY bus_number, id`
)

// ListBuses returns every bus ordered by bus number using the store's sort convention.
func (s *SQLiteStore) ListBuses(ctx context.Context) ([]store.Bus, error) {
	q := `SELECT id, bus_number, driver, status, notes FROM buses`
	if s.busSort == store.SortLexical {
		q += orderBusesLexical
	} else {
		q += orderBusesNumeric
	}

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list buses: %w", err)
	}
	defer rows.Close()

	buses := []store.Bus{}
	for rows.Next() {
		var b store.Bus
		if err := rows.Scan(&b.ID, &b.BusNumber, &b.Driver, &b.Status, &b.Notes); err != nil {
			return nil, fmt.Errorf("list buses: scan: %w", err)
		}
		buses = append(buses, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list buses: %w", err)
	}
	return buses, nil
}

// AddBus inserts a bus and returns the id assigned by the store.
func (s *SQLiteStore) AddBus(ctx context.Context, b store.Bus) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO buses (bus_number, driver, status, notes) VALUES (?, ?, ?, ?)`,
		b.BusNumber, b.Driver, b.Status, b.Notes)
	if err != nil {
		return 0, fmt.Errorf("add bus: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add bus: last insert id: %w", err)
	}
	return id, nil
}

// UpdateBus overwrites the mutable fields of a bus. Unknown ids are ignored.
func (s *SQLiteStore) UpdateBus(ctx context.Context, id int64, driver, status, notes string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE buses SET driver = ?, status = ?, notes = ? WHERE id = ?`,
		driver, status, notes, id)
	if err != nil {
		return fmt.Errorf("update bus %d: %w", id, err)
	}
	return nil
}

// DeleteBus removes a bus. Unknown ids are ignored.
func (s *SQLiteStore) DeleteBus(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM buses WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete bus %d: %w", id, err)
	}
	return nil
}

// ListRuns returns every run ordered by date and time; ties keep insertion order.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]store.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_date, run_time, group_name, destination, driver, bus_number
		FROM runs
		ORDER BY run_date, run_time, id`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		var r store.Run
		if err := rows.Scan(&r.ID, &r.RunDate, &r.RunTime, &r.GroupName, &r.Destination, &r.Driver, &r.BusNumber); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// AddRun inserts a run and returns the id assigned by the store.
func (s *SQLiteStore) AddRun(ctx context.Context, r store.Run) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_date, run_time, group_name, destination, driver, bus_number)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunDate, r.RunTime, r.GroupName, r.Destination, r.Driver, r.BusNumber)
	if err != nil {
		return 0, fmt.Errorf("add run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add run: last insert id: %w", err)
	}
	return id, nil
}

// DeleteRun removes a run. Unknown ids are ignored.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete run %d: %w", id, err)
	}
	return nil
}
