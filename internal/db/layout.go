package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Layout is the table shape an Index reads from.
type Layout int

const (
	// LayoutPlanner is schema.sql: YYYYMMDD integer dates and precomputed
	// *_seconds columns on stop_times.
	LayoutPlanner Layout = iota
	// LayoutImporter is a database written by postgis-gtfs-importer: date
	// typed calendars, enum or text flags, text or interval stop times and
	// optionally a PostGIS stop_loc instead of stop_lat/stop_lon.
	LayoutImporter
)

func (l Layout) String() string {
	if l == LayoutImporter {
		return "importer"
	}
	return "planner"
}

// ErrNoTimetable means the database has no stop_times table yet.
var ErrNoTimetable = errors.New("database has no stop_times table")

// Detect inspects the current postgres schema and switches the Index to the
// matching query set. SQLite databases always use LayoutPlanner.
func (x *Index) Detect(ctx context.Context) error {
	if x.dialect != Postgres {
		x.layout, x.stopLoc = LayoutPlanner, false
		return nil
	}
	stCols, err := hasColumns(ctx, x.db, "stop_times", "stop_id", "departure_seconds")
	if err != nil {
		return fmt.Errorf("introspect stop_times columns: %w", err)
	}
	if !stCols["stop_id"] {
		return ErrNoTimetable
	}
	if stCols["departure_seconds"] {
		x.layout, x.stopLoc = LayoutPlanner, false
		return nil
	}

	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	stopCols, err := hasColumns(ctx, x.db, "stops", "stop_lat", "stop_lon", "stop_loc")
	if err != nil {
		return fmt.Errorf("introspect stops columns: %w", err)
	}
	switch {
	case stopCols["stop_lat"] && stopCols["stop_lon"]:
		x.stopLoc = false
	case stopCols["stop_loc"]:
		x.stopLoc = true
	default:
		return fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
	}
	x.layout = LayoutImporter
	return nil
}

// hasColumns reports which of cols exist on table in the current schema.
func hasColumns(ctx context.Context, db *sql.DB, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	args := []any{table}
	for _, c := range cols {
		res[c] = false
		args = append(args, c)
	}
	q := `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ? AND column_name IN (` + placeholders(len(cols)) + `)`
	rows, err := db.QueryContext(ctx, Postgres.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
