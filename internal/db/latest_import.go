package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LatestImport is a row of public.latest_successful_imports.
type LatestImport struct {
	DBName     string
	ImportedAt time.Time
}

// ResolveLatestImport returns the most recent successful timetable import
// whose database name contains city (case-insensitive). meta must be
// connected to the cluster's maintenance database.
func ResolveLatestImport(ctx context.Context, meta *sql.DB, city string) (*LatestImport, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, fmt.Errorf("city is required")
	}
	q := `
SELECT db_name, imported_at
FROM public.latest_successful_imports
WHERE db_name ILIKE '%' || $1 || '%'
ORDER BY imported_at DESC
LIMIT 1`
	var name sql.NullString
	var at sql.NullTime
	if err := meta.QueryRowContext(ctx, q, city).Scan(&name, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no timetable database found for city like %q", city)
		}
		return nil, fmt.Errorf("resolve latest import: %w", err)
	}
	if !name.Valid || name.String == "" {
		return nil, fmt.Errorf("empty db_name for city like %q", city)
	}
	return &LatestImport{DBName: name.String, ImportedAt: at.Time}, nil
}
