package db

import (
	"fmt"
	"net/url"
	"strings"
)

// WithDBName swaps the database in a postgres DSN, keeping host, credentials
// and query parameters. A DSN without a scheme is treated as postgres://.
func WithDBName(dsn, database string) (string, error) {
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("empty DSN")
	}
	if !strings.Contains(dsn, "://") {
		dsn = "postgres://" + dsn
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported DSN scheme %q", u.Scheme)
	}
	u.Path = "/" + strings.TrimPrefix(database, "/")
	return u.String(), nil
}

// SQLiteDSN turns a file path into a modernc.org/sqlite DSN with a busy
// timeout and WAL journaling. ":memory:" and DSNs that already carry
// parameters are returned unchanged.
func SQLiteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
