package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Transit backends selectable with TRANSIT_BACKEND.
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMemory   = "memory"
)

type Config struct {
	Backend     string
	DatabaseURL string
	City        string
	SQLitePath  string
	FixturePath string

	HTTPAddr   string
	CORSOrigin string

	NATSURL           string
	NATSSubjectPrefix string
	LogNATSSubjects   bool
	MetricsAddr       string

	PolicyFile string
	SpotsFile  string

	SearchConcurrency int
	LogRouteSearch    bool
	FilterServiceDay  bool
	Location          *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Backend = strings.ToLower(getenvDefault("TRANSIT_BACKEND", BackendPostgres))
	switch cfg.Backend {
	case BackendPostgres, BackendSQLite, BackendMemory:
	default:
		return nil, fmt.Errorf("invalid TRANSIT_BACKEND: %q", cfg.Backend)
	}

	// City name for dynamic DB resolution
	cfg.City = firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME"))

	if cfg.Backend == BackendPostgres {
		dsn, err := postgresDSN()
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	}

	cfg.SQLitePath = getenvDefault("SQLITE_DATABASE", "./data/transit.db")
	cfg.FixturePath = os.Getenv("TRANSIT_FIXTURE")
	if cfg.Backend == BackendMemory && cfg.FixturePath == "" {
		return nil, errors.New("TRANSIT_FIXTURE must be set when TRANSIT_BACKEND=memory")
	}

	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", ":3001")
	cfg.CORSOrigin = getenvDefault("CORS_ORIGIN", "http://localhost:5173")

	// Empty NATS_URL disables itinerary events.
	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubjectPrefix = getenvDefault("NATS_SUBJECT_PREFIX", "itineraries")
	if strings.ContainsAny(cfg.NATSSubjectPrefix, " *>") {
		return nil, fmt.Errorf("invalid NATS_SUBJECT_PREFIX: %q", cfg.NATSSubjectPrefix)
	}

	// Debug logging for NATS publish subjects
	cfg.LogNATSSubjects = envBool("LOG_NATS_SUBJECTS")

	// Metrics listen address (e.g., ":9102"). Empty disables the metrics server.
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	cfg.PolicyFile = os.Getenv("POLICY_FILE")
	cfg.SpotsFile = os.Getenv("SPOTS_FILE")

	if v := os.Getenv("SEARCH_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid SEARCH_CONCURRENCY: %q", v)
		}
		cfg.SearchConcurrency = n
	} else {
		cfg.SearchConcurrency = 1
	}

	cfg.LogRouteSearch = envBool("LOG_ROUTE_SEARCH")
	cfg.FilterServiceDay = envBool("FILTER_SERVICE_DAY")

	// Time zone used to pick the service day
	tzName := getenvDefault("TZ", "")
	if tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

// postgresDSN prefers DATABASE_URL / PG_DSN, else builds one from PG* vars.
func postgresDSN() (string, error) {
	if dsn := firstNonEmpty(os.Getenv("DATABASE_URL"), os.Getenv("PG_DSN")); dsn != "" {
		return dsn, nil
	}
	host := getenvDefault("PGHOST", "127.0.0.1")
	port := getenvDefault("PGPORT", "5432")
	user := getenvDefault("PGUSER", "postgres")
	pass := os.Getenv("PGPASSWORD")
	db := os.Getenv("PGDATABASE")
	// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
	if db == "" && firstNonEmpty(os.Getenv("CITY"), os.Getenv("CITY_NAME")) != "" {
		db = "postgres"
	}
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
	}
	sslmode := getenvDefault("PGSSLMODE", "disable")
	if pass != "" {
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", urlEscape(user), urlEscape(pass), host, port, db, sslmode), nil
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s", urlEscape(user), host, port, db, sslmode), nil
}

func envBool(k string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(k))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	}
	return false
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
