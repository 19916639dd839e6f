package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"tour-planner/internal/api"
	"tour-planner/internal/catalog"
	"tour-planner/internal/config"
	"tour-planner/internal/db"
	"tour-planner/internal/metrics"
	"tour-planner/internal/planner"
	"tour-planner/internal/publisher"
	"tour-planner/internal/transit"
)

// cityWatchInterval is how often a newer city database is looked for.
const cityWatchInterval = 30 * time.Minute

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatalf("policy error: %v", err)
	}
	spots, err := loadCatalog(cfg.SpotsFile)
	if err != nil {
		log.Fatalf("spot catalog error: %v", err)
	}
	log.Printf("loaded %d spots and %d transfer hubs", spots.Len(), len(policy.Hubs))

	// Metrics setup
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.Backend, cfg.SearchConcurrency, policy.MaxReachMinutes)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	idx, closeIndex, err := openIndex(ctx, cfg, mcol)
	if err != nil {
		log.Fatalf("transit index error: %v", err)
	}
	defer closeIndex()

	// Itinerary events are optional
	var events api.ItineraryPublisher
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, publisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		events = pub
		log.Printf("publishing itineraries on %s.*", cfg.NATSSubjectPrefix)
	}

	finder := planner.NewFinder(idx, policy,
		planner.WithMetrics(plannerMetrics(mcol)),
		planner.WithConcurrency(cfg.SearchConcurrency),
		planner.WithSearchLog(cfg.LogRouteSearch),
	)
	server := api.NewServer(planner.NewBuilder(finder), spots, api.Options{
		CORSOrigin:       cfg.CORSOrigin,
		Publisher:        events,
		Metrics:          requestMetrics(mcol),
		Location:         cfg.Location,
		FilterServiceDay: cfg.FilterServiceDay,
	})

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			cancel()
		}
	}()
	log.Printf("api listening on %s (backend %s)", cfg.HTTPAddr, cfg.Backend)

	// Block until context cancelled
	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	log.Println("shutdown complete")
}

func loadCatalog(path string) (*catalog.Static, error) {
	if path == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(path)
}

// openIndex opens the configured timetable backend. The returned func
// releases it.
func openIndex(ctx context.Context, cfg *config.Config, mcol *metrics.Collector) (transit.Index, func(), error) {
	switch cfg.Backend {
	case config.BackendMemory:
		idx, err := transit.OpenFeedFile(cfg.FixturePath)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("using in-memory timetable from %s", cfg.FixturePath)
		return idx, func() {}, nil

	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); cfg.SQLitePath != ":memory:" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
		sqlDB, err := db.Open(db.SQLite, db.SQLiteDSN(cfg.SQLitePath))
		if err != nil {
			return nil, nil, err
		}
		if err := db.Ping(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, nil, err
		}
		idx := db.NewIndex(sqlDB, db.SQLite)
		if cfg.FixturePath != "" {
			feed, err := transit.LoadFeedFile(cfg.FixturePath)
			if err != nil {
				sqlDB.Close()
				return nil, nil, err
			}
			if err := idx.ImportFeed(ctx, feed); err != nil {
				sqlDB.Close()
				return nil, nil, err
			}
		}
		log.Printf("using sqlite timetable %s", cfg.SQLitePath)
		return idx, func() { idx.Close() }, nil
	}

	// postgres
	if cfg.City == "" {
		idx, err := openPostgres(ctx, cfg.DatabaseURL, true)
		if err != nil {
			return nil, nil, err
		}
		return idx, func() { idx.Close() }, nil
	}

	name, err := resolveCityDB(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	dsn, err := db.WithDBName(cfg.DatabaseURL, name)
	if err != nil {
		return nil, nil, err
	}
	idx, err := openPostgres(ctx, dsn, false)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("Using database %q for city %q (%s layout)", name, cfg.City, idx.Layout())

	sw := transit.NewSwappable(idx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		watchCity(ctx, cfg, sw, name, mcol)
	}()
	return sw, func() {
		<-done
		if c, ok := sw.Current().(*db.Index); ok {
			c.Close()
		}
	}, nil
}

// openPostgres opens a timetable database and detects its table layout. An
// empty database gets schema.sql only when create is set; imported city
// databases are never written to.
func openPostgres(ctx context.Context, dsn string, create bool) (*db.Index, error) {
	sqlDB, err := db.Open(db.Postgres, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	idx := db.NewIndex(sqlDB, db.Postgres)
	err = idx.Detect(ctx)
	if errors.Is(err, db.ErrNoTimetable) && create {
		log.Printf("empty timetable database, applying schema")
		if err = db.EnsureSchema(ctx, sqlDB); err == nil {
			err = idx.Detect(ctx)
		}
	}
	if err != nil {
		sqlDB.Close()
		return nil, err
	}
	return idx, nil
}

// resolveCityDB asks the cluster's 'postgres' database for the latest
// timetable import of the configured city.
func resolveCityDB(ctx context.Context, cfg *config.Config) (string, error) {
	rootDSN, err := db.WithDBName(cfg.DatabaseURL, "postgres")
	if err != nil {
		return "", err
	}
	metaDB, err := db.Open(db.Postgres, rootDSN)
	if err != nil {
		return "", err
	}
	defer metaDB.Close()
	if err := db.Ping(ctx, metaDB); err != nil {
		return "", err
	}
	latest, err := db.ResolveLatestImport(ctx, metaDB, cfg.City)
	if err != nil {
		return "", err
	}
	return latest.DBName, nil
}

// watchCity switches to a newer city database when one is imported, or
// reconnects when the current one stops answering.
func watchCity(ctx context.Context, cfg *config.Config, sw *transit.Swappable, current string, mcol *metrics.Collector) {
	ticker := time.NewTicker(cityWatchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// 1) Ping current DB; if it fails, force re-resolve
		needSwitch := false
		if err := sw.Ping(ctx); err != nil {
			log.Printf("db ping failed: %v, re-resolving city DB", err)
			if mcol != nil {
				mcol.DBSwitched("ping_failure")
			}
			needSwitch = true
		}

		// 2) Always re-resolve latest import, compare db_name
		newName, err := resolveCityDB(ctx, cfg)
		if err != nil {
			log.Printf("resolve latest import error: %v", err)
			continue
		}
		if newName != current {
			log.Printf("Detected updated DB for city %q: %q -> %q", cfg.City, current, newName)
			if mcol != nil {
				mcol.DBSwitched("update")
			}
			needSwitch = true
		}
		if !needSwitch {
			continue
		}

		dsn, err := db.WithDBName(cfg.DatabaseURL, newName)
		if err != nil {
			log.Printf("compose DSN error: %v", err)
			continue
		}
		next, err := openPostgres(ctx, dsn, false)
		if err != nil {
			log.Printf("open new DB error: %v", err)
			continue
		}
		// the old pool closes once in-flight lookups return
		sw.Replace(next)
		current = newName
		log.Printf("Switched to DB %q for city %q", current, cfg.City)
	}
}

// The collector may be nil; hand out untyped nils so callers can test for
// "no metrics".

func plannerMetrics(c *metrics.Collector) planner.Metrics {
	if c == nil {
		return nil
	}
	return c
}

func publisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return c
}

func requestMetrics(c *metrics.Collector) api.RequestMetrics {
	if c == nil {
		return nil
	}
	return c
}
