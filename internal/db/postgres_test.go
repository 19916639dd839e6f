package db

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"tour-planner/internal/gtfs"
	"tour-planner/internal/transit"
)

// openPostgresSchema connects to DATABASE_URL with search_path set to a fresh
// schema that is dropped when the test ends.
func openPostgresSchema(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres tests")
	}
	ctx := context.Background()

	admin, err := Open(Postgres, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { admin.Close() })
	if err := Ping(ctx, admin); err != nil {
		t.Skipf("postgres not reachable: %v", err)
	}

	schema := "planner_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		if _, err := admin.ExecContext(context.Background(), "DROP SCHEMA "+schema+" CASCADE"); err != nil {
			t.Logf("drop schema %s: %v", schema, err)
		}
	})

	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse DATABASE_URL: %v", err)
	}
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	conn, err := Open(Postgres, u.String())
	if err != nil {
		t.Fatalf("open schema connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// loadImporterTables writes the feed the way postgis-gtfs-importer lays it
// out: date calendars, text flags, interval stop times and text route types.
func loadImporterTables(t *testing.T, conn *sql.DB, f *transit.Feed) {
	t.Helper()
	ctx := context.Background()
	ddl := []string{
		`CREATE TABLE stops (stop_id text PRIMARY KEY, stop_name text, stop_lat double precision, stop_lon double precision)`,
		`CREATE TABLE routes (route_id text PRIMARY KEY, route_short_name text, route_long_name text, route_type text)`,
		`CREATE TABLE trips (trip_id text PRIMARY KEY, route_id text, service_id text)`,
		`CREATE TABLE stop_times (trip_id text, stop_id text, stop_sequence int, arrival_time interval, departure_time interval)`,
		`CREATE TABLE calendar (service_id text PRIMARY KEY, monday text, tuesday text, wednesday text, thursday text,
			friday text, saturday text, sunday text, start_date date, end_date date)`,
		`CREATE TABLE calendar_dates (service_id text, date date, exception_type text)`,
	}
	for _, stmt := range ddl {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("create importer table: %v", err)
		}
	}

	exec := func(q string, args ...any) {
		t.Helper()
		if _, err := conn.ExecContext(ctx, q, args...); err != nil {
			t.Fatalf("%s: %v", q, err)
		}
	}
	avail := func(b bool) string {
		if b {
			return "available"
		}
		return "not_available"
	}
	date := func(n int) string { return strconv.Itoa(n) }

	for _, s := range f.Stops {
		exec(`INSERT INTO stops VALUES ($1, $2, $3, $4)`, s.StopID, s.StopName, s.StopLat, s.StopLon)
	}
	for _, r := range f.Routes {
		exec(`INSERT INTO routes VALUES ($1, $2, $3, $4)`, r.RouteID, r.RouteShortName, r.RouteLongName, strconv.Itoa(r.RouteType))
	}
	for _, tr := range f.Trips {
		exec(`INSERT INTO trips VALUES ($1, $2, $3)`, tr.TripID, tr.RouteID, tr.ServiceID)
	}
	for _, st := range f.StopTimes {
		exec(`INSERT INTO stop_times VALUES ($1, $2, $3, $4::interval, $5::interval)`,
			st.TripID, st.StopID, st.StopSequence, st.ArrivalTime, st.DepartureTime)
	}
	for _, c := range f.Calendars {
		exec(`INSERT INTO calendar VALUES ($1, $2, $3, $4, $5, $6, $7, $8, to_date($9, 'YYYYMMDD'), to_date($10, 'YYYYMMDD'))`,
			c.ServiceID, avail(c.Monday), avail(c.Tuesday), avail(c.Wednesday), avail(c.Thursday),
			avail(c.Friday), avail(c.Saturday), avail(c.Sunday), date(c.StartDate), date(c.EndDate))
	}
	for _, cd := range f.CalendarDates {
		kind := "added"
		if cd.ExceptionType == gtfs.ExceptionRemoved {
			kind = "removed"
		}
		exec(`INSERT INTO calendar_dates VALUES ($1, to_date($2, 'YYYYMMDD'), $3)`, cd.ServiceID, date(cd.Date), kind)
	}
}

// assertMatchesMemory runs the same lookups against idx and the fixture
// MemoryIndex.
func assertMatchesMemory(t *testing.T, idx *Index) {
	t.Helper()
	ctx := context.Background()
	mem, err := transit.OpenFeedFile(fixturePath)
	if err != nil {
		t.Fatal(err)
	}

	for _, radius := range []float64{0.3, 1.0, 2.0} {
		a, err := idx.FindNearbyStops(ctx, 38.2606, 140.8817, radius)
		if err != nil {
			t.Fatalf("FindNearbyStops: %v", err)
		}
		b, _ := mem.FindNearbyStops(ctx, 38.2606, 140.8817, radius)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("nearby %.1f: pg=%v mem=%v", radius, a, b)
		}
	}

	for _, q := range []gtfs.DepartureQuery{
		{StopID: "A", AfterMinutes: 540},
		{StopID: "A", AfterMinutes: 541},
		{StopID: "A", RouteIDs: []string{"R2"}},
		{StopID: "A", TripIDs: []string{"T2", "T3"}},
		{StopID: "A", ServiceIDs: []string{"weekday"}},
		{StopID: "B", Limit: 1},
	} {
		a, err := idx.NextDepartures(ctx, q)
		if err != nil {
			t.Fatalf("NextDepartures(%+v): %v", q, err)
		}
		b, _ := mem.NextDepartures(ctx, q)
		if !reflect.DeepEqual(a, b) {
			t.Errorf("%+v: pg=%v mem=%v", q, a, b)
		}
	}

	a, err := idx.TripTravelTime(ctx, "T1", "A", "C", "09:00:00")
	if err != nil {
		t.Fatalf("TripTravelTime: %v", err)
	}
	b, _ := mem.TripTravelTime(ctx, "T1", "A", "C", "09:00:00")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("travel: pg=%+v mem=%+v", a, b)
	}

	r, err := idx.RouteByID(ctx, "R2")
	if err != nil || r == nil || r.RouteShortName != "2" || r.RouteType != 3 {
		t.Errorf("RouteByID(R2) = %+v, %v", r, err)
	}
	s, err := idx.StopByID(ctx, "C")
	if err != nil || s == nil || s.StopName != "Kotodai Park" {
		t.Errorf("StopByID(C) = %+v, %v", s, err)
	}

	for _, day := range []time.Time{
		time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 4, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
	} {
		a, err := idx.ActiveServices(ctx, day)
		if err != nil {
			t.Fatalf("ActiveServices: %v", err)
		}
		b, _ := mem.ActiveServices(ctx, day)
		slices.Sort(a)
		slices.Sort(b)
		if !slices.Equal(a, b) {
			t.Errorf("%s: pg=%v mem=%v", day.Format("2006-01-02"), a, b)
		}
	}
}

func TestPostgresImporterLayout(t *testing.T) {
	conn := openPostgresSchema(t)
	ctx := context.Background()

	idx := NewIndex(conn, Postgres)
	if err := idx.Detect(ctx); !errors.Is(err, ErrNoTimetable) {
		t.Fatalf("Detect on empty schema = %v, want ErrNoTimetable", err)
	}

	feed, err := transit.LoadFeedFile(fixturePath)
	if err != nil {
		t.Fatal(err)
	}
	loadImporterTables(t, conn, feed)
	if err := idx.Detect(ctx); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if idx.Layout() != LayoutImporter {
		t.Fatalf("layout = %s, want importer", idx.Layout())
	}
	assertMatchesMemory(t, idx)
}

func TestPostgresPlannerLayout(t *testing.T) {
	conn := openPostgresSchema(t)
	ctx := context.Background()

	if err := EnsureSchema(ctx, conn); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	feed, err := transit.LoadFeedFile(fixturePath)
	if err != nil {
		t.Fatal(err)
	}
	idx := NewIndex(conn, Postgres)
	if err := idx.ImportFeed(ctx, feed); err != nil {
		t.Fatalf("ImportFeed: %v", err)
	}
	if err := idx.Detect(ctx); err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if idx.Layout() != LayoutPlanner {
		t.Fatalf("layout = %s, want planner", idx.Layout())
	}
	assertMatchesMemory(t, idx)
}
