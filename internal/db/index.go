package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"tour-planner/internal/geo"
	"tour-planner/internal/gtfs"
	"tour-planner/internal/transit"
)

// Index answers timetable queries from the tables in schema.sql, or from a
// postgis-gtfs-importer database once Detect has picked LayoutImporter.
type Index struct {
	db      *sql.DB
	dialect Dialect
	layout  Layout
	stopLoc bool
}

var _ transit.Index = (*Index)(nil)

func NewIndex(db *sql.DB, d Dialect) *Index {
	return &Index{db: db, dialect: d}
}

func (x *Index) DB() *sql.DB { return x.db }

func (x *Index) Dialect() Dialect { return x.dialect }

func (x *Index) Layout() Layout { return x.layout }

func (x *Index) Close() error { return x.db.Close() }

func (x *Index) Ping(ctx context.Context) error { return Ping(ctx, x.db) }

func (x *Index) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return x.db.QueryContext(ctx, x.dialect.Rebind(q), args...)
}

func (x *Index) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return x.db.QueryRowContext(ctx, x.dialect.Rebind(q), args...)
}

// stopColumns selects id, name, lat and lon of stops aliased s.
func (x *Index) stopColumns() (cols, lat, lon string) {
	switch {
	case x.layout == LayoutPlanner:
		return "s.stop_id, s.stop_name, s.stop_lat, s.stop_lon", "s.stop_lat", "s.stop_lon"
	case x.stopLoc:
		lat, lon = "ST_Y(s.stop_loc::geometry)", "ST_X(s.stop_loc::geometry)"
	default:
		lat, lon = "s.stop_lat", "s.stop_lon"
	}
	return "s.stop_id, COALESCE(s.stop_name, ''), " + lat + ", " + lon, lat, lon
}

// departureSeconds is the SQL for the seconds-since-midnight of a stop_times
// row aliased st.
func (x *Index) departureSeconds() string {
	if x.layout == LayoutPlanner {
		return "st.departure_seconds"
	}
	// text and interval columns both render as HH:MM:SS, hours may pass 24
	return "EXTRACT(EPOCH FROM COALESCE(st.departure_time, st.arrival_time)::text::interval)"
}

func (x *Index) FindNearbyStops(ctx context.Context, lat, lon, radiusKm float64) ([]gtfs.Stop, error) {
	box := geo.BoxAround(lat, lon, radiusKm)
	cols, latCol, lonCol := x.stopColumns()
	q := `
SELECT ` + cols + `
FROM stops s
WHERE ` + latCol + ` BETWEEN ? AND ? AND ` + lonCol + ` BETWEEN ? AND ?
ORDER BY s.stop_id`
	rows, err := x.query(ctx, q, box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("query nearby stops: %w", err)
	}
	defer rows.Close()

	type hit struct {
		stop gtfs.Stop
		dist float64
	}
	var hits []hit
	for rows.Next() {
		var s gtfs.Stop
		if err := rows.Scan(&s.StopID, &s.StopName, &s.StopLat, &s.StopLon); err != nil {
			return nil, err
		}
		if d := geo.DistanceKm(lat, lon, s.StopLat, s.StopLon); d <= radiusKm {
			hits = append(hits, hit{stop: s, dist: d})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	stops := make([]gtfs.Stop, len(hits))
	for i, h := range hits {
		stops[i] = h.stop
	}
	return stops, nil
}

func (x *Index) RoutesBetweenStops(ctx context.Context, fromStopID, toStopID string) ([]gtfs.RouteRef, error) {
	// self-join keeps only trips reaching the destination after the origin
	q := `
SELECT DISTINCT a.trip_id, t.route_id
FROM stop_times a
JOIN stop_times b ON b.trip_id = a.trip_id AND b.stop_id = ? AND b.stop_sequence > a.stop_sequence
JOIN trips t ON t.trip_id = a.trip_id
WHERE a.stop_id = ?
ORDER BY a.trip_id`
	rows, err := x.query(ctx, q, toStopID, fromStopID)
	if err != nil {
		return nil, fmt.Errorf("query routes between stops: %w", err)
	}
	defer rows.Close()
	var refs []gtfs.RouteRef
	for rows.Next() {
		r := gtfs.RouteRef{StopID: toStopID}
		if err := rows.Scan(&r.TripID, &r.RouteID); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

func (x *Index) NextDepartures(ctx context.Context, dq gtfs.DepartureQuery) ([]gtfs.Departure, error) {
	limit := dq.Limit
	if limit <= 0 {
		limit = transit.DefaultDepartureLimit
	}
	depTime, depSec := "st.departure_time", x.departureSeconds()
	if x.layout == LayoutImporter {
		depTime = "COALESCE(st.departure_time, st.arrival_time)::text"
	}
	q := `
SELECT st.trip_id, t.route_id, ` + depTime + `, st.stop_id, st.stop_sequence
FROM stop_times st
JOIN trips t ON t.trip_id = st.trip_id
WHERE st.stop_id = ? AND ` + depSec + ` >= ?`
	args := []any{dq.StopID, dq.AfterMinutes * 60}
	if len(dq.RouteIDs) > 0 {
		q += ` AND t.route_id IN (` + placeholders(len(dq.RouteIDs)) + `)`
		for _, id := range dq.RouteIDs {
			args = append(args, id)
		}
	}
	if len(dq.TripIDs) > 0 {
		q += ` AND st.trip_id IN (` + placeholders(len(dq.TripIDs)) + `)`
		for _, id := range dq.TripIDs {
			args = append(args, id)
		}
	}
	if len(dq.ServiceIDs) > 0 {
		q += ` AND t.service_id IN (` + placeholders(len(dq.ServiceIDs)) + `)`
		for _, id := range dq.ServiceIDs {
			args = append(args, id)
		}
	}
	q += ` ORDER BY ` + depSec + `, st.trip_id LIMIT ?`
	args = append(args, limit)

	rows, err := x.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query departures: %w", err)
	}
	defer rows.Close()
	var deps []gtfs.Departure
	for rows.Next() {
		var d gtfs.Departure
		if err := rows.Scan(&d.TripID, &d.RouteID, &d.DepartureTime, &d.StopID, &d.StopSequence); err != nil {
			return nil, err
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// FetchStopTimes returns the stop_times of one trip ordered by stop_sequence.
func (x *Index) FetchStopTimes(ctx context.Context, tripID string) ([]gtfs.StopTime, error) {
	q := `
SELECT trip_id, stop_id, stop_sequence, arrival_time, departure_time
FROM stop_times
WHERE trip_id = ?
ORDER BY stop_sequence`
	if x.layout == LayoutImporter {
		q = `
SELECT trip_id, stop_id, stop_sequence, COALESCE(arrival_time::text, ''), COALESCE(departure_time::text, '')
FROM stop_times
WHERE trip_id = ?
ORDER BY stop_sequence`
	}
	rows, err := x.query(ctx, q, tripID)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()
	var sts []gtfs.StopTime
	for rows.Next() {
		var st gtfs.StopTime
		if err := rows.Scan(&st.TripID, &st.StopID, &st.StopSequence, &st.ArrivalTime, &st.DepartureTime); err != nil {
			return nil, err
		}
		sts = append(sts, st)
	}
	return sts, rows.Err()
}

func (x *Index) TripTravelTime(ctx context.Context, tripID, fromStopID, toStopID, departureTime string) (*gtfs.TripTravel, error) {
	sts, err := x.FetchStopTimes(ctx, tripID)
	if err != nil {
		return nil, err
	}
	return transit.TravelWithinTrip(sts, fromStopID, toStopID, departureTime), nil
}

func (x *Index) RouteByID(ctx context.Context, routeID string) (*gtfs.Route, error) {
	q := `
SELECT route_id, COALESCE(route_short_name, ''), COALESCE(route_long_name, ''), CAST(route_type AS TEXT)
FROM routes WHERE route_id = ?`
	var r gtfs.Route
	var routeType string
	err := x.queryRow(ctx, q, routeID).Scan(&r.RouteID, &r.RouteShortName, &r.RouteLongName, &routeType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query route %q: %w", routeID, err)
	}
	// importer databases may store route_type as an enum label
	if n, err := strconv.Atoi(routeType); err == nil {
		r.RouteType = n
	} else {
		r.RouteType = 3
	}
	return &r, nil
}

func (x *Index) StopByID(ctx context.Context, stopID string) (*gtfs.Stop, error) {
	cols, _, _ := x.stopColumns()
	q := `SELECT ` + cols + ` FROM stops s WHERE s.stop_id = ?`
	var s gtfs.Stop
	err := x.queryRow(ctx, q, stopID).Scan(&s.StopID, &s.StopName, &s.StopLat, &s.StopLon)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query stop %q: %w", stopID, err)
	}
	return &s, nil
}

func (x *Index) ActiveServices(ctx context.Context, day time.Time) ([]string, error) {
	if x.layout == LayoutImporter {
		return x.importerServices(ctx, day)
	}
	calendars, err := x.fetchCalendars(ctx, gtfs.DateNumber(day))
	if err != nil {
		return nil, err
	}
	exceptions, err := x.fetchCalendarDates(ctx, gtfs.DateNumber(day))
	if err != nil {
		return nil, err
	}
	return gtfs.ResolveServices(day, calendars, exceptions), nil
}

func (x *Index) fetchCalendars(ctx context.Context, date int) ([]gtfs.Calendar, error) {
	q := `
SELECT service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, start_date, end_date
FROM calendar
WHERE start_date <= ? AND end_date >= ?
ORDER BY service_id`
	rows, err := x.query(ctx, q, date, date)
	if err != nil {
		return nil, fmt.Errorf("query calendar: %w", err)
	}
	defer rows.Close()
	var cals []gtfs.Calendar
	for rows.Next() {
		var c gtfs.Calendar
		var days [7]int
		if err := rows.Scan(&c.ServiceID, &days[0], &days[1], &days[2], &days[3], &days[4], &days[5], &days[6], &c.StartDate, &c.EndDate); err != nil {
			return nil, err
		}
		c.Monday, c.Tuesday, c.Wednesday = days[0] == 1, days[1] == 1, days[2] == 1
		c.Thursday, c.Friday = days[3] == 1, days[4] == 1
		c.Saturday, c.Sunday = days[5] == 1, days[6] == 1
		cals = append(cals, c)
	}
	return cals, rows.Err()
}

func (x *Index) fetchCalendarDates(ctx context.Context, date int) ([]gtfs.CalendarDate, error) {
	q := `SELECT service_id, date, exception_type FROM calendar_dates WHERE date = ? ORDER BY service_id`
	rows, err := x.query(ctx, q, date)
	if err != nil {
		return nil, fmt.Errorf("query calendar_dates: %w", err)
	}
	defer rows.Close()
	var out []gtfs.CalendarDate
	for rows.Next() {
		var cd gtfs.CalendarDate
		if err := rows.Scan(&cd.ServiceID, &cd.Date, &cd.ExceptionType); err != nil {
			return nil, err
		}
		out = append(out, cd)
	}
	return out, rows.Err()
}

// importerServices resolves the day's services in SQL against date typed
// calendars with enum or text flags.
func (x *Index) importerServices(ctx context.Context, day time.Time) ([]string, error) {
	date := day.Format("2006-01-02")
	dow := int(day.Weekday()) // 0=Sunday

	q := `
WITH base AS (
  SELECT service_id
  FROM calendar
  WHERE start_date <= $1::date AND end_date >= $1::date
    AND (
      ($2 = 0 AND (sunday::text IN ('1','t','true','available'))) OR
      ($2 = 1 AND (monday::text IN ('1','t','true','available'))) OR
      ($2 = 2 AND (tuesday::text IN ('1','t','true','available'))) OR
      ($2 = 3 AND (wednesday::text IN ('1','t','true','available'))) OR
      ($2 = 4 AND (thursday::text IN ('1','t','true','available'))) OR
      ($2 = 5 AND (friday::text IN ('1','t','true','available'))) OR
      ($2 = 6 AND (saturday::text IN ('1','t','true','available')))
    )
), add_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('1','added'))
), rm_exc AS (
  SELECT service_id FROM calendar_dates WHERE date = $1::date AND (exception_type::text IN ('2','removed'))
), merged AS (
  SELECT service_id FROM base
  UNION
  SELECT service_id FROM add_exc
)
SELECT DISTINCT service_id FROM merged
WHERE service_id NOT IN (SELECT service_id FROM rm_exc)
ORDER BY service_id`

	rows, err := x.db.QueryContext(ctx, q, date, dow)
	if err != nil {
		return nil, fmt.Errorf("query active services: %w", err)
	}
	defer rows.Close()
	var svc []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		svc = append(svc, id)
	}
	return svc, rows.Err()
}
