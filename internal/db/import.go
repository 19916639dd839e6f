package db

import (
	"context"
	"fmt"
	"log"

	"tour-planner/internal/gtfs"
	"tour-planner/internal/transit"
)

// ImportFeed replaces the timetable tables with the feed contents in one
// transaction.
func (x *Index) ImportFeed(ctx context.Context, f *transit.Feed) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, table := range []string{"stop_times", "trips", "routes", "stops", "calendar_dates", "calendar"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	exec := func(q string, args ...any) error {
		_, err := tx.ExecContext(ctx, x.dialect.Rebind(q), args...)
		return err
	}

	for _, s := range f.Stops {
		if err := exec(`INSERT INTO stops (stop_id, stop_name, stop_lat, stop_lon) VALUES (?, ?, ?, ?)`,
			s.StopID, s.StopName, s.StopLat, s.StopLon); err != nil {
			return fmt.Errorf("insert stop %q: %w", s.StopID, err)
		}
	}
	for _, r := range f.Routes {
		if err := exec(`INSERT INTO routes (route_id, route_short_name, route_long_name, route_type) VALUES (?, ?, ?, ?)`,
			r.RouteID, r.RouteShortName, r.RouteLongName, r.RouteType); err != nil {
			return fmt.Errorf("insert route %q: %w", r.RouteID, err)
		}
	}
	for _, t := range f.Trips {
		if err := exec(`INSERT INTO trips (trip_id, route_id, service_id) VALUES (?, ?, ?)`,
			t.TripID, t.RouteID, t.ServiceID); err != nil {
			return fmt.Errorf("insert trip %q: %w", t.TripID, err)
		}
	}
	for _, st := range f.StopTimes {
		arr, dep := st.ArrivalTime, st.DepartureTime
		if arr == "" {
			arr = dep
		}
		if dep == "" {
			dep = arr
		}
		if err := exec(`
INSERT INTO stop_times (trip_id, stop_id, stop_sequence, arrival_time, departure_time, arrival_seconds, departure_seconds)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
			st.TripID, st.StopID, st.StopSequence, arr, dep,
			gtfs.ParseDaySeconds(arr), gtfs.ParseDaySeconds(dep)); err != nil {
			return fmt.Errorf("insert stop_time %s/%d: %w", st.TripID, st.StopSequence, err)
		}
	}
	for _, c := range f.Calendars {
		if err := exec(`
INSERT INTO calendar (service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, start_date, end_date)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ServiceID, boolInt(c.Monday), boolInt(c.Tuesday), boolInt(c.Wednesday), boolInt(c.Thursday),
			boolInt(c.Friday), boolInt(c.Saturday), boolInt(c.Sunday), c.StartDate, c.EndDate); err != nil {
			return fmt.Errorf("insert calendar %q: %w", c.ServiceID, err)
		}
	}
	for _, cd := range f.CalendarDates {
		if err := exec(`INSERT INTO calendar_dates (service_id, date, exception_type) VALUES (?, ?, ?)`,
			cd.ServiceID, cd.Date, cd.ExceptionType); err != nil {
			return fmt.Errorf("insert calendar_date %q/%d: %w", cd.ServiceID, cd.Date, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	log.Printf("imported feed: stops=%d routes=%d trips=%d stop_times=%d", len(f.Stops), len(f.Routes), len(f.Trips), len(f.StopTimes))
	return nil
}
