package transit

import (
	"context"
	"time"

	"tour-planner/internal/gtfs"
)

// Index answers the timetable questions the planner asks. Implementations
// must be safe for concurrent use.
//
// Lookups that find nothing return a nil result and a nil error; an error
// always means the backend itself failed.
type Index interface {
	// FindNearbyStops returns stops within radiusKm, nearest first.
	FindNearbyStops(ctx context.Context, lat, lon, radiusKm float64) ([]gtfs.Stop, error)
	// RoutesBetweenStops returns one entry per trip that visits fromStopID at
	// an earlier stop sequence than toStopID.
	RoutesBetweenStops(ctx context.Context, fromStopID, toStopID string) ([]gtfs.RouteRef, error)
	// NextDepartures returns departures ordered by departure time.
	NextDepartures(ctx context.Context, q gtfs.DepartureQuery) ([]gtfs.Departure, error)
	// TripTravelTime returns the timetabled ride from the stop_time departing
	// fromStopID at departureTime to the next later visit of toStopID.
	TripTravelTime(ctx context.Context, tripID, fromStopID, toStopID, departureTime string) (*gtfs.TripTravel, error)
	RouteByID(ctx context.Context, routeID string) (*gtfs.Route, error)
	StopByID(ctx context.Context, stopID string) (*gtfs.Stop, error)
	// ActiveServices resolves the service IDs running on the given day.
	ActiveServices(ctx context.Context, day time.Time) ([]string, error)
	Ping(ctx context.Context) error
}
