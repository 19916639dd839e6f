package planner

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"tour-planner/internal/geo"
	"tour-planner/internal/gtfs"
	"tour-planner/internal/transit"
)

// kmPerDegreeLat is the meridian length of one degree at EarthRadiusKm.
var kmPerDegreeLat = geo.EarthRadiusKm * math.Pi / 180

const (
	baseLat = 38.2606
	baseLon = 140.8817
)

// north returns a location km kilometers due north of the base point.
func north(km float64, name string) geo.Location {
	return geo.Location{Lat: baseLat + km/kmPerDegreeLat, Lon: baseLon, Name: name}
}

func stopAt(id string, l geo.Location) gtfs.Stop {
	return gtfs.Stop{StopID: id, StopName: id, StopLat: l.Lat, StopLon: l.Lon}
}

func ride(tripID string, stops []string, times []string) []gtfs.StopTime {
	out := make([]gtfs.StopTime, len(stops))
	for i := range stops {
		out[i] = gtfs.StopTime{
			TripID:        tripID,
			StopID:        stops[i],
			StopSequence:  i + 1,
			ArrivalTime:   times[i],
			DepartureTime: times[i],
		}
	}
	return out
}

// lineFeed has one stop at the base point, one km north of it and a single
// trip between them.
func lineFeed(t *testing.T, km float64, dep, arr string) (*transit.MemoryIndex, geo.Location, geo.Location) {
	t.Helper()
	origin := north(0, "Origin")
	dest := north(km, "Dest")
	feed := &transit.Feed{
		Stops:     []gtfs.Stop{stopAt("P", origin), stopAt("X", dest)},
		Routes:    []gtfs.Route{{RouteID: "R", RouteShortName: "7", RouteLongName: "Riverside", RouteType: 3}},
		Trips:     []gtfs.Trip{{TripID: "T", RouteID: "R", ServiceID: "weekday"}},
		StopTimes: ride("T", []string{"P", "X"}, []string{dep, arr}),
		Calendars: []gtfs.Calendar{{
			ServiceID: "weekday", Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true,
			StartDate: 20240101, EndDate: 20241231,
		}},
	}
	return mustIndex(t, feed), origin, dest
}

func mustIndex(t *testing.T, f *transit.Feed) *transit.MemoryIndex {
	t.Helper()
	idx, err := transit.NewMemoryIndex(f)
	if err != nil {
		t.Fatalf("NewMemoryIndex: %v", err)
	}
	return idx
}

func walkMinutes(a, b geo.Location) int {
	return int(math.Ceil(geo.Between(a, b) / 4 * 60))
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.Hubs = []Hub{{Name: "Central", Lat: baseLat, Lon: baseLon}}
	return p
}

func fixedScore(v float64) ScenicScorer {
	return func(_, _ gtfs.Stop, _ Preferences) float64 { return v }
}

// recordingMetrics counts planner events.
type recordingMetrics struct {
	mu        sync.Mutex
	kinds     map[string]int
	fallbacks map[string]int
	estimates int
	outcomes  map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{kinds: map[string]int{}, fallbacks: map[string]int{}, outcomes: map[string]int{}}
}

func (m *recordingMetrics) RouteChosen(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds[kind]++
}

func (m *recordingMetrics) WalkingFallback(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[reason]++
}

func (m *recordingMetrics) TripTimeEstimated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimates++
}

func (m *recordingMetrics) ScheduleBuilt(_ time.Duration, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[outcome]++
}

// noTripData hides timetabled ride times so the finder has to estimate.
type noTripData struct {
	*transit.MemoryIndex
}

func (noTripData) TripTravelTime(context.Context, string, string, string, string) (*gtfs.TripTravel, error) {
	return nil, nil
}

// brokenRoutes fails every route lookup.
type brokenRoutes struct {
	*transit.MemoryIndex
}

func (brokenRoutes) RoutesBetweenStops(context.Context, string, string) ([]gtfs.RouteRef, error) {
	return nil, errors.New("connection reset")
}

// assertMonotonic checks that no item starts before the previous one ended.
func assertMonotonic(t *testing.T, items []ScheduleItem) {
	t.Helper()
	prevEnd := -1
	for i, it := range items {
		start, end, err := it.Span()
		if err != nil {
			t.Fatalf("item %d: %v", i, err)
		}
		if end < start {
			t.Errorf("item %d ends (%d) before it starts (%d)", i, end, start)
		}
		if start < prevEnd {
			t.Errorf("item %d starts at %d before previous end %d", i, start, prevEnd)
		}
		prevEnd = end
	}
}
