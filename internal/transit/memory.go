package transit

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"tour-planner/internal/geo"
	"tour-planner/internal/gtfs"
)

// DefaultDepartureLimit applies when a DepartureQuery has no positive Limit.
const DefaultDepartureLimit = 10

// Feed is a small GTFS timetable expressed as YAML, used for fixtures and
// for running the planner without a database.
type Feed struct {
	Stops         []gtfs.Stop         `yaml:"stops"`
	Routes        []gtfs.Route        `yaml:"routes"`
	Trips         []gtfs.Trip         `yaml:"trips"`
	StopTimes     []gtfs.StopTime     `yaml:"stop_times"`
	Calendars     []gtfs.Calendar     `yaml:"calendar"`
	CalendarDates []gtfs.CalendarDate `yaml:"calendar_dates"`
}

// LoadFeedFile reads a YAML feed from disk.
func LoadFeedFile(path string) (*Feed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed %s: %w", path, err)
	}
	var f Feed
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", path, err)
	}
	return &f, nil
}

// MemoryIndex serves an Index from maps built once at construction. It is
// read-only afterwards and safe for concurrent use.
type MemoryIndex struct {
	stops      map[string]gtfs.Stop
	stopOrder  []string
	routes     map[string]gtfs.Route
	trips      map[string]gtfs.Trip
	tripTimes  map[string][]gtfs.StopTime // trip_id -> stop_times by stop_sequence
	stopVisits map[string][]gtfs.StopTime // stop_id -> stop_times by departure

	calendars     []gtfs.Calendar
	calendarDates []gtfs.CalendarDate
}

// NewMemoryIndex indexes the feed. Stop times must reference known trips and stops.
func NewMemoryIndex(f *Feed) (*MemoryIndex, error) {
	if f == nil {
		f = &Feed{}
	}
	m := &MemoryIndex{
		stops:         make(map[string]gtfs.Stop, len(f.Stops)),
		routes:        make(map[string]gtfs.Route, len(f.Routes)),
		trips:         make(map[string]gtfs.Trip, len(f.Trips)),
		tripTimes:     make(map[string][]gtfs.StopTime),
		stopVisits:    make(map[string][]gtfs.StopTime),
		calendars:     slices.Clone(f.Calendars),
		calendarDates: slices.Clone(f.CalendarDates),
	}
	for _, s := range f.Stops {
		if _, dup := m.stops[s.StopID]; dup {
			return nil, fmt.Errorf("duplicate stop_id %q", s.StopID)
		}
		m.stops[s.StopID] = s
		m.stopOrder = append(m.stopOrder, s.StopID)
	}
	for _, r := range f.Routes {
		m.routes[r.RouteID] = r
	}
	for _, t := range f.Trips {
		m.trips[t.TripID] = t
	}
	for _, st := range f.StopTimes {
		if _, ok := m.trips[st.TripID]; !ok {
			return nil, fmt.Errorf("stop_time references unknown trip %q", st.TripID)
		}
		if _, ok := m.stops[st.StopID]; !ok {
			return nil, fmt.Errorf("stop_time references unknown stop %q", st.StopID)
		}
		m.tripTimes[st.TripID] = append(m.tripTimes[st.TripID], st)
		m.stopVisits[st.StopID] = append(m.stopVisits[st.StopID], st)
	}
	for _, sts := range m.tripTimes {
		sort.SliceStable(sts, func(i, j int) bool { return sts[i].StopSequence < sts[j].StopSequence })
	}
	for _, sts := range m.stopVisits {
		sort.SliceStable(sts, func(i, j int) bool {
			di, dj := sts[i].DepartureSec(), sts[j].DepartureSec()
			if di != dj {
				return di < dj
			}
			return sts[i].TripID < sts[j].TripID
		})
	}
	return m, nil
}

// OpenFeedFile loads and indexes a YAML feed.
func OpenFeedFile(path string) (*MemoryIndex, error) {
	f, err := LoadFeedFile(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryIndex(f)
}

func (m *MemoryIndex) FindNearbyStops(_ context.Context, lat, lon, radiusKm float64) ([]gtfs.Stop, error) {
	box := geo.BoxAround(lat, lon, radiusKm)
	type hit struct {
		stop gtfs.Stop
		dist float64
	}
	var hits []hit
	for _, id := range m.stopOrder {
		s := m.stops[id]
		if !box.Contains(s.StopLat, s.StopLon) {
			continue
		}
		d := geo.DistanceKm(lat, lon, s.StopLat, s.StopLon)
		if d <= radiusKm {
			hits = append(hits, hit{stop: s, dist: d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	out := make([]gtfs.Stop, len(hits))
	for i, h := range hits {
		out[i] = h.stop
	}
	return out, nil
}

func (m *MemoryIndex) RoutesBetweenStops(_ context.Context, fromStopID, toStopID string) ([]gtfs.RouteRef, error) {
	var refs []gtfs.RouteRef
	seen := make(map[string]bool)
	for _, visit := range m.stopVisits[fromStopID] {
		if seen[visit.TripID] {
			continue
		}
		seen[visit.TripID] = true
		if !servesInOrder(m.tripTimes[visit.TripID], fromStopID, toStopID) {
			continue
		}
		refs = append(refs, gtfs.RouteRef{
			TripID:  visit.TripID,
			RouteID: m.trips[visit.TripID].RouteID,
			StopID:  toStopID,
		})
	}
	return refs, nil
}

// servesInOrder reports whether some visit of from precedes some visit of to.
func servesInOrder(sts []gtfs.StopTime, from, to string) bool {
	firstFrom := -1
	for _, st := range sts {
		if st.StopID == from && firstFrom < 0 {
			firstFrom = st.StopSequence
			continue
		}
		if st.StopID == to && firstFrom >= 0 && st.StopSequence > firstFrom {
			return true
		}
	}
	return false
}

func (m *MemoryIndex) NextDepartures(_ context.Context, q gtfs.DepartureQuery) ([]gtfs.Departure, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultDepartureLimit
	}
	after := q.AfterMinutes * 60
	var out []gtfs.Departure
	for _, st := range m.stopVisits[q.StopID] {
		if st.DepartureSec() < after {
			continue
		}
		trip := m.trips[st.TripID]
		if len(q.RouteIDs) > 0 && !slices.Contains(q.RouteIDs, trip.RouteID) {
			continue
		}
		if len(q.TripIDs) > 0 && !slices.Contains(q.TripIDs, st.TripID) {
			continue
		}
		if len(q.ServiceIDs) > 0 && !slices.Contains(q.ServiceIDs, trip.ServiceID) {
			continue
		}
		dep := st.DepartureTime
		if dep == "" {
			dep = st.ArrivalTime
		}
		out = append(out, gtfs.Departure{
			TripID:        st.TripID,
			RouteID:       trip.RouteID,
			DepartureTime: dep,
			StopID:        st.StopID,
			StopSequence:  st.StopSequence,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryIndex) TripTravelTime(_ context.Context, tripID, fromStopID, toStopID, departureTime string) (*gtfs.TripTravel, error) {
	return TravelWithinTrip(m.tripTimes[tripID], fromStopID, toStopID, departureTime), nil
}

// TravelWithinTrip boards at the stop_time of fromStopID departing at
// departureTime and alights at the first later visit of toStopID. sts must
// be one trip's stop_times ordered by stop_sequence. Nil means no such ride.
func TravelWithinTrip(sts []gtfs.StopTime, fromStopID, toStopID, departureTime string) *gtfs.TripTravel {
	depSec := gtfs.ParseDaySeconds(departureTime)
	boardIdx := -1
	for i, st := range sts {
		if st.StopID == fromStopID && st.DepartureSec() == depSec {
			boardIdx = i
			break
		}
	}
	if boardIdx < 0 {
		return nil
	}
	board := sts[boardIdx]
	for _, st := range sts[boardIdx+1:] {
		if st.StopID != toStopID || st.StopSequence <= board.StopSequence {
			continue
		}
		arrival := st.ArrivalTime
		if arrival == "" {
			arrival = st.DepartureTime
		}
		return &gtfs.TripTravel{
			TravelTime:  st.ArrivalSec()/60 - board.DepartureSec()/60,
			ArrivalTime: arrival,
		}
	}
	return nil
}

func (m *MemoryIndex) RouteByID(_ context.Context, routeID string) (*gtfs.Route, error) {
	r, ok := m.routes[routeID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *MemoryIndex) StopByID(_ context.Context, stopID string) (*gtfs.Stop, error) {
	s, ok := m.stops[stopID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemoryIndex) ActiveServices(_ context.Context, day time.Time) ([]string, error) {
	return gtfs.ResolveServices(day, m.calendars, m.calendarDates), nil
}

func (m *MemoryIndex) Ping(context.Context) error { return nil }
