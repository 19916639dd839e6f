package gtfs

import "time"

type Stop struct {
	StopID   string  `json:"stop_id" yaml:"stop_id"`
	StopName string  `json:"stop_name" yaml:"stop_name"`
	StopLat  float64 `json:"stop_lat" yaml:"stop_lat"`
	StopLon  float64 `json:"stop_lon" yaml:"stop_lon"`
}

type Route struct {
	RouteID        string `json:"route_id" yaml:"route_id"`
	RouteShortName string `json:"route_short_name" yaml:"route_short_name"`
	RouteLongName  string `json:"route_long_name" yaml:"route_long_name"`
	RouteType      int    `json:"route_type" yaml:"route_type"`
}

// DisplayName prefers the long name, as shown on stop signage.
func (r Route) DisplayName() string {
	if r.RouteLongName != "" {
		return r.RouteLongName
	}
	return r.RouteShortName
}

type Trip struct {
	TripID    string `json:"trip_id" yaml:"trip_id"`
	RouteID   string `json:"route_id" yaml:"route_id"`
	ServiceID string `json:"service_id" yaml:"service_id"`
}

// StopTime keeps the raw GTFS clock strings; hours may exceed 24 for
// trips that run past midnight.
type StopTime struct {
	TripID        string `json:"trip_id" yaml:"trip_id"`
	StopID        string `json:"stop_id" yaml:"stop_id"`
	StopSequence  int    `json:"stop_sequence" yaml:"stop_sequence"`
	ArrivalTime   string `json:"arrival_time" yaml:"arrival_time"`
	DepartureTime string `json:"departure_time" yaml:"departure_time"`
}

// ArrivalSec falls back to the departure time when arrival is blank.
func (st StopTime) ArrivalSec() int {
	if st.ArrivalTime == "" {
		return ParseDaySeconds(st.DepartureTime)
	}
	return ParseDaySeconds(st.ArrivalTime)
}

func (st StopTime) DepartureSec() int {
	if st.DepartureTime == "" {
		return ParseDaySeconds(st.ArrivalTime)
	}
	return ParseDaySeconds(st.DepartureTime)
}

// Calendar dates use the GTFS YYYYMMDD form.
type Calendar struct {
	ServiceID string `json:"service_id" yaml:"service_id"`
	Monday    bool   `json:"monday" yaml:"monday"`
	Tuesday   bool   `json:"tuesday" yaml:"tuesday"`
	Wednesday bool   `json:"wednesday" yaml:"wednesday"`
	Thursday  bool   `json:"thursday" yaml:"thursday"`
	Friday    bool   `json:"friday" yaml:"friday"`
	Saturday  bool   `json:"saturday" yaml:"saturday"`
	Sunday    bool   `json:"sunday" yaml:"sunday"`
	StartDate int    `json:"start_date" yaml:"start_date"`
	EndDate   int    `json:"end_date" yaml:"end_date"`
}

// RunsOn reports whether the regular weekly pattern covers the given day.
// Exceptions from calendar_dates are applied separately.
func (c Calendar) RunsOn(day time.Time) bool {
	d := DateNumber(day)
	if d < c.StartDate || d > c.EndDate {
		return false
	}
	switch day.Weekday() {
	case time.Monday:
		return c.Monday
	case time.Tuesday:
		return c.Tuesday
	case time.Wednesday:
		return c.Wednesday
	case time.Thursday:
		return c.Thursday
	case time.Friday:
		return c.Friday
	case time.Saturday:
		return c.Saturday
	default:
		return c.Sunday
	}
}

const (
	ExceptionAdded   = 1
	ExceptionRemoved = 2
)

type CalendarDate struct {
	ServiceID     string `json:"service_id" yaml:"service_id"`
	Date          int    `json:"date" yaml:"date"`
	ExceptionType int    `json:"exception_type" yaml:"exception_type"`
}

// Departure is one scheduled vehicle departure at a stop.
type Departure struct {
	TripID        string `json:"trip_id"`
	RouteID       string `json:"route_id"`
	DepartureTime string `json:"departure_time"`
	StopID        string `json:"stop_id"`
	StopSequence  int    `json:"stop_sequence"`
}

// RouteRef names a trip that serves two stops in travel order.
type RouteRef struct {
	TripID  string `json:"trip_id"`
	RouteID string `json:"route_id"`
	StopID  string `json:"stop_id"`
}

// TripTravel is the timetabled ride between two stops of one trip.
type TripTravel struct {
	TravelTime  int    `json:"travelTime"`
	ArrivalTime string `json:"arrivalTime"`
}

// DepartureQuery selects departures at StopID at or after AfterMinutes.
// Empty RouteIDs, TripIDs or ServiceIDs mean no filter on that field.
type DepartureQuery struct {
	StopID       string
	AfterMinutes int
	RouteIDs     []string
	TripIDs      []string
	ServiceIDs   []string
	Limit        int
}

// ResolveServices merges the weekly calendar with exceptions for one day:
// regular services, plus added dates, minus removed dates. The result keeps
// the first-seen order.
func ResolveServices(day time.Time, calendars []Calendar, exceptions []CalendarDate) []string {
	d := DateNumber(day)
	active := make(map[string]bool)
	var order []string
	add := func(id string) {
		if _, seen := active[id]; !seen {
			order = append(order, id)
		}
		active[id] = true
	}
	for _, c := range calendars {
		if c.RunsOn(day) {
			add(c.ServiceID)
		}
	}
	for _, ex := range exceptions {
		if ex.Date != d {
			continue
		}
		switch ex.ExceptionType {
		case ExceptionAdded:
			add(ex.ServiceID)
		case ExceptionRemoved:
			if _, seen := active[ex.ServiceID]; seen {
				active[ex.ServiceID] = false
			}
		}
	}
	out := make([]string, 0, len(order))
	for _, id := range order {
		if active[id] {
			out = append(out, id)
		}
	}
	return out
}
