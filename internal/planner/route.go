package planner

import (
	"tour-planner/internal/geo"
	"tour-planner/internal/gtfs"
)

type Mode string

const (
	ModeWalking Mode = "walking"
	ModeTransit Mode = "transit"
)

// Route is the outcome of one hop: a *DirectRoute (walk or a single ride)
// or a *TransferRoute (two rides through a hub).
type Route interface {
	Wait() int
	Travel() int
	Total() int
	TravelMode() Mode
	isRoute()
}

// DirectRoute is a walk or a single transit ride.
type DirectRoute struct {
	Mode        Mode            `json:"mode"`
	FromStop    *gtfs.Stop      `json:"fromStop,omitempty"`
	ToStop      *gtfs.Stop      `json:"toStop,omitempty"`
	Departure   *gtfs.Departure `json:"departure,omitempty"`
	WaitTime    int             `json:"waitTime"`
	TravelTime  int             `json:"travelTime"`
	RouteName   string          `json:"routeName,omitempty"`
	RouteNumber string          `json:"routeNumber,omitempty"`
	ScenicScore float64         `json:"scenicScore"`
	// Distance is the walked kilometers; walking only.
	Distance *float64 `json:"distance,omitempty"`
	// ActualArrivalTime is the timetabled arrival at ToStop when the trip
	// data was available.
	ActualArrivalTime string `json:"actualArrivalTime,omitempty"`
	// ArrivalTime is the absolute arrival minute; set on transfer legs.
	ArrivalTime *int `json:"arrivalTime,omitempty"`
}

func (r *DirectRoute) Wait() int        { return r.WaitTime }
func (r *DirectRoute) Travel() int      { return r.TravelTime }
func (r *DirectRoute) Total() int       { return r.WaitTime + r.TravelTime }
func (r *DirectRoute) TravelMode() Mode { return r.Mode }
func (*DirectRoute) isRoute()           {}

// TransferRoute rides to a hub, changes vehicles and rides on. WaitTime
// includes the transfer penalty.
type TransferRoute struct {
	Mode        Mode         `json:"mode"`
	IsTransfer  bool         `json:"isTransfer"`
	FirstLeg    *DirectRoute `json:"firstLeg"`
	SecondLeg   *DirectRoute `json:"secondLeg"`
	TransferHub Hub          `json:"transferHub"`
	WaitTime    int          `json:"waitTime"`
	TravelTime  int          `json:"travelTime"`
	FromStop    *gtfs.Stop   `json:"fromStop,omitempty"`
	ToStop      *gtfs.Stop   `json:"toStop,omitempty"`
	RouteName   string       `json:"routeName,omitempty"`
	RouteNumber string       `json:"routeNumber,omitempty"`
	ScenicScore float64      `json:"scenicScore"`
}

func (r *TransferRoute) Wait() int        { return r.WaitTime }
func (r *TransferRoute) Travel() int      { return r.TravelTime }
func (r *TransferRoute) Total() int       { return r.WaitTime + r.TravelTime }
func (r *TransferRoute) TravelMode() Mode { return r.Mode }
func (*TransferRoute) isRoute()           {}

// newTransferRoute joins two legs; penalty minutes are folded into the wait.
func newTransferRoute(first, second *DirectRoute, hub Hub, penalty int) *TransferRoute {
	return &TransferRoute{
		Mode:        ModeTransit,
		IsTransfer:  true,
		FirstLeg:    first,
		SecondLeg:   second,
		TransferHub: hub,
		WaitTime:    first.WaitTime + second.WaitTime + penalty,
		TravelTime:  first.TravelTime + second.TravelTime,
		FromStop:    first.FromStop,
		ToStop:      second.ToStop,
		RouteName:   orUnknown(first.RouteNumber) + " → " + orUnknown(second.RouteNumber),
		RouteNumber: orUnknown(first.RouteNumber) + "/" + orUnknown(second.RouteNumber),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "?"
	}
	return s
}

func stopLocation(s *gtfs.Stop) geo.Location {
	if s == nil {
		return geo.Location{}
	}
	return geo.Location{Lat: s.StopLat, Lon: s.StopLon, Name: s.StopName}
}
