package planner

import (
	"tour-planner/internal/catalog"
	"tour-planner/internal/geo"
	"tour-planner/internal/gtfs"
)

type ItemType string

const (
	ItemVisit   ItemType = "visit"
	ItemTransit ItemType = "transit"
)

// ScheduleItem is one entry of an itinerary. Exactly one of Visit and Leg is
// set, matching Type. For a visit ArrivalTime precedes DepartureTime; for a
// leg DepartureTime is when it starts.
type ScheduleItem struct {
	Type          ItemType `json:"type"`
	ArrivalTime   string   `json:"arrivalTime"`
	DepartureTime string   `json:"departureTime"`
	*Visit
	*Leg
}

type Visit struct {
	Spot     catalog.Spot `json:"spot"`
	Duration int          `json:"duration"`
}

type Leg struct {
	From          geo.Location `json:"from"`
	To            geo.Location `json:"to"`
	Route         Route        `json:"route"`
	BoardingTime  string       `json:"boardingTime,omitempty"`
	AlightingTime string       `json:"alightingTime,omitempty"`
	WaitTime      int          `json:"waitTime"`
	TravelTime    int          `json:"travelTime"`
	TotalTime     int          `json:"totalTime"`
	Mode          Mode         `json:"mode"`
	RouteName     string       `json:"routeName,omitempty"`
	RouteNumber   string       `json:"routeNumber,omitempty"`
	ScenicScore   float64      `json:"scenicScore"`

	IsFirstTransit bool `json:"isFirstTransit,omitempty"`
	IsReturn       bool `json:"isReturn,omitempty"`
	// IsTransferLeg is 1 or 2 for the halves of a transfer, else 0.
	IsTransferLeg int `json:"isTransferLeg,omitempty"`
}

// Span returns the item's start and end minute.
func (it ScheduleItem) Span() (start, end int, err error) {
	a, err := gtfs.ParseClock(it.ArrivalTime)
	if err != nil {
		return 0, 0, err
	}
	d, err := gtfs.ParseClock(it.DepartureTime)
	if err != nil {
		return 0, 0, err
	}
	if it.Type == ItemVisit {
		return a, d, nil
	}
	return d, a, nil
}

type Summary struct {
	TotalSpots     int    `json:"totalSpots"`
	TotalDuration  int    `json:"totalDuration"`
	StartTime      string `json:"startTime"`
	EndTime        string `json:"endTime"`
	IncludesReturn bool   `json:"includesReturn"`
}

type Itinerary struct {
	Schedule []ScheduleItem `json:"schedule"`
	Summary  Summary        `json:"summary"`
}
