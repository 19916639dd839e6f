package planner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"tour-planner/internal/catalog"
	"tour-planner/internal/geo"
	"tour-planner/internal/gtfs"
)

// Request describes one itinerary to build. Spots are visited in the given
// order unless StartLocation is set, in which case they are first filtered
// for reachability and ordered by travel time from the start.
type Request struct {
	Spots         []catalog.Spot
	StartTime     string
	VisitDuration int
	Preferences   Preferences
	StartLocation *geo.Location
	// ServiceDate restricts departures to services running that day.
	ServiceDate *time.Time
}

// ReachableSpot is a spot that passed the reachability filter.
type ReachableSpot struct {
	Spot                catalog.Spot `json:"spot"`
	TravelTimeFromStart int          `json:"travelTimeFromStart"`
	RouteFromStart      Route        `json:"routeFromStart"`
}

// Builder turns a spot list into a timed itinerary using a Finder for every
// hop.
type Builder struct {
	finder  *Finder
	policy  Policy
	metrics Metrics
}

func NewBuilder(f *Finder) *Builder {
	return &Builder{finder: f, policy: f.policy, metrics: f.metrics}
}

func (b *Builder) Finder() *Finder { return b.finder }

// GenerateSchedule builds the whole itinerary or fails; there are no
// partial results.
func (b *Builder) GenerateSchedule(ctx context.Context, req Request) (*Itinerary, error) {
	started := time.Now()
	it, err := b.generate(ctx, req)
	outcome := OutcomeOK
	switch {
	case errors.Is(err, ErrEmptyInput):
		outcome = OutcomeEmpty
	case errors.Is(err, ErrNoReachableSpots):
		outcome = OutcomeUnreachable
	case err != nil:
		outcome = OutcomeError
	}
	b.metrics.ScheduleBuilt(time.Since(started), outcome)
	return it, err
}

func (b *Builder) generate(ctx context.Context, req Request) (*Itinerary, error) {
	if len(req.Spots) == 0 {
		return nil, ErrEmptyInput
	}
	start, err := gtfs.ParseClock(req.StartTime)
	if err != nil {
		return nil, fmt.Errorf("start time: %w", err)
	}
	visit := req.VisitDuration
	if visit <= 0 {
		visit = b.policy.DefaultVisitMinutes
	}
	prefs := req.Preferences
	if req.ServiceDate != nil && !prefs.RestrictServices {
		ids, err := b.finder.index.ActiveServices(ctx, *req.ServiceDate)
		if err != nil {
			return nil, fmt.Errorf("resolve services for %s: %w", req.ServiceDate.Format("2006-01-02"), err)
		}
		prefs.ServiceIDs = ids
		prefs.RestrictServices = true
	}

	spots := req.Spots
	if req.StartLocation != nil {
		reachable := b.filterReachable(ctx, req.Spots, *req.StartLocation, start, b.policy.MaxReachMinutes, prefs)
		if len(reachable) == 0 {
			return nil, ErrNoReachableSpots
		}
		spots = make([]catalog.Spot, len(reachable))
		for i, r := range reachable {
			spots[i] = r.Spot
		}
	}

	w := &scheduleWriter{clock: start, penalty: b.policy.TransferPenaltyMinutes}
	var current *geo.Location
	if req.StartLocation != nil {
		origin := *req.StartLocation
		current = &origin
	}
	for _, spot := range spots {
		dest := spot.Location()
		if current != nil {
			route := b.finder.FindBestRoute(ctx, *current, dest, w.clock, prefs)
			w.travel(route, *current, dest, legTags{first: len(w.items) == 0})
		}
		w.visit(spot, visit)
		current = &dest
	}
	if req.StartLocation != nil {
		home := *req.StartLocation
		route := b.finder.FindBestRoute(ctx, *current, home, w.clock, prefs)
		w.travel(route, *current, home, legTags{ret: true})
	}

	return &Itinerary{
		Schedule: w.items,
		Summary: Summary{
			TotalSpots:     len(req.Spots),
			TotalDuration:  w.clock - start,
			StartTime:      req.StartTime,
			EndTime:        gtfs.FormatClock(w.clock),
			IncludesReturn: req.StartLocation != nil,
		},
	}, nil
}

// FilterReachableSpots keeps spots whose wait plus travel from start at
// startTime is within maxTravel minutes (the policy limit when maxTravel is
// not positive), ordered by that time. Equal times keep input order.
func (b *Builder) FilterReachableSpots(ctx context.Context, spots []catalog.Spot, start geo.Location, startTime string, maxTravel int, prefs Preferences) ([]ReachableSpot, error) {
	at, err := gtfs.ParseClock(startTime)
	if err != nil {
		return nil, fmt.Errorf("start time: %w", err)
	}
	if maxTravel <= 0 {
		maxTravel = b.policy.MaxReachMinutes
	}
	return b.filterReachable(ctx, spots, start, at, maxTravel, prefs), nil
}

func (b *Builder) filterReachable(ctx context.Context, spots []catalog.Spot, start geo.Location, at, maxTravel int, prefs Preferences) []ReachableSpot {
	var out []ReachableSpot
	for _, s := range spots {
		route := b.finder.FindBestRoute(ctx, start, s.Location(), at, prefs)
		total := route.Total()
		if total > maxTravel {
			log.Printf("drop %s: %d min from start exceeds %d", s.Name, total, maxTravel)
			continue
		}
		out = append(out, ReachableSpot{Spot: s, TravelTimeFromStart: total, RouteFromStart: route})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TravelTimeFromStart < out[j].TravelTimeFromStart })
	return out
}

type legTags struct {
	first bool
	ret   bool
}

// scheduleWriter appends items and advances the clock.
type scheduleWriter struct {
	items   []ScheduleItem
	clock   int
	penalty int
}

func (w *scheduleWriter) visit(spot catalog.Spot, minutes int) {
	w.items = append(w.items, ScheduleItem{
		Type:          ItemVisit,
		ArrivalTime:   gtfs.FormatClock(w.clock),
		DepartureTime: gtfs.FormatClock(w.clock + minutes),
		Visit:         &Visit{Spot: spot, Duration: minutes},
	})
	w.clock += minutes
}

func (w *scheduleWriter) travel(route Route, from, to geo.Location, tags legTags) {
	switch r := route.(type) {
	case *TransferRoute:
		hub := r.TransferHub.Location()
		hub.Name = r.FirstLeg.ToStop.StopName
		w.leg(r.FirstLeg, from, hub, tags, 1)
		w.clock += w.penalty
		w.leg(r.SecondLeg, stopLocation(r.SecondLeg.FromStop), to, tags, 2)
	case *DirectRoute:
		w.leg(r, from, to, tags, 0)
	}
}

func (w *scheduleWriter) leg(r *DirectRoute, from, to geo.Location, tags legTags, transferLeg int) {
	leg := &Leg{
		From:           from,
		To:             to,
		Route:          r,
		WaitTime:       r.WaitTime,
		TravelTime:     r.TravelTime,
		TotalTime:      r.Total(),
		Mode:           r.Mode,
		RouteName:      r.RouteName,
		RouteNumber:    r.RouteNumber,
		IsFirstTransit: tags.first,
		IsReturn:       tags.ret,
		IsTransferLeg:  transferLeg,
	}
	if transferLeg == 0 {
		leg.ScenicScore = r.ScenicScore
	}
	if r.Mode == ModeTransit && r.Departure != nil {
		leg.BoardingTime = gtfs.FormatClock(w.clock + r.WaitTime)
		leg.AlightingTime = gtfs.FormatClock(w.clock + r.Total())
	}
	w.items = append(w.items, ScheduleItem{
		Type:          ItemTransit,
		DepartureTime: gtfs.FormatClock(w.clock),
		ArrivalTime:   gtfs.FormatClock(w.clock + r.Total()),
		Leg:           leg,
	})
	w.clock += r.Total()
}
