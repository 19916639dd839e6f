package planner

import (
	"context"
	"math"
	"testing"

	"tour-planner/internal/geo"
	"tour-planner/internal/gtfs"
	"tour-planner/internal/transit"
)

const nine = 9 * 60

func TestFindBestRouteWalksWithoutStops(t *testing.T) {
	idx := mustIndex(t, &transit.Feed{})
	m := newRecordingMetrics()
	f := NewFinder(idx, testPolicy(), WithMetrics(m))

	from := geo.Location{Lat: 38.2606, Lon: 140.8817}
	to := geo.Location{Lat: 38.2555, Lon: 140.8636}
	r := f.FindBestRoute(context.Background(), from, to, nine, Preferences{})

	walk, ok := r.(*DirectRoute)
	if !ok || walk.Mode != ModeWalking {
		t.Fatalf("expected walking route, got %#v", r)
	}
	if walk.WaitTime != 0 {
		t.Errorf("walking wait = %d", walk.WaitTime)
	}
	want := int(math.Ceil(geo.DistanceKm(from.Lat, from.Lon, to.Lat, to.Lon) / 4 * 60))
	if walk.TravelTime != want {
		t.Errorf("walking travel = %d, want %d", walk.TravelTime, want)
	}
	if walk.Distance == nil || math.Abs(*walk.Distance-geo.Between(from, to)) > 1e-12 {
		t.Errorf("walking distance = %v", walk.Distance)
	}
	if m.fallbacks[FallbackNoStops] != 1 || m.kinds[KindWalking] != 1 {
		t.Errorf("metrics = %+v %+v", m.fallbacks, m.kinds)
	}
}

func TestFindBestRouteWalkingPreference(t *testing.T) {
	tests := []struct {
		name     string
		km       float64
		dep, arr string
		mode     Mode
		wait     int
		travel   int
		reason   string
	}{
		{name: "ride beats long walk", km: 3.05, dep: "09:10:00", arr: "09:20:00", mode: ModeTransit, wait: 10, travel: 10},
		{name: "short walk beats slower ride", km: 1.25, dep: "09:15:00", arr: "09:20:00", mode: ModeWalking, reason: FallbackWalkFaster},
		{name: "long wait with tolerable walk", km: 2.45, dep: "09:25:00", arr: "09:32:00", mode: ModeWalking, reason: FallbackLongWait},
		{name: "long wait but walk too far", km: 3.05, dep: "09:25:00", arr: "09:32:00", mode: ModeTransit, wait: 25, travel: 7},
		{name: "departure already gone", km: 3.05, dep: "08:50:00", arr: "09:00:00", mode: ModeWalking, reason: FallbackNoTransit},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			idx, from, to := lineFeed(t, tc.km, tc.dep, tc.arr)
			m := newRecordingMetrics()
			f := NewFinder(idx, DefaultPolicy(), WithMetrics(m), WithScenicScorer(fixedScore(2.5)))

			r := f.FindBestRoute(context.Background(), from, to, nine, Preferences{ScenicPriority: 3})
			if r.TravelMode() != tc.mode {
				t.Fatalf("mode = %s, want %s (%#v)", r.TravelMode(), tc.mode, r)
			}
			if tc.mode == ModeWalking {
				if r.Travel() != walkMinutes(from, to) || r.Wait() != 0 {
					t.Errorf("walking = wait %d travel %d, want 0/%d", r.Wait(), r.Travel(), walkMinutes(from, to))
				}
				if m.fallbacks[tc.reason] != 1 {
					t.Errorf("fallbacks = %v, want %s", m.fallbacks, tc.reason)
				}
				return
			}
			d := r.(*DirectRoute)
			if d.WaitTime != tc.wait || d.TravelTime != tc.travel {
				t.Errorf("transit = wait %d travel %d, want %d/%d", d.WaitTime, d.TravelTime, tc.wait, tc.travel)
			}
			if d.RouteName != "Riverside" || d.RouteNumber != "7" {
				t.Errorf("route name = %q number = %q", d.RouteName, d.RouteNumber)
			}
			if d.ActualArrivalTime != tc.arr {
				t.Errorf("actual arrival = %q, want %q", d.ActualArrivalTime, tc.arr)
			}
			if d.ScenicScore != 2.5 {
				t.Errorf("scenic = %v", d.ScenicScore)
			}
			if d.FromStop.StopID != "P" || d.ToStop.StopID != "X" || d.Departure.TripID != "T" {
				t.Errorf("unexpected ride %+v", d)
			}
			if d.Distance != nil {
				t.Error("transit route must not carry a walking distance")
			}
		})
	}
}

func TestFindBestRouteEstimatesMissingTripData(t *testing.T) {
	mem, from, to := lineFeed(t, 3.05, "09:10:00", "09:20:00")
	m := newRecordingMetrics()
	f := NewFinder(noTripData{mem}, DefaultPolicy(), WithMetrics(m))

	r := f.FindBestRoute(context.Background(), from, to, nine, Preferences{})
	d, ok := r.(*DirectRoute)
	if !ok || d.Mode != ModeTransit {
		t.Fatalf("expected transit, got %#v", r)
	}
	want := int(math.Ceil(geo.Between(from, to) / 30 * 60))
	if d.TravelTime != want || d.WaitTime != 10 {
		t.Errorf("estimated ride = wait %d travel %d, want 10/%d", d.WaitTime, d.TravelTime, want)
	}
	if d.ActualArrivalTime != "" {
		t.Errorf("estimated ride has actual arrival %q", d.ActualArrivalTime)
	}
	if m.estimates == 0 {
		t.Error("estimate not reported")
	}
}

func TestFindBestRouteFallsBackOnIndexError(t *testing.T) {
	mem, from, to := lineFeed(t, 3.05, "09:10:00", "09:20:00")
	m := newRecordingMetrics()
	f := NewFinder(brokenRoutes{mem}, DefaultPolicy(), WithMetrics(m))

	r := f.FindBestRoute(context.Background(), from, to, nine, Preferences{})
	if r.TravelMode() != ModeWalking || r.Travel() != walkMinutes(from, to) {
		t.Fatalf("expected walking fallback, got %#v", r)
	}
	if m.fallbacks[FallbackIndexError] != 1 {
		t.Errorf("fallbacks = %v", m.fallbacks)
	}
}

func TestFindBestRouteNeverRidesBackwards(t *testing.T) {
	// the only trip runs from X to P
	origin, dest := north(0, "Origin"), north(3.05, "Dest")
	idx := mustIndex(t, &transit.Feed{
		Stops:     []gtfs.Stop{stopAt("P", origin), stopAt("X", dest)},
		Routes:    []gtfs.Route{{RouteID: "R"}},
		Trips:     []gtfs.Trip{{TripID: "T", RouteID: "R"}},
		StopTimes: ride("T", []string{"X", "P"}, []string{"09:10:00", "09:20:00"}),
	})
	f := NewFinder(idx, DefaultPolicy())

	r := f.FindBestRoute(context.Background(), origin, dest, nine, Preferences{})
	if r.TravelMode() != ModeWalking {
		t.Fatalf("expected walking, got %#v", r)
	}
	back := f.FindBestRoute(context.Background(), dest, origin, nine, Preferences{})
	if back.TravelMode() != ModeTransit {
		t.Fatalf("expected transit in the served direction, got %#v", back)
	}
}

func TestFindBestRouteSkipsReturnTripsOnTwoWayRoute(t *testing.T) {
	// route R runs both ways; BACK leaves P sooner but heads away from X
	origin, dest := north(0, "Origin"), north(3.05, "Dest")
	idx := mustIndex(t, &transit.Feed{
		Stops:  []gtfs.Stop{stopAt("P", origin), stopAt("X", dest)},
		Routes: []gtfs.Route{{RouteID: "R", RouteShortName: "7", RouteLongName: "Riverside"}},
		Trips:  []gtfs.Trip{{TripID: "OUT", RouteID: "R"}, {TripID: "BACK", RouteID: "R"}},
		StopTimes: append(
			ride("OUT", []string{"P", "X"}, []string{"09:10:00", "09:20:00"}),
			ride("BACK", []string{"X", "P"}, []string{"09:00:00", "09:05:00"})...,
		),
	})
	f := NewFinder(idx, DefaultPolicy(), WithScenicScorer(fixedScore(1)))

	r := f.FindBestRoute(context.Background(), origin, dest, nine, Preferences{})
	d, ok := r.(*DirectRoute)
	if !ok || d.Mode != ModeTransit {
		t.Fatalf("expected a transit route, got %#v", r)
	}
	if d.Departure.TripID != "OUT" {
		t.Fatalf("boarded %s, want OUT", d.Departure.TripID)
	}
	if d.WaitTime != 10 || d.TravelTime != 10 || d.ActualArrivalTime != "09:20:00" {
		t.Errorf("wait=%d travel=%d arrival=%q", d.WaitTime, d.TravelTime, d.ActualArrivalTime)
	}
}

// transferFeed: O -- 2.29 km -- hub -- 2.29 km -- D with no direct trip.
func transferFeed(t *testing.T) (*transit.MemoryIndex, geo.Location, geo.Location) {
	t.Helper()
	origin := north(-2.29, "Origin")
	dest := north(2.29, "Dest")
	hub := north(0, "Hub")
	idx := mustIndex(t, &transit.Feed{
		Stops: []gtfs.Stop{stopAt("S1", origin), stopAt("H1", hub), stopAt("S2", dest)},
		Routes: []gtfs.Route{
			{RouteID: "RX", RouteShortName: "10", RouteLongName: "South Line"},
			{RouteID: "RY", RouteShortName: "20", RouteLongName: "North Line"},
		},
		Trips: []gtfs.Trip{{TripID: "X", RouteID: "RX"}, {TripID: "Y", RouteID: "RY"}},
		StopTimes: append(
			ride("X", []string{"S1", "H1"}, []string{"09:05:00", "09:15:00"}),
			ride("Y", []string{"H1", "S2"}, []string{"09:23:00", "09:31:00"})...,
		),
	})
	return idx, origin, dest
}

func TestTransferRouteFoldsPenaltyIntoWait(t *testing.T) {
	idx, origin, dest := transferFeed(t)
	m := newRecordingMetrics()
	f := NewFinder(idx, testPolicy(), WithMetrics(m), WithScenicScorer(fixedScore(1)))

	r := f.FindBestRoute(context.Background(), origin, dest, nine, Preferences{})
	tr, ok := r.(*TransferRoute)
	if !ok {
		t.Fatalf("expected transfer route, got %#v", r)
	}
	if tr.FirstLeg.WaitTime != 5 || tr.FirstLeg.TravelTime != 10 {
		t.Errorf("first leg = %d/%d, want 5/10", tr.FirstLeg.WaitTime, tr.FirstLeg.TravelTime)
	}
	if tr.SecondLeg.WaitTime != 3 || tr.SecondLeg.TravelTime != 8 {
		t.Errorf("second leg = %d/%d, want 3/8", tr.SecondLeg.WaitTime, tr.SecondLeg.TravelTime)
	}
	if tr.WaitTime != 13 || tr.TravelTime != 18 {
		t.Errorf("transfer = wait %d travel %d, want 13/18", tr.WaitTime, tr.TravelTime)
	}
	if !tr.IsTransfer || tr.Mode != ModeTransit || tr.TransferHub.Name != "Central" {
		t.Errorf("unexpected transfer %+v", tr)
	}
	if tr.RouteName != "10 → 20" || tr.RouteNumber != "10/20" {
		t.Errorf("names = %q / %q", tr.RouteName, tr.RouteNumber)
	}
	if *tr.FirstLeg.ArrivalTime != nine+15 || *tr.SecondLeg.ArrivalTime != nine+31 {
		t.Errorf("leg arrivals = %d, %d", *tr.FirstLeg.ArrivalTime, *tr.SecondLeg.ArrivalTime)
	}
	if tr.FromStop.StopID != "S1" || tr.ToStop.StopID != "S2" {
		t.Errorf("endpoints = %s -> %s", tr.FromStop.StopID, tr.ToStop.StopID)
	}
	if m.kinds[KindTransfer] != 1 {
		t.Errorf("kinds = %v", m.kinds)
	}
}

func TestTransferNeedsConfiguredHub(t *testing.T) {
	idx, origin, dest := transferFeed(t)
	f := NewFinder(idx, DefaultPolicy())

	r := f.FindBestRoute(context.Background(), origin, dest, nine, Preferences{})
	if r.TravelMode() != ModeWalking {
		t.Fatalf("without hubs expected walking, got %#v", r)
	}
}

func TestTransferMissedConnection(t *testing.T) {
	idx, origin, dest := transferFeed(t)
	f := NewFinder(idx, testPolicy())

	// at 09:20 the first ride is gone
	r := f.FindBestRoute(context.Background(), origin, dest, nine+20, Preferences{})
	if r.TravelMode() != ModeWalking {
		t.Fatalf("expected walking, got %#v", r)
	}
}

func TestParallelSearchPicksSameRoute(t *testing.T) {
	// two origin stops and two destination stops; P1->X2 and P2->X1 tie
	p1, p2 := north(0, "P1"), geo.Location{Lat: baseLat, Lon: baseLon + 0.002, Name: "P2"}
	x1, x2 := north(3.05, "X1"), geo.Location{Lat: north(3.05, "").Lat, Lon: baseLon + 0.002, Name: "X2"}
	feed := &transit.Feed{
		Stops:  []gtfs.Stop{stopAt("P1", p1), stopAt("P2", p2), stopAt("X1", x1), stopAt("X2", x2)},
		Routes: []gtfs.Route{{RouteID: "A", RouteShortName: "A"}, {RouteID: "B", RouteShortName: "B"}},
		Trips:  []gtfs.Trip{{TripID: "TA", RouteID: "A"}, {TripID: "TB", RouteID: "B"}},
		StopTimes: append(
			ride("TA", []string{"P1", "X2"}, []string{"09:10:00", "09:20:00"}),
			ride("TB", []string{"P2", "X1"}, []string{"09:10:00", "09:20:00"})...,
		),
	}
	idx := mustIndex(t, feed)

	for _, n := range []int{1, 4, 16} {
		f := NewFinder(idx, DefaultPolicy(), WithConcurrency(n))
		for i := 0; i < 20; i++ {
			r := f.FindBestRoute(context.Background(), p1, x1, nine, Preferences{})
			d, ok := r.(*DirectRoute)
			if !ok || d.Mode != ModeTransit {
				t.Fatalf("concurrency %d: expected transit, got %#v", n, r)
			}
			if d.FromStop.StopID != "P1" || d.ToStop.StopID != "X2" {
				t.Fatalf("concurrency %d: picked %s -> %s, want P1 -> X2", n, d.FromStop.StopID, d.ToStop.StopID)
			}
		}
	}
}

func TestServiceFilter(t *testing.T) {
	idx, from, to := lineFeed(t, 3.05, "09:10:00", "09:20:00")
	f := NewFinder(idx, DefaultPolicy())
	ctx := context.Background()

	r := f.FindBestRoute(ctx, from, to, nine, Preferences{RestrictServices: true, ServiceIDs: []string{"weekday"}})
	if r.TravelMode() != ModeTransit {
		t.Errorf("weekday service: expected transit, got %s", r.TravelMode())
	}
	r = f.FindBestRoute(ctx, from, to, nine, Preferences{RestrictServices: true, ServiceIDs: []string{"holiday"}})
	if r.TravelMode() != ModeWalking {
		t.Errorf("other service: expected walking, got %s", r.TravelMode())
	}
	r = f.FindBestRoute(ctx, from, to, nine, Preferences{RestrictServices: true})
	if r.TravelMode() != ModeWalking {
		t.Errorf("no service: expected walking, got %s", r.TravelMode())
	}
}

func TestRandomScenicScoreRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		v := RandomScenicScore(gtfs.Stop{}, gtfs.Stop{}, Preferences{ScenicPriority: 4})
		if v < 0 || v >= 4 {
			t.Fatalf("score %v out of [0,4)", v)
		}
	}
	if v := RandomScenicScore(gtfs.Stop{}, gtfs.Stop{}, Preferences{}); v != 0 {
		t.Errorf("zero priority score = %v", v)
	}
}
