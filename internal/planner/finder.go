package planner

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"

	"tour-planner/internal/geo"
	"tour-planner/internal/gtfs"
	"tour-planner/internal/transit"
)

// Preferences tune a single planning request.
type Preferences struct {
	// ScenicPriority is the 0-5 slider from the client.
	ScenicPriority float64 `json:"scenicPriority" validate:"gte=0,lte=5"`

	// When RestrictServices is set only departures of ServiceIDs count.
	// An empty list then means nothing runs.
	ServiceIDs       []string `json:"-"`
	RestrictServices bool     `json:"-"`
}

func (p Preferences) serviceFilter() []string {
	if !p.RestrictServices {
		return nil
	}
	return p.ServiceIDs
}

// ScenicScorer rates the ride between two stops.
type ScenicScorer func(from, to gtfs.Stop, prefs Preferences) float64

// RandomScenicScore scales a uniform draw by the scenic slider. It is a
// placeholder until real scenery data exists.
func RandomScenicScore(_, _ gtfs.Stop, prefs Preferences) float64 {
	return prefs.ScenicPriority * rand.Float64()
}

// Finder picks the fastest way between two locations: walking, one ride,
// or two rides through a configured hub.
type Finder struct {
	index       transit.Index
	policy      Policy
	scorer      ScenicScorer
	metrics     Metrics
	concurrency int
	logSearch   bool
}

type Option func(*Finder)

func WithScenicScorer(s ScenicScorer) Option {
	return func(f *Finder) {
		if s != nil {
			f.scorer = s
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(f *Finder) {
		if m != nil {
			f.metrics = m
		}
	}
}

// WithConcurrency bounds the stop pairs looked up in parallel. 1 keeps the
// lookups sequential.
func WithConcurrency(n int) Option {
	return func(f *Finder) { f.concurrency = n }
}

// WithSearchLog logs every route search decision.
func WithSearchLog(on bool) Option {
	return func(f *Finder) { f.logSearch = on }
}

func NewFinder(idx transit.Index, policy Policy, opts ...Option) *Finder {
	f := &Finder{
		index:       idx,
		policy:      policy,
		scorer:      RandomScenicScore,
		metrics:     noopMetrics{},
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.concurrency < 1 {
		f.concurrency = 1
	}
	return f
}

func (f *Finder) Policy() Policy { return f.policy }

func (f *Finder) Index() transit.Index { return f.index }

// WalkingRoute walks the great-circle distance at the policy walking speed.
func (f *Finder) WalkingRoute(from, to geo.Location) *DirectRoute {
	d := geo.Between(from, to)
	return &DirectRoute{
		Mode:       ModeWalking,
		TravelTime: int(math.Ceil(d / f.policy.WalkingSpeedKmh * 60)),
		Distance:   &d,
	}
}

// FindBestRoute never fails: index errors degrade to a walking route.
func (f *Finder) FindBestRoute(ctx context.Context, from, to geo.Location, now int, prefs Preferences) Route {
	r, err := f.findBestRoute(ctx, from, to, now, prefs)
	if err != nil {
		log.Printf("route search %s -> %s failed, walking instead: %v", label(from), label(to), err)
		f.metrics.WalkingFallback(FallbackIndexError)
		r = f.WalkingRoute(from, to)
	}
	f.metrics.RouteChosen(routeKind(r))
	return r
}

func (f *Finder) findBestRoute(ctx context.Context, from, to geo.Location, now int, prefs Preferences) (Route, error) {
	p := f.policy
	walk := f.WalkingRoute(from, to)

	fromStops, err := f.index.FindNearbyStops(ctx, from.Lat, from.Lon, p.NearbyRadiusKm)
	if err != nil {
		return nil, fmt.Errorf("stops near origin: %w", err)
	}
	toStops, err := f.index.FindNearbyStops(ctx, to.Lat, to.Lon, p.NearbyRadiusKm)
	if err != nil {
		return nil, fmt.Errorf("stops near destination: %w", err)
	}
	if len(fromStops) == 0 || len(toStops) == 0 {
		f.debugf("route %s -> %s: no stops nearby (%d/%d), walking %d min", label(from), label(to), len(fromStops), len(toStops), walk.TravelTime)
		f.metrics.WalkingFallback(FallbackNoStops)
		return walk, nil
	}
	if prefs.RestrictServices && len(prefs.ServiceIDs) == 0 {
		f.debugf("route %s -> %s: no service runs that day, walking", label(from), label(to))
		f.metrics.WalkingFallback(FallbackNoService)
		return walk, nil
	}

	best, err := f.bestLeg(ctx, legQuery{
		from:       head(fromStops, p.CandidateStops),
		to:         head(toStops, p.CandidateStops),
		at:         now,
		departures: p.CandidateDepartures,
		prefs:      prefs,
	})
	if err != nil {
		return nil, err
	}
	th := p.Walking
	if best != nil {
		best.ScenicScore = f.scorer(*best.FromStop, *best.ToStop, prefs)
		f.debugf("route %s -> %s: best ride %s -> %s wait %d travel %d, walking %d",
			label(from), label(to), best.FromStop.StopName, best.ToStop.StopName, best.WaitTime, best.TravelTime, walk.TravelTime)
		switch {
		case walk.TravelTime <= th.ShortWalk && best.Total() > walk.TravelTime:
			f.metrics.WalkingFallback(FallbackWalkFaster)
			return walk, nil
		case best.WaitTime >= th.LongWait && walk.TravelTime <= th.TolerableWalk:
			f.metrics.WalkingFallback(FallbackLongWait)
			return walk, nil
		}
		return best, nil
	}

	transfer, err := f.findTransferRoute(ctx, now, fromStops, toStops, prefs)
	if err != nil {
		return nil, err
	}
	if transfer != nil {
		total := transfer.Total()
		f.debugf("route %s -> %s: transfer at %s wait %d travel %d, walking %d",
			label(from), label(to), transfer.TransferHub.Name, transfer.WaitTime, transfer.TravelTime, walk.TravelTime)
		switch {
		case walk.TravelTime <= th.ShortWalk && float64(total) >= float64(walk.TravelTime)*th.TransferRatio:
			f.metrics.WalkingFallback(FallbackSlowTransfer)
			return walk, nil
		case total >= th.LongTransfer && walk.TravelTime <= th.TolerableWalk:
			f.metrics.WalkingFallback(FallbackSlowTransfer)
			return walk, nil
		}
		return transfer, nil
	}

	f.debugf("route %s -> %s: no ride found, walking %d min", label(from), label(to), walk.TravelTime)
	f.metrics.WalkingFallback(FallbackNoTransit)
	return walk, nil
}

// findTransferRoute tries every hub and keeps the one with the least total
// time. Nil means no hub connects both sides.
func (f *Finder) findTransferRoute(ctx context.Context, now int, fromStops, toStops []gtfs.Stop, prefs Preferences) (*TransferRoute, error) {
	p := f.policy
	var best *TransferRoute
	for _, hub := range p.Hubs {
		hubStops, err := f.index.FindNearbyStops(ctx, hub.Lat, hub.Lon, p.HubRadiusKm)
		if err != nil {
			return nil, fmt.Errorf("stops near hub %s: %w", hub.Name, err)
		}
		if len(hubStops) == 0 {
			continue
		}
		hubStops = head(hubStops, p.TransferCandidateStops)

		first, err := f.bestLeg(ctx, legQuery{
			from:       head(fromStops, p.TransferCandidateStops),
			to:         hubStops,
			at:         now,
			departures: p.TransferCandidateDepartures,
			prefs:      prefs,
		})
		if err != nil {
			return nil, err
		}
		if first == nil {
			continue
		}
		firstArrival := now + first.Total()
		first.ArrivalTime = &firstArrival
		transferAt := firstArrival + p.TransferPenaltyMinutes

		second, err := f.bestLeg(ctx, legQuery{
			from:       hubStops,
			to:         head(toStops, p.TransferCandidateStops),
			at:         transferAt,
			departures: p.TransferCandidateDepartures,
			prefs:      prefs,
		})
		if err != nil {
			return nil, err
		}
		if second == nil {
			continue
		}
		secondArrival := transferAt + second.Total()
		second.ArrivalTime = &secondArrival

		route := newTransferRoute(first, second, hub, p.TransferPenaltyMinutes)
		if best == nil || route.Total() < best.Total() {
			best = route
		}
	}
	if best != nil {
		best.ScenicScore = f.scorer(*best.FromStop, *best.ToStop, prefs)
	}
	return best, nil
}

type legQuery struct {
	from, to   []gtfs.Stop
	at         int
	departures int
	prefs      Preferences
}

// bestLeg searches every (from, to) stop pair and returns the ride with the
// least wait plus travel. Pairs may be looked up in parallel, but the winner
// is reduced in pair order with a strict comparison so it matches a
// sequential search exactly.
func (f *Finder) bestLeg(ctx context.Context, q legQuery) (*DirectRoute, error) {
	type pair struct{ from, to gtfs.Stop }
	pairs := make([]pair, 0, len(q.from)*len(q.to))
	for _, a := range q.from {
		for _, b := range q.to {
			pairs = append(pairs, pair{from: a, to: b})
		}
	}

	results := make([]*DirectRoute, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.concurrency)
	for i, pr := range pairs {
		g.Go(func() error {
			r, err := f.bestForPair(gctx, pr.from, pr.to, q)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best *DirectRoute
	for _, r := range results {
		if r != nil && (best == nil || r.Total() < best.Total()) {
			best = r
		}
	}
	if best != nil {
		f.nameRoute(ctx, best)
	}
	return best, nil
}

func (f *Finder) bestForPair(ctx context.Context, from, to gtfs.Stop, q legQuery) (*DirectRoute, error) {
	refs, err := f.index.RoutesBetweenStops(ctx, from.StopID, to.StopID)
	if err != nil {
		return nil, fmt.Errorf("routes %s -> %s: %w", from.StopID, to.StopID, err)
	}
	if len(refs) == 0 {
		return nil, nil
	}
	deps, err := f.index.NextDepartures(ctx, gtfs.DepartureQuery{
		StopID:       from.StopID,
		AfterMinutes: q.at,
		RouteIDs:     routeIDs(refs),
		TripIDs:      tripIDs(refs),
		ServiceIDs:   q.prefs.serviceFilter(),
		Limit:        q.departures,
	})
	if err != nil {
		return nil, fmt.Errorf("departures at %s: %w", from.StopID, err)
	}

	var best *DirectRoute
	for _, dep := range deps {
		depMin, err := gtfs.ParseClock(dep.DepartureTime)
		if err != nil {
			log.Printf("skip departure %s at %s: %v", dep.TripID, dep.StopID, err)
			continue
		}
		wait := max(0, depMin-q.at)
		travel, arrival := f.rideTime(ctx, dep, from, to)
		if best != nil && wait+travel >= best.Total() {
			continue
		}
		d, fs, ts := dep, from, to
		best = &DirectRoute{
			Mode:              ModeTransit,
			FromStop:          &fs,
			ToStop:            &ts,
			Departure:         &d,
			WaitTime:          wait,
			TravelTime:        travel,
			ActualArrivalTime: arrival,
		}
	}
	return best, nil
}

// rideTime prefers the timetabled ride and falls back to a distance
// estimate at the policy transit speed.
func (f *Finder) rideTime(ctx context.Context, dep gtfs.Departure, from, to gtfs.Stop) (int, string) {
	tt, err := f.index.TripTravelTime(ctx, dep.TripID, from.StopID, to.StopID, dep.DepartureTime)
	if err != nil {
		log.Printf("trip %s travel time %s -> %s: %v", dep.TripID, from.StopID, to.StopID, err)
	}
	if err == nil && tt != nil && tt.TravelTime >= 0 {
		return tt.TravelTime, tt.ArrivalTime
	}
	f.metrics.TripTimeEstimated()
	km := geo.DistanceKm(from.StopLat, from.StopLon, to.StopLat, to.StopLon)
	return int(math.Ceil(km / f.policy.TransitSpeedKmh * 60)), ""
}

func (f *Finder) nameRoute(ctx context.Context, r *DirectRoute) {
	if r.Departure == nil || r.Departure.RouteID == "" {
		return
	}
	info, err := f.index.RouteByID(ctx, r.Departure.RouteID)
	if err != nil {
		log.Printf("route %s lookup: %v", r.Departure.RouteID, err)
		return
	}
	if info != nil {
		r.RouteName = info.RouteLongName
		r.RouteNumber = info.RouteShortName
	}
}

func (f *Finder) debugf(format string, args ...any) {
	if f.logSearch {
		log.Printf(format, args...)
	}
}

func routeIDs(refs []gtfs.RouteRef) []string {
	seen := make(map[string]bool, len(refs))
	var ids []string
	for _, r := range refs {
		if !seen[r.RouteID] {
			seen[r.RouteID] = true
			ids = append(ids, r.RouteID)
		}
	}
	return ids
}

// tripIDs keeps the search on trips that reach the destination after the
// origin; a route usually runs both ways.
func tripIDs(refs []gtfs.RouteRef) []string {
	seen := make(map[string]bool, len(refs))
	var ids []string
	for _, r := range refs {
		if !seen[r.TripID] {
			seen[r.TripID] = true
			ids = append(ids, r.TripID)
		}
	}
	return ids
}

func head(stops []gtfs.Stop, n int) []gtfs.Stop {
	if n >= 0 && len(stops) > n {
		return stops[:n]
	}
	return stops
}

func label(l geo.Location) string {
	if l.Name != "" {
		return l.Name
	}
	return fmt.Sprintf("%.4f,%.4f", l.Lat, l.Lon)
}
