package transit

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"tour-planner/internal/gtfs"
)

// Swappable forwards every call to the current Index, which can be replaced
// while requests are in flight. Used when a newer timetable database
// becomes available.
type Swappable struct {
	cur atomic.Pointer[indexBox]
}

type indexBox struct {
	idx     Index
	active  atomic.Int64 // calls running against idx
	retired atomic.Bool
	once    sync.Once
}

func (b *indexBox) release() {
	if b.active.Add(-1) == 0 && b.retired.Load() {
		b.close()
	}
}

func (b *indexBox) close() {
	b.once.Do(func() {
		c, ok := b.idx.(io.Closer)
		if !ok {
			return
		}
		if err := c.Close(); err != nil {
			log.Printf("close retired index: %v", err)
		}
	})
}

var _ Index = (*Swappable)(nil)

func NewSwappable(idx Index) *Swappable {
	s := &Swappable{}
	s.cur.Store(&indexBox{idx: idx})
	return s
}

// Current returns the Index calls are forwarded to.
func (s *Swappable) Current() Index { return s.cur.Load().idx }

// Swap installs idx and returns the previous Index so the caller can close it.
func (s *Swappable) Swap(idx Index) Index {
	return s.cur.Swap(&indexBox{idx: idx}).idx
}

// Replace installs idx and closes the previous Index, when it is an
// io.Closer, as soon as the calls already running against it return.
func (s *Swappable) Replace(idx Index) {
	old := s.cur.Swap(&indexBox{idx: idx})
	old.retired.Store(true)
	if old.active.Load() == 0 {
		old.close()
	}
}

// acquire pins the current Index for one call; release the box after.
func (s *Swappable) acquire() *indexBox {
	for {
		b := s.cur.Load()
		b.active.Add(1)
		if s.cur.Load() == b {
			return b
		}
		b.release()
	}
}

func (s *Swappable) FindNearbyStops(ctx context.Context, lat, lon, radiusKm float64) ([]gtfs.Stop, error) {
	b := s.acquire()
	defer b.release()
	return b.idx.FindNearbyStops(ctx, lat, lon, radiusKm)
}

func (s *Swappable) RoutesBetweenStops(ctx context.Context, fromStopID, toStopID string) ([]gtfs.RouteRef, error) {
	b := s.acquire()
	defer b.release()
	return b.idx.RoutesBetweenStops(ctx, fromStopID, toStopID)
}

func (s *Swappable) NextDepartures(ctx context.Context, q gtfs.DepartureQuery) ([]gtfs.Departure, error) {
	b := s.acquire()
	defer b.release()
	return b.idx.NextDepartures(ctx, q)
}

func (s *Swappable) TripTravelTime(ctx context.Context, tripID, fromStopID, toStopID, departureTime string) (*gtfs.TripTravel, error) {
	b := s.acquire()
	defer b.release()
	return b.idx.TripTravelTime(ctx, tripID, fromStopID, toStopID, departureTime)
}

func (s *Swappable) RouteByID(ctx context.Context, routeID string) (*gtfs.Route, error) {
	b := s.acquire()
	defer b.release()
	return b.idx.RouteByID(ctx, routeID)
}

func (s *Swappable) StopByID(ctx context.Context, stopID string) (*gtfs.Stop, error) {
	b := s.acquire()
	defer b.release()
	return b.idx.StopByID(ctx, stopID)
}

func (s *Swappable) ActiveServices(ctx context.Context, day time.Time) ([]string, error) {
	b := s.acquire()
	defer b.release()
	return b.idx.ActiveServices(ctx, day)
}

func (s *Swappable) Ping(ctx context.Context) error {
	b := s.acquire()
	defer b.release()
	return b.idx.Ping(ctx)
}
