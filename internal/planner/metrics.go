package planner

import "time"

// Route kinds reported to Metrics.RouteChosen.
const (
	KindWalking  = "walking"
	KindTransit  = "transit"
	KindTransfer = "transfer"
)

// Reasons reported to Metrics.WalkingFallback.
const (
	FallbackNoStops      = "no_stops"
	FallbackNoTransit    = "no_transit"
	FallbackWalkFaster   = "walk_faster"
	FallbackLongWait     = "long_wait"
	FallbackIndexError   = "index_error"
	FallbackNoService    = "no_service"
	FallbackSlowTransfer = "slow_transfer"
)

// Schedule outcomes reported to Metrics.ScheduleBuilt.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeUnreachable = "unreachable"
	OutcomeError       = "error"
)

// Metrics receives planner events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RouteChosen(kind string)
	WalkingFallback(reason string)
	TripTimeEstimated()
	ScheduleBuilt(d time.Duration, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) RouteChosen(string)                   {}
func (noopMetrics) WalkingFallback(string)               {}
func (noopMetrics) TripTimeEstimated()                   {}
func (noopMetrics) ScheduleBuilt(time.Duration, string) {}

func routeKind(r Route) string {
	switch r := r.(type) {
	case *TransferRoute:
		return KindTransfer
	case *DirectRoute:
		if r.Mode == ModeWalking {
			return KindWalking
		}
	}
	return KindTransit
}
