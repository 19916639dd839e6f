package metrics

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	HTTPRequests *prometheus.CounterVec   // method, route, code
	HTTPDuration *prometheus.HistogramVec // route

	RoutesChosen      *prometheus.CounterVec // kind: walking|transit|transfer
	WalkingFallbacks  *prometheus.CounterVec // reason
	TripTimeEstimates prometheus.Counter

	SchedulesBuilt   *prometheus.CounterVec // outcome
	ScheduleDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge
	PublishDuration prometheus.Histogram

	DBSwitches *prometheus.CounterVec // reason label: update|ping_failure

	TransitBackend    *prometheus.GaugeVec // backend label, always 1
	SearchConcurrency prometheus.Gauge
	MaxReachMinutes   prometheus.Gauge
}

func NewCollector(backend string, searchConcurrency, maxReachMinutes int) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_http_requests_total",
			Help: "HTTP requests served.",
		}, []string{"method", "route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planner_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"route"}),
		RoutesChosen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_routes_chosen_total",
			Help: "Route searches by the kind of route returned.",
		}, []string{"kind"}),
		WalkingFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_walking_fallbacks_total",
			Help: "Route searches that ended in walking, by reason.",
		}, []string{"reason"}),
		TripTimeEstimates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_trip_time_estimates_total",
			Help: "Rides timed by distance because timetable data was missing.",
		}),
		SchedulesBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_schedules_total",
			Help: "Itinerary builds by outcome.",
		}, []string{"outcome"}),
		ScheduleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_schedule_duration_seconds",
			Help:    "Time to build one itinerary.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_nats_published_total",
			Help: "Total NATS messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "planner_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		PublishDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "planner_publish_duration_seconds",
			Help:    "Duration to marshal and publish a NATS message.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 15),
		}),
		DBSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "planner_db_switches_total",
			Help: "Number of timetable database switches.",
		}, []string{"reason"}),
		TransitBackend: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "planner_transit_backend",
			Help: "Timetable backend in use.",
		}, []string{"backend"}),
		SearchConcurrency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_search_concurrency",
			Help: "Stop pairs looked up in parallel per route search.",
		}),
		MaxReachMinutes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "planner_max_reach_minutes",
			Help: "Reachability limit from the start location in minutes.",
		}),
	}

	// Register
	reg.MustRegister(
		c.HTTPRequests, c.HTTPDuration,
		c.RoutesChosen, c.WalkingFallbacks, c.TripTimeEstimates,
		c.SchedulesBuilt, c.ScheduleDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected, c.PublishDuration,
		c.DBSwitches,
		c.TransitBackend, c.SearchConcurrency, c.MaxReachMinutes,
	)

	// Set static gauges
	c.TransitBackend.WithLabelValues(backend).Set(1)
	c.SearchConcurrency.Set(float64(searchConcurrency))
	c.MaxReachMinutes.Set(float64(maxReachMinutes))

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// Route search and itinerary events.

func (c *Collector) RouteChosen(kind string)       { c.RoutesChosen.WithLabelValues(kind).Inc() }
func (c *Collector) WalkingFallback(reason string) { c.WalkingFallbacks.WithLabelValues(reason).Inc() }
func (c *Collector) TripTimeEstimated()            { c.TripTimeEstimates.Inc() }

func (c *Collector) ScheduleBuilt(d time.Duration, outcome string) {
	c.SchedulesBuilt.WithLabelValues(outcome).Inc()
	c.ScheduleDuration.Observe(d.Seconds())
}

// Publisher events.

func (c *Collector) NATSPublishedInc()              { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc()             { c.NATSPublishErrs.Inc() }
func (c *Collector) PublishObserve(d time.Duration) { c.PublishDuration.Observe(d.Seconds()) }
func (c *Collector) NATSSetConnected(b bool) {
	if b {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) DBSwitched(reason string) { c.DBSwitches.WithLabelValues(reason).Inc() }

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path.
func (c *Collector) ObserveRequest(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
