package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"tour-planner/internal/catalog"
	"tour-planner/internal/planner"
	"tour-planner/internal/publisher"
	"tour-planner/internal/transit"
)

// ItineraryPublisher announces generated itineraries.
type ItineraryPublisher interface {
	PublishItinerary(msg publisher.ItineraryMessage) error
}

// RequestMetrics records served requests by matched route pattern.
type RequestMetrics interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

type Options struct {
	CORSOrigin string
	Publisher  ItineraryPublisher
	Metrics    RequestMetrics
	// Location is the time zone of service dates.
	Location *time.Location
	// FilterServiceDay restricts requests without a serviceDate to today's
	// services.
	FilterServiceDay bool
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	builder  *planner.Builder
	index    transit.Index
	spots    catalog.Searcher
	opts     Options
	validate *validator.Validate
	now      func() time.Time
}

func NewServer(b *planner.Builder, spots catalog.Searcher, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Server{
		builder:  b,
		index:    b.Finder().Index(),
		spots:    spots,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Router wires every endpoint under /api.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(accessLog(s.opts.Metrics))
	origins := []string{"*"}
	if s.opts.CORSOrigin != "" {
		origins = []string{s.opts.CORSOrigin}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/api/health", s.Health)

	r.Route("/api/scheduler", func(r chi.Router) {
		r.Post("/generate", s.Generate)
		r.Post("/optimize", s.Optimize)
	})

	r.Route("/api/gtfs", func(r chi.Router) {
		r.Get("/stops/nearby", s.NearbyStops)
		r.Get("/stops/{stopId}", s.GetStop)
		r.Get("/departures/{stopId}", s.Departures)
		r.Get("/routes/{routeId}", s.GetRoute)
	})

	r.Get("/api/spots/search", s.SearchSpots)
	return r
}

// Envelope wraps every successful response.
type Envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string, details map[string]interface{}) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

func internal(err error) map[string]interface{} {
	return map[string]interface{}{"internal": err.Error()}
}
