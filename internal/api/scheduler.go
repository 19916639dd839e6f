package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"tour-planner/internal/catalog"
	"tour-planner/internal/geo"
	"tour-planner/internal/gtfs"
	"tour-planner/internal/planner"
	"tour-planner/internal/publisher"
)

const (
	// generateSearchRadiusMeters bounds the catalog search around the start.
	generateSearchRadiusMeters = 10000
	defaultMaxSpots            = 5
	defaultOptimizeStart       = "09:00"
)

type LocationInput struct {
	Lat float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"required,gte=-180,lte=180"`
}

// GenerateRequest is the body of POST /api/scheduler/generate.
type GenerateRequest struct {
	Location      *LocationInput      `json:"location" validate:"required"`
	Theme         string              `json:"theme" validate:"required"`
	StartTime     string              `json:"startTime" validate:"required"`
	VisitDuration int                 `json:"visitDuration" validate:"gte=0,lte=720"`
	Preferences   planner.Preferences `json:"preferences"`
	MaxSpots      int                 `json:"maxSpots" validate:"gte=0,lte=20"`
	ServiceDate   string              `json:"serviceDate"`
}

// OptimizeRequest is the body of POST /api/scheduler/optimize.
type OptimizeRequest struct {
	Spots         []catalog.Spot      `json:"spots" validate:"required,min=1,dive"`
	StartTime     string              `json:"startTime"`
	VisitDuration int                 `json:"visitDuration" validate:"gte=0,lte=720"`
	Preferences   planner.Preferences `json:"preferences"`
	ServiceDate   string              `json:"serviceDate"`
}

// ScheduleResponse is the data of both scheduler endpoints.
type ScheduleResponse struct {
	ID        string             `json:"id"`
	Itinerary *planner.Itinerary `json:"itinerary"`
}

// Generate handles POST /api/scheduler/generate
// Searches the catalog around the start, keeps the best spots and plans a
// round trip through them.
func (s *Server) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if !s.decode(w, r, &req) {
		return
	}
	day, ok := s.serviceDay(w, req.ServiceDate)
	if !ok {
		return
	}
	ctx := r.Context()
	lat, lon := req.Location.Lat, req.Location.Lon

	found, err := s.spots.SearchByTheme(ctx, lat, lon, req.Theme, generateSearchRadiusMeters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to search spots", internal(err))
		return
	}
	limit := req.MaxSpots
	if limit == 0 {
		limit = defaultMaxSpots
	}
	selected := catalog.SelectNearOrigin(found, lat, lon, limit)
	log.Printf("generate theme=%s found=%d selected=%d", catalog.NormalizeTheme(req.Theme), len(found), len(selected))
	if len(selected) == 0 {
		writeError(w, http.StatusNotFound, "No spots found for the given theme and location", map[string]interface{}{
			"theme": req.Theme,
		})
		return
	}

	it, err := s.builder.GenerateSchedule(ctx, planner.Request{
		Spots:         selected,
		StartTime:     req.StartTime,
		VisitDuration: req.VisitDuration,
		Preferences:   req.Preferences,
		StartLocation: &geo.Location{Lat: lat, Lon: lon, Name: "Start"},
		ServiceDate:   day,
	})
	if err != nil {
		writePlanError(w, err)
		return
	}
	s.respondSchedule(w, publisher.KindGenerate, catalog.NormalizeTheme(req.Theme), it)
}

// Optimize handles POST /api/scheduler/optimize
// Plans the given spots in order without a start location.
func (s *Server) Optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	day, ok := s.serviceDay(w, req.ServiceDate)
	if !ok {
		return
	}
	start := req.StartTime
	if start == "" {
		start = defaultOptimizeStart
	}
	it, err := s.builder.GenerateSchedule(r.Context(), planner.Request{
		Spots:         req.Spots,
		StartTime:     start,
		VisitDuration: req.VisitDuration,
		Preferences:   req.Preferences,
		ServiceDate:   day,
	})
	if err != nil {
		writePlanError(w, err)
		return
	}
	s.respondSchedule(w, publisher.KindOptimize, "", it)
}

func (s *Server) respondSchedule(w http.ResponseWriter, kind, theme string, it *planner.Itinerary) {
	msg := publisher.NewItineraryMessage(kind, theme, it)
	if s.opts.Publisher != nil {
		if err := s.opts.Publisher.PublishItinerary(msg); err != nil {
			log.Printf("publish itinerary %s: %v", msg.ID, err)
		}
	}
	writeData(w, ScheduleResponse{ID: msg.ID, Itinerary: it})
}

// decode reads and validates a JSON body, answering 400 itself on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", internal(err))
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		details := map[string]interface{}{}
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				details[fe.Namespace()] = fe.Tag()
			}
		} else {
			details["internal"] = err.Error()
		}
		writeError(w, http.StatusBadRequest, "Invalid request", details)
		return false
	}
	return true
}

// serviceDay resolves the day whose services a request may ride. Nil means
// no filter.
func (s *Server) serviceDay(w http.ResponseWriter, raw string) (*time.Time, bool) {
	if raw == "" {
		if !s.opts.FilterServiceDay {
			return nil, true
		}
		today := s.now().In(s.opts.Location)
		return &today, true
	}
	day, err := gtfs.ParseServiceDate(raw, s.opts.Location)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid serviceDate", map[string]interface{}{"serviceDate": raw})
		return nil, false
	}
	return &day, true
}

func writePlanError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, planner.ErrEmptyInput), errors.Is(err, planner.ErrInvalidClock):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, planner.ErrNoReachableSpots):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), nil)
	default:
		log.Printf("generate schedule: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to generate schedule", internal(err))
	}
}
