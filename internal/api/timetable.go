package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"tour-planner/internal/catalog"
	"tour-planner/internal/gtfs"
)

const (
	defaultNearbyRadiusKm   = 0.5
	defaultSpotRadiusMeters = 5000
	maxDepartureLimit       = 100
)

// NearbyStops handles GET /api/gtfs/stops/nearby?lat&lon&radius
// radius is in kilometers.
func (s *Server) NearbyStops(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordinates(w, r)
	if !ok {
		return
	}
	radius, ok := floatParam(w, r, "radius", defaultNearbyRadiusKm)
	if !ok {
		return
	}
	stops, err := s.index.FindNearbyStops(r.Context(), lat, lon, radius)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to find nearby stops", internal(err))
		return
	}
	if stops == nil {
		stops = []gtfs.Stop{}
	}
	writeData(w, stops)
}

// GetStop handles GET /api/gtfs/stops/{stopId}
func (s *Server) GetStop(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopId")
	stop, err := s.index.StopByID(r.Context(), stopID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch stop", internal(err))
		return
	}
	if stop == nil {
		writeError(w, http.StatusNotFound, "Stop not found", map[string]interface{}{"stopId": stopID})
		return
	}
	writeData(w, stop)
}

// Departures handles GET /api/gtfs/departures/{stopId}?afterTime&limit
func (s *Server) Departures(w http.ResponseWriter, r *http.Request) {
	stopID := chi.URLParam(r, "stopId")
	q := r.URL.Query()

	after := q.Get("afterTime")
	if after == "" {
		after = "00:00"
	}
	afterMin, err := gtfs.ParseClock(after)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid afterTime", map[string]interface{}{"afterTime": after})
		return
	}
	limit := 10
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxDepartureLimit {
			writeError(w, http.StatusBadRequest, "Invalid limit", map[string]interface{}{"limit": v})
			return
		}
		limit = n
	}

	deps, err := s.index.NextDepartures(r.Context(), gtfs.DepartureQuery{
		StopID:       stopID,
		AfterMinutes: afterMin,
		Limit:        limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch departures", internal(err))
		return
	}
	if deps == nil {
		deps = []gtfs.Departure{}
	}
	writeData(w, deps)
}

// GetRoute handles GET /api/gtfs/routes/{routeId}
func (s *Server) GetRoute(w http.ResponseWriter, r *http.Request) {
	routeID := chi.URLParam(r, "routeId")
	route, err := s.index.RouteByID(r.Context(), routeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch route", internal(err))
		return
	}
	if route == nil {
		writeError(w, http.StatusNotFound, "Route not found", map[string]interface{}{"routeId": routeID})
		return
	}
	writeData(w, route)
}

// SearchSpots handles GET /api/spots/search?lat&lon&theme&radius
// radius is in meters.
func (s *Server) SearchSpots(w http.ResponseWriter, r *http.Request) {
	lat, lon, ok := coordinates(w, r)
	if !ok {
		return
	}
	theme := r.URL.Query().Get("theme")
	if theme == "" {
		writeError(w, http.StatusBadRequest, "Theme is required", nil)
		return
	}
	radius, ok := floatParam(w, r, "radius", defaultSpotRadiusMeters)
	if !ok {
		return
	}
	spots, err := s.spots.SearchByTheme(r.Context(), lat, lon, theme, radius)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to search spots", internal(err))
		return
	}
	if spots == nil {
		spots = []catalog.Spot{}
	}
	writeData(w, spots)
}

// Health handles GET /api/health
// Reports whether the timetable backend answers.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.index.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "error",
			"database":  "disconnected",
			"timestamp": time.Now().UTC(),
			"error":     err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"database":  "connected",
		"timestamp": time.Now().UTC(),
	})
}

func coordinates(w http.ResponseWriter, r *http.Request) (lat, lon float64, ok bool) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lon") == "" {
		writeError(w, http.StatusBadRequest, "Latitude and longitude are required", nil)
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lon, err2 := strconv.ParseFloat(q.Get("lon"), 64)
	if err1 != nil || err2 != nil || lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		writeError(w, http.StatusBadRequest, "Invalid latitude or longitude", map[string]interface{}{
			"lat": q.Get("lat"),
			"lon": q.Get("lon"),
		})
		return 0, 0, false
	}
	return lat, lon, true
}

func floatParam(w http.ResponseWriter, r *http.Request, name string, def float64) (float64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid "+name, map[string]interface{}{name: v})
		return 0, false
	}
	return f, true
}
