package planner

import "tour-planner/internal/geo"

// Hub is a named interchange tried when no direct ride exists.
type Hub struct {
	Name string  `json:"name" yaml:"name" validate:"required"`
	Lat  float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
}

func (h Hub) Location() geo.Location {
	return geo.Location{Lat: h.Lat, Lon: h.Lon, Name: h.Name}
}

// WalkingThresholds decide when walking beats a found transit option.
// Minutes unless noted.
type WalkingThresholds struct {
	ShortWalk     int     `yaml:"short_walk_minutes" validate:"gte=0"`
	LongWait      int     `yaml:"long_wait_minutes" validate:"gte=0"`
	TolerableWalk int     `yaml:"tolerable_walk_minutes" validate:"gte=0"`
	TransferRatio float64 `yaml:"transfer_ratio" validate:"gt=0"`
	LongTransfer  int     `yaml:"long_transfer_minutes" validate:"gte=0"`
}

// Policy holds every tunable of the route search and the schedule builder.
type Policy struct {
	NearbyRadiusKm      float64 `yaml:"nearby_radius_km" validate:"gt=0"`
	CandidateStops      int     `yaml:"candidate_stops" validate:"gte=1"`
	CandidateDepartures int     `yaml:"candidate_departures" validate:"gte=1"`

	HubRadiusKm                 float64 `yaml:"hub_radius_km" validate:"gt=0"`
	TransferCandidateStops      int     `yaml:"transfer_candidate_stops" validate:"gte=1"`
	TransferCandidateDepartures int     `yaml:"transfer_candidate_departures" validate:"gte=1"`
	TransferPenaltyMinutes      int     `yaml:"transfer_penalty_minutes" validate:"gte=0"`

	WalkingSpeedKmh float64 `yaml:"walking_speed_kmh" validate:"gt=0"`
	TransitSpeedKmh float64 `yaml:"transit_speed_kmh" validate:"gt=0"`

	MaxReachMinutes     int `yaml:"max_reach_minutes" validate:"gt=0"`
	DefaultVisitMinutes int `yaml:"default_visit_minutes" validate:"gt=0"`

	Walking WalkingThresholds `yaml:"walking"`
	Hubs    []Hub             `yaml:"hubs" validate:"dive"`
}

// DefaultPolicy returns the stock constants with no transfer hubs.
func DefaultPolicy() Policy {
	return Policy{
		NearbyRadiusKm:              1.0,
		CandidateStops:              5,
		CandidateDepartures:         5,
		HubRadiusKm:                 0.3,
		TransferCandidateStops:      3,
		TransferCandidateDepartures: 3,
		TransferPenaltyMinutes:      5,
		WalkingSpeedKmh:             4,
		TransitSpeedKmh:             30,
		MaxReachMinutes:             120,
		DefaultVisitMinutes:         60,
		Walking: WalkingThresholds{
			ShortWalk:     30,
			LongWait:      20,
			TolerableWalk: 40,
			TransferRatio: 1.5,
			LongTransfer:  60,
		},
	}
}
