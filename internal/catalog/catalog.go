package catalog

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"tour-planner/internal/geo"
)

//go:embed spots.yml
var defaultSpots []byte

// DefaultRating stands in for spots the provider has not rated.
const DefaultRating = 3.0

// Spot is a candidate point of interest.
type Spot struct {
	ID       string   `json:"id" yaml:"id" validate:"required"`
	Name     string   `json:"name" yaml:"name" validate:"required"`
	Lat      float64  `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lon      float64  `json:"lon" yaml:"lon" validate:"gte=-180,lte=180"`
	Rating   float64  `json:"rating" yaml:"rating" validate:"gte=0,lte=5"`
	Vicinity string   `json:"vicinity,omitempty" yaml:"vicinity"`
	Theme    string   `json:"theme,omitempty" yaml:"theme"`
	Types    []string `json:"types,omitempty" yaml:"types"`
}

func (s Spot) Location() geo.Location {
	return geo.Location{Lat: s.Lat, Lon: s.Lon, Name: s.Name}
}

// Searcher finds candidate spots for a theme around a point.
type Searcher interface {
	SearchByTheme(ctx context.Context, lat, lon float64, theme string, radiusMeters float64) ([]Spot, error)
}

// themeAliases maps the labels used by the web client to catalog themes.
var themeAliases = map[string]string{
	"歴史":     "history",
	"自然":     "nature",
	"グルメ":    "food",
	"gourmet":  "food",
	"文化":     "culture",
	"ショッピング": "shopping",
	"エンタメ":   "entertainment",
}

// NormalizeTheme lower-cases a theme and resolves known aliases.
func NormalizeTheme(theme string) string {
	t := strings.ToLower(strings.TrimSpace(theme))
	if alias, ok := themeAliases[t]; ok {
		return alias
	}
	return t
}

// Static is an in-memory catalog loaded from YAML.
type Static struct {
	spots []Spot
}

type spotFile struct {
	Spots []Spot `yaml:"spots"`
}

// Parse decodes and validates a YAML spot list. Spot IDs must be unique.
func Parse(data []byte) (*Static, error) {
	var f spotFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse spots: %w", err)
	}
	v := validator.New()
	seen := make(map[string]bool, len(f.Spots))
	for i, s := range f.Spots {
		if err := v.Struct(s); err != nil {
			return nil, fmt.Errorf("spot %d (%s): %w", i, s.ID, err)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate spot id %q", s.ID)
		}
		seen[s.ID] = true
		f.Spots[i].Theme = NormalizeTheme(s.Theme)
	}
	return &Static{spots: f.Spots}, nil
}

func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spots %s: %w", path, err)
	}
	return Parse(data)
}

// Default returns the bundled Sendai catalog.
func Default() (*Static, error) {
	return Parse(defaultSpots)
}

func (c *Static) Len() int { return len(c.spots) }

// SearchByTheme returns spots of the theme within radiusMeters, in catalog
// order. An empty theme matches every spot.
func (c *Static) SearchByTheme(_ context.Context, lat, lon float64, theme string, radiusMeters float64) ([]Spot, error) {
	theme = NormalizeTheme(theme)
	radiusKm := radiusMeters / 1000
	var out []Spot
	for _, s := range c.spots {
		if theme != "" && s.Theme != theme {
			continue
		}
		if geo.DistanceKm(lat, lon, s.Lat, s.Lon) > radiusKm {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Score weighs rating (60%) against closeness within 10 km (40%).
func Score(s Spot, lat, lon float64) float64 {
	rating := s.Rating
	if rating == 0 {
		rating = DefaultRating
	}
	km := geo.DistanceKm(lat, lon, s.Lat, s.Lon)
	return rating/5*0.6 + math.Max(0, 10-km)/10*0.4
}

// SelectNearOrigin ranks spots by Score and keeps the best max. Equal
// scores keep their input order.
func SelectNearOrigin(spots []Spot, lat, lon float64, max int) []Spot {
	type scored struct {
		spot  Spot
		score float64
	}
	ranked := make([]scored, len(spots))
	for i, s := range spots {
		ranked[i] = scored{spot: s, score: Score(s, lat, lon)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if max >= 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	out := make([]Spot, len(ranked))
	for i, r := range ranked {
		out[i] = r.spot
	}
	return out
}
