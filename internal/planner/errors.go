package planner

import (
	"errors"

	"tour-planner/internal/gtfs"
)

var (
	ErrEmptyInput       = errors.New("no candidate spots")
	ErrNoReachableSpots = errors.New("no spot is reachable from the start location")
	ErrInvalidClock     = gtfs.ErrInvalidClock
)
