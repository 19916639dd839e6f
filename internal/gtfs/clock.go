package gtfs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidClock is returned for clock strings that are not HH:MM[:SS].
var ErrInvalidClock = errors.New("invalid clock time")

// ParseClock converts "HH:MM" or "HH:MM:SS" to minutes since midnight.
// Seconds are dropped and hours past 23 are kept, so "25:30" is 1530.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	if len(parts) == 3 {
		if sec, err := strconv.Atoi(parts[2]); err != nil || sec < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM" without wrapping at
// 24 hours: 1530 is "25:30".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// ParseDaySeconds parses HH:MM:SS possibly with hours >= 24.
// Malformed input yields 0.
func ParseDaySeconds(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	sec := 0
	if len(parts) > 2 {
		sec, _ = strconv.Atoi(parts[2])
	}
	total := h*3600 + m*60 + sec
	if total < 0 {
		total = 0
	}
	return total
}

// FormatDaySeconds renders seconds since midnight as "HH:MM:SS".
func FormatDaySeconds(sec int) string {
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

// DateNumber returns the GTFS YYYYMMDD integer for the day.
func DateNumber(day time.Time) int {
	y, m, d := day.Date()
	return y*10000 + int(m)*100 + d
}

// ParseServiceDate accepts "2006-01-02" or "20060102" in loc.
func ParseServiceDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.TrimSpace(s)
	layout := "2006-01-02"
	if !strings.Contains(s, "-") {
		layout = "20060102"
	}
	t, err := time.ParseInLocation(layout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid service date %q: %w", s, err)
	}
	return t, nil
}
