package gtfs

import (
	"errors"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"00:00", 0},
		{"09:05", 545},
		{"23:59", 1439},
		{"25:30", 1530},
		{"08:15:45", 495},
		{" 10:00 ", 600},
	}
	for _, tc := range tests {
		got, err := ParseClock(tc.in)
		if err != nil {
			t.Fatalf("ParseClock(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseClockRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "9", "ab:cd", "10:xx", "-1:00", "10:00:00:00", "10:00:zz"} {
		if _, err := ParseClock(in); !errors.Is(err, ErrInvalidClock) {
			t.Errorf("ParseClock(%q) err = %v, want ErrInvalidClock", in, err)
		}
	}
}

func TestFormatClockDoesNotWrap(t *testing.T) {
	tests := map[int]string{
		0:    "00:00",
		545:  "09:05",
		1439: "23:59",
		1530: "25:30",
	}
	for in, want := range tests {
		if got := FormatClock(in); got != want {
			t.Errorf("FormatClock(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestClockRoundTrip(t *testing.T) {
	for m := 0; m < 30*60; m += 7 {
		got, err := ParseClock(FormatClock(m))
		if err != nil || got != m {
			t.Fatalf("round trip %d -> %q -> %d (%v)", m, FormatClock(m), got, err)
		}
	}
}

func TestParseDaySeconds(t *testing.T) {
	tests := map[string]int{
		"":         0,
		"garbage":  0,
		"08:00:30": 8*3600 + 30,
		"24:10:00": 24*3600 + 600,
		"07:45":    7*3600 + 45*60,
	}
	for in, want := range tests {
		if got := ParseDaySeconds(in); got != want {
			t.Errorf("ParseDaySeconds(%q) = %d, want %d", in, got, want)
		}
	}
	if got := FormatDaySeconds(25*3600 + 61); got != "25:01:01" {
		t.Errorf("FormatDaySeconds = %q", got)
	}
}

func TestResolveServices(t *testing.T) {
	// 2024-06-03 is a Monday
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	calendars := []Calendar{
		{ServiceID: "weekday", Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true, StartDate: 20240101, EndDate: 20241231},
		{ServiceID: "weekend", Saturday: true, Sunday: true, StartDate: 20240101, EndDate: 20241231},
		{ServiceID: "expired", Monday: true, StartDate: 20230101, EndDate: 20231231},
		{ServiceID: "holiday-cut", Monday: true, StartDate: 20240101, EndDate: 20241231},
	}
	exceptions := []CalendarDate{
		{ServiceID: "special", Date: 20240603, ExceptionType: ExceptionAdded},
		{ServiceID: "holiday-cut", Date: 20240603, ExceptionType: ExceptionRemoved},
		{ServiceID: "weekend", Date: 20240604, ExceptionType: ExceptionAdded},
	}

	got := ResolveServices(day, calendars, exceptions)
	want := []string{"weekday", "special"}
	if len(got) != len(want) {
		t.Fatalf("ResolveServices = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ResolveServices = %v, want %v", got, want)
		}
	}
}

func TestParseServiceDate(t *testing.T) {
	for _, in := range []string{"2024-06-03", "20240603"} {
		d, err := ParseServiceDate(in, time.UTC)
		if err != nil {
			t.Fatalf("ParseServiceDate(%q): %v", in, err)
		}
		if DateNumber(d) != 20240603 {
			t.Errorf("DateNumber = %d", DateNumber(d))
		}
	}
	if _, err := ParseServiceDate("June 3", time.UTC); err == nil {
		t.Error("expected error for malformed date")
	}
}
