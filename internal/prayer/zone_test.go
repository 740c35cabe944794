package prayer

import (
	"errors"
	"fmt"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantH   int
		wantM   int
		wantErr bool
	}{
		{"simple HH:MM", "15:02", 15, 2, false},
		{"midnight", "00:00", 0, 0, false},
		{"single digit hour", "5:07", 5, 7, false},
		{"with timezone suffix", "15:02 (BST)", 15, 2, false},
		{"with spaces and suffix", "  05:17  (EET) ", 5, 17, false},
		{"suffix without space", "05:17(+03)", 5, 17, false},
		{"invalid format", "bad", 0, 0, true},
		{"empty string", "", 0, 0, true},
		{"missing minute", "15:", 0, 0, true},
		{"non-numeric", "ab:cd", 0, 0, true},
		{"hour out of range", "24:00", 0, 0, true},
		{"minute out of range", "12:60", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, m, err := ParseClock(tt.raw)
			if tt.wantErr {
				var fe *FormatError
				if !errors.As(err, &fe) {
					t.Fatalf("ParseClock(%q) expected FormatError, got %v", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) unexpected error: %v", tt.raw, err)
			}
			if h != tt.wantH || m != tt.wantM {
				t.Errorf("ParseClock(%q) = %02d:%02d, want %02d:%02d", tt.raw, h, m, tt.wantH, tt.wantM)
			}
		})
	}
}

func TestResolveZonedTimestamp_Errors(t *testing.T) {
	tests := []struct {
		name, dateKey, raw, tz string
	}{
		{"bad time", "2024-03-10", "5 o'clock", "Asia/Baghdad"},
		{"bad date", "10-03-2024", "05:00", "Asia/Baghdad"},
		{"impossible date", "2024-02-30", "05:00", "Asia/Baghdad"},
		{"unknown zone", "2024-03-10", "05:00", "Mars/Olympus"},
		{"empty zone", "2024-03-10", "05:00", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveZonedTimestamp(tt.dateKey, tt.raw, tt.tz)
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected FormatError, got %v", err)
			}
		})
	}
}

func TestResolveZonedTimestamp_UTC(t *testing.T) {
	got, err := ResolveZonedTimestamp("2026-02-28", "15:02", "UTC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 2, 28, 15, 2, 0, 0, time.UTC).UnixMilli()
	if got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestResolveZonedTimestamp_KnownTransitions(t *testing.T) {
	tests := []struct {
		tz, dateKey, raw string
		wantUTC          time.Time
	}{
		// New York springs forward at 02:00 EST.
		{"America/New_York", "2024-03-10", "01:30", time.Date(2024, 3, 10, 6, 30, 0, 0, time.UTC)},
		{"America/New_York", "2024-03-10", "03:30", time.Date(2024, 3, 10, 7, 30, 0, 0, time.UTC)},
		// London falls back at 02:00 BST.
		{"Europe/London", "2024-10-27", "00:30", time.Date(2024, 10, 26, 23, 30, 0, 0, time.UTC)},
		{"Europe/London", "2024-10-27", "03:00", time.Date(2024, 10, 27, 3, 0, 0, 0, time.UTC)},
		// Sydney: the civil date is ahead of UTC.
		{"Australia/Sydney", "2024-04-07", "01:30", time.Date(2024, 4, 6, 14, 30, 0, 0, time.UTC)},
		{"Australia/Sydney", "2024-10-06", "03:30", time.Date(2024, 10, 5, 16, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.tz+" "+tt.dateKey+" "+tt.raw, func(t *testing.T) {
			got, err := ResolveZonedTimestamp(tt.dateKey, tt.raw, tt.tz)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.wantUTC.UnixMilli() {
				t.Errorf("got %s, want %s", time.UnixMilli(got).UTC(), tt.wantUTC)
			}
		})
	}
}

// TestResolveZonedTimestamp_DSTSweep checks the round-trip property on every
// half hour of the transition days of a set of zones: the resolved instant,
// rendered in the zone, reproduces the input wall clock and date. Wall clocks
// that fall into a spring-forward gap do not exist and are skipped.
func TestResolveZonedTimestamp_DSTSweep(t *testing.T) {
	zonesAndDays := map[string][]string{
		"America/New_York": {"2024-03-10", "2024-11-03", "2025-03-09", "2025-11-02"},
		"Europe/London":    {"2024-03-31", "2024-10-27", "2025-03-30", "2025-10-26"},
		"Europe/Berlin":    {"2024-03-31", "2024-10-27"},
		"Australia/Sydney": {"2024-04-07", "2024-10-06"},
		"Pacific/Auckland": {"2024-04-07", "2024-09-29"},
		"America/Santiago": {"2024-04-07", "2024-09-08"},
		"Asia/Tehran":      {"2021-03-22", "2021-09-22", "2024-03-21"},
		"Asia/Beirut":      {"2024-03-31", "2024-10-27"},
		"Africa/Cairo":     {"2024-04-26", "2024-10-31"},
		"Asia/Baghdad":     {"2024-03-10", "2024-07-16"},
		"Asia/Kolkata":     {"2024-03-10"},
		"Asia/Kathmandu":   {"2024-03-10"},
		"America/St_Johns": {"2024-03-10", "2024-11-03"},
	}

	for tz, days := range zonesAndDays {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			t.Fatalf("LoadLocation(%q): %v", tz, err)
		}
		for _, day := range days {
			d, _ := time.Parse(DateKeyLayout, day)
			for minutes := 0; minutes < 24*60; minutes += 30 {
				h, m := minutes/60, minutes%60
				raw := fmt.Sprintf("%02d:%02d", h, m)

				wall := time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, loc)
				if wall.Hour() != h || wall.Minute() != m {
					continue // gap
				}

				ts, err := ResolveZonedTimestamp(day, raw, tz)
				if err != nil {
					t.Fatalf("%s %s %s: %v", tz, day, raw, err)
				}
				local := time.UnixMilli(ts).In(loc)
				if got := local.Format("15:04"); got != raw {
					t.Errorf("%s %s %s: round trip gave %s", tz, day, raw, got)
				}
				if got := local.Format(DateKeyLayout); got != day {
					t.Errorf("%s %s %s: round trip date %s", tz, day, raw, got)
				}
			}
		}
	}
}

func TestDateKeyIn(t *testing.T) {
	baghdad, _ := LoadZone("Asia/Baghdad")
	la, _ := LoadZone("America/Los_Angeles")

	// 22:30 UTC on the 9th is already the 10th in Baghdad but still the 9th in LA.
	now := time.Date(2024, 3, 9, 22, 30, 0, 0, time.UTC)
	if got := DateKeyIn(now, baghdad); got != "2024-03-10" {
		t.Errorf("Baghdad date = %q, want 2024-03-10", got)
	}
	if got := DateKeyIn(now, la); got != "2024-03-09" {
		t.Errorf("LA date = %q, want 2024-03-09", got)
	}
}

func TestDateKeyFromGregorian(t *testing.T) {
	got, err := DateKeyFromGregorian("10-03-2024")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2024-03-10" {
		t.Errorf("got %q, want 2024-03-10", got)
	}
	if _, err := DateKeyFromGregorian("2024-03-10"); err == nil {
		t.Error("expected error for wrong layout")
	}
}

func TestLoadZone_Memoized(t *testing.T) {
	a, err := LoadZone("Europe/London")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := LoadZone("Europe/London")
	if a != b {
		t.Error("LoadZone did not return the memoized location")
	}
}
