package prayer

import (
	"fmt"
	"strings"
	"time"
)

// Name identifies one of the six daily prayer events.
type Name string

const (
	Fajr    Name = "Fajr"
	Sunrise Name = "Sunrise"
	Dhuhr   Name = "Dhuhr"
	Asr     Name = "Asr"
	Maghrib Name = "Maghrib"
	Isha    Name = "Isha"
)

// Names lists the prayer events in chronological order within a civil day.
var Names = []Name{Fajr, Sunrise, Dhuhr, Asr, Maghrib, Isha}

// ShortNames maps prayer names to abbreviations used by the compact formats.
var ShortNames = map[Name]string{
	Fajr:    "F",
	Sunrise: "S",
	Dhuhr:   "D",
	Asr:     "A",
	Maghrib: "M",
	Isha:    "I",
}

// Notifiable reports whether an Athan notification is ever issued for n.
// Sunrise is listed for display only.
func (n Name) Notifiable() bool {
	return n != Sunrise
}

// ParseName matches a prayer name case-insensitively.
func ParseName(s string) (Name, bool) {
	for _, n := range Names {
		if strings.EqualFold(string(n), strings.TrimSpace(s)) {
			return n, true
		}
	}
	return "", false
}

// TimeFormat selects how display times are rendered.
type TimeFormat string

const (
	Format24h TimeFormat = "24h"
	Format12h TimeFormat = "12h"
)

// Layout returns the Go time layout for the format.
func (f TimeFormat) Layout() string {
	if f == Format12h {
		return "3:04 PM"
	}
	return "15:04"
}

// Source tags where a schedule came from. It is provenance only.
type Source string

const (
	SourceGPS   Source = "gps"
	SourceCity  Source = "city"
	SourceCache Source = "cache"
)

// Entry is one prayer occurrence on a given civil day.
type Entry struct {
	Name        Name   `json:"name"`
	Time24      string `json:"time24"`
	DisplayTime string `json:"displayTime"`
	Timestamp   int64  `json:"timestamp"`
	DateTimeISO string `json:"dateTimeISO"`
}

// Time returns the entry's instant.
func (e Entry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// City is a manually chosen city.
type City struct {
	Name    string `json:"name"`
	Country string `json:"country"`
}

// Schedule is one resolved day of prayer times.
type Schedule struct {
	DateKey     string       `json:"dateKey"`
	Timezone    string       `json:"timezone"`
	Source      Source       `json:"source"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	City        *City        `json:"city,omitempty"`
	Prayers     []Entry      `json:"prayers"`
	FetchedAt   int64        `json:"fetchedAt"`
	TimeFormat  TimeFormat   `json:"timeFormat"`
	Hijri       string       `json:"hijri,omitempty"`
	InputKey    string       `json:"inputKey,omitempty"`
}

// Entry returns the schedule's entry for n.
func (s *Schedule) Entry(n Name) (Entry, bool) {
	for _, e := range s.Prayers {
		if e.Name == n {
			return e, true
		}
	}
	return Entry{}, false
}

// Label returns a human-readable place for the schedule.
func (s *Schedule) Label() string {
	switch {
	case s.City != nil && s.City.Country != "":
		return s.City.Name + ", " + s.City.Country
	case s.City != nil:
		return s.City.Name
	case s.Coordinates != nil:
		return fmt.Sprintf("%.4f, %.4f", s.Coordinates.Latitude, s.Coordinates.Longitude)
	default:
		return s.Timezone
	}
}

// NextPrayer is the soonest upcoming entry and the time left until it.
type NextPrayer struct {
	Entry
	RemainingMs int64 `json:"remainingMs"`
}

// Remaining returns RemainingMs as a duration.
func (n NextPrayer) Remaining() time.Duration {
	return time.Duration(n.RemainingMs) * time.Millisecond
}

const dayMs = int64(24 * time.Hour / time.Millisecond)

// BuildSchedule resolves a day's raw timings into the six ordered entries.
// Keys are matched case-insensitively; unknown keys are ignored and a missing
// prayer is a FormatError.
func BuildSchedule(timings map[string]string, dateKey, timezone string, format TimeFormat) ([]Entry, error) {
	byName := make(map[string]string, len(timings))
	for k, v := range timings {
		byName[strings.ToLower(k)] = v
	}

	entries := make([]Entry, 0, len(Names))
	for _, name := range Names {
		raw, ok := byName[strings.ToLower(string(name))]
		if !ok {
			return nil, &FormatError{Field: "timings", Value: string(name), Err: fmt.Errorf("missing %s", name)}
		}

		ts, err := ResolveZonedTimestamp(dateKey, raw, timezone)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", name, err)
		}
		hour, minute, _ := ParseClock(raw)

		entries = append(entries, Entry{
			Name:        name,
			Time24:      fmt.Sprintf("%02d:%02d", hour, minute),
			DisplayTime: formatClock(hour, minute, format),
			Timestamp:   ts,
			DateTimeISO: isoString(ts),
		})
	}
	return entries, nil
}

// Reformat returns a copy of entries with display strings rebuilt for format.
func Reformat(entries []Entry, format TimeFormat) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = e
		if hour, minute, err := ParseClock(e.Time24); err == nil {
			out[i].DisplayTime = formatClock(hour, minute, format)
		}
	}
	return out
}

// SelectNext returns the first entry strictly after now. When every entry
// has passed, tomorrow's Fajr is synthesized from today's by adding one day.
// It returns nil only for an empty list.
func SelectNext(entries []Entry, now int64) *NextPrayer {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.Timestamp > now {
			return &NextPrayer{Entry: e, RemainingMs: e.Timestamp - now}
		}
	}

	fajr := entries[0]
	for _, e := range entries {
		if e.Name == Fajr {
			fajr = e
			break
		}
	}
	fajr.Timestamp += dayMs
	fajr.DateTimeISO = isoString(fajr.Timestamp)

	remaining := fajr.Timestamp - now
	if remaining < 0 {
		remaining = 0
	}
	return &NextPrayer{Entry: fajr, RemainingMs: remaining}
}

// CurrentPrayer returns the latest entry at or before now, or nil before Fajr.
func CurrentPrayer(entries []Entry, now int64) *Entry {
	var current *Entry
	for i := range entries {
		if entries[i].Timestamp <= now {
			current = &entries[i]
		}
	}
	return current
}

// FormatRemaining formats a duration as "Xh Ym" or "Ym" if less than an hour.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		return "0m"
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

func formatClock(hour, minute int, format TimeFormat) string {
	return time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Format(format.Layout())
}

func isoString(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02T15:04:05.000Z")
}
