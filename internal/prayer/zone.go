package prayer

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// offsetIterations is the number of offset-correction rounds applied when
// mapping a zone-local wall clock onto an absolute instant.
const offsetIterations = 3

// DateKeyLayout is the layout of a schedule date key (civil date in the
// schedule's own timezone).
const DateKeyLayout = "2006-01-02"

// FormatError reports malformed upstream input: a time string without an
// HH:MM pattern, a bad date key, or an unknown timezone.
type FormatError struct {
	Field string
	Value string
	Err   error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s %q", e.Field, e.Value)
}

func (e *FormatError) Unwrap() error { return e.Err }

var zones sync.Map // IANA name -> *time.Location

// LoadZone loads an IANA timezone, memoizing the result.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return nil, &FormatError{Field: "timezone", Value: name}
	}
	if loc, ok := zones.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, &FormatError{Field: "timezone", Value: name, Err: err}
	}
	zones.Store(name, loc)
	return loc, nil
}

// DateKeyIn returns the civil date of t in loc as YYYY-MM-DD.
func DateKeyIn(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateKeyLayout)
}

// ResolveZonedTimestamp converts a wall-clock "HH:MM" on dateKey in timeZone
// into epoch milliseconds.
//
// The instant starts as if the zone had a zero offset and is then corrected by
// the zone's actual offset at the candidate instant, a fixed number of times.
// Offsets change at most once inside the correction window for real zones, so
// the iteration settles on the instant whose local rendering is the input.
func ResolveZonedTimestamp(dateKey, rawTime, timeZone string) (int64, error) {
	year, month, day, err := parseDateKey(dateKey)
	if err != nil {
		return 0, err
	}
	hour, minute, err := ParseClock(rawTime)
	if err != nil {
		return 0, err
	}
	loc, err := LoadZone(timeZone)
	if err != nil {
		return 0, err
	}

	naive := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC).UnixMilli()
	candidate := naive
	for i := 0; i < offsetIterations; i++ {
		_, offset := time.UnixMilli(candidate).In(loc).Zone()
		next := naive - int64(offset)*1000
		if next == candidate {
			break
		}
		candidate = next
	}
	return candidate, nil
}

// ParseClock extracts hour and minute from an upstream time string.
// A trailing zone label such as " (+03)" or " (BST)" is ignored.
func ParseClock(raw string) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	if idx := strings.IndexAny(s, " ("); idx != -1 {
		s = s[:idx]
	}

	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return 0, 0, &FormatError{Field: "time", Value: raw}
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, &FormatError{Field: "time", Value: raw, Err: err}
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, &FormatError{Field: "time", Value: raw, Err: err}
	}
	return hour, minute, nil
}

func parseDateKey(key string) (year, month, day int, err error) {
	t, perr := time.Parse(DateKeyLayout, key)
	if perr != nil {
		return 0, 0, 0, &FormatError{Field: "date key", Value: key, Err: perr}
	}
	return t.Year(), int(t.Month()), t.Day(), nil
}

// DateKeyFromGregorian converts the API's "DD-MM-YYYY" into a date key.
func DateKeyFromGregorian(s string) (string, error) {
	t, err := time.Parse("02-01-2006", s)
	if err != nil {
		return "", &FormatError{Field: "gregorian date", Value: s, Err: err}
	}
	return t.Format(DateKeyLayout), nil
}
