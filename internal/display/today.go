package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

// TodayView is everything the today screen shows.
type TodayView struct {
	Schedule *prayer.Schedule
	Next     *prayer.NextPrayer
	Now      time.Time
	// Only lists the prayers to show; empty shows all six.
	Only   []prayer.Name
	Banner string
}

// RenderToday renders the day's schedule with the current prayer dimmed
// and the next one accented with its countdown.
func RenderToday(v TodayView) string {
	var sb strings.Builder
	sb.WriteString("\n  " + Bold("Prayer Times") + "\n\n")

	if v.Banner != "" {
		sb.WriteString("  " + Warn("! "+v.Banner) + "\n\n")
	}

	s := v.Schedule
	if s == nil {
		sb.WriteString("  " + Muted("No schedule available yet.") + "\n\n")
		return sb.String()
	}

	sb.WriteString("  " + s.Label() + "\n")
	sb.WriteString("  " + Muted(s.Timezone) + "\n")
	sb.WriteString("  " + civilDate(s.DateKey) + "\n")
	if s.Hijri != "" {
		sb.WriteString("  " + s.Hijri + "\n")
	}
	if s.Source == prayer.SourceCache {
		sb.WriteString("  " + Muted("(offline, showing saved times)") + "\n")
	}
	sb.WriteString("\n")

	current := prayer.CurrentPrayer(s.Prayers, v.Now.UnixMilli())

	tbl := NewTable([]string{"Prayer", "Time", ""})
	row := 0
	for _, e := range s.Prayers {
		if !shown(v.Only, e.Name) {
			continue
		}
		marker := ""
		switch {
		case v.Next != nil && v.Next.Name == e.Name && v.Next.Timestamp == e.Timestamp:
			marker = "<- next in " + prayer.FormatRemaining(v.Next.Remaining())
			tbl.SetHighlightRow(row)
		case current != nil && current.Name == e.Name:
			tbl.SetDimRow(row)
		}
		tbl.AddRow([]string{string(e.Name), e.DisplayTime, marker})
		row++
	}
	sb.WriteString(tbl.Render())

	// After Isha the next prayer is tomorrow's Fajr, which has no row.
	if v.Next != nil {
		if e, ok := s.Entry(v.Next.Name); !ok || e.Timestamp != v.Next.Timestamp {
			sb.WriteString(fmt.Sprintf("\n  %s\n", Accent(fmt.Sprintf("Next: %s tomorrow at %s (in %s)",
				v.Next.Name, v.Next.DisplayTime, prayer.FormatRemaining(v.Next.Remaining())))))
		}
	}
	sb.WriteString("\n")
	return sb.String()
}

func shown(only []prayer.Name, n prayer.Name) bool {
	if len(only) == 0 {
		return true
	}
	for _, o := range only {
		if o == n {
			return true
		}
	}
	return false
}

// civilDate renders a "2006-01-02" date key as "Sunday 10 March 2024".
func civilDate(key string) string {
	t, err := time.Parse("2006-01-02", key)
	if err != nil {
		return key
	}
	return t.Format("Monday 02 January 2006")
}
