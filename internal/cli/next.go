package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

var (
	flagFormat  string
	flagPrayers string
)

func newNextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the next prayer with countdown",
		Long:  "Display the next upcoming prayer time with a countdown, in a form suited to status bars.",
		RunE:  runNext,
	}

	cmd.Flags().StringVar(&flagFormat, "format", prayer.FormatFull, "Display format: time-remaining, next-prayer-time, name-and-time, name-and-remaining, short-name-and-time, short-name-and-remaining, full, or a custom Go template (fields: .Name, .ShortName, .Time, .Remaining, .Hours, .Minutes, .ISO)")
	cmd.Flags().StringVar(&flagPrayers, "prayers", "", "Comma-separated list of prayers to track (overrides config)")

	return cmd
}

func runNext(cmd *cobra.Command, args []string) error {
	cfg := effectiveConfig(cmd)

	// Priority: --prayers flag > config > all.
	tracked := cfg.PrayerFilter()
	if cmd.Flags().Changed("prayers") {
		var err error
		if tracked, err = parsePrayers(flagPrayers); err != nil {
			return err
		}
	}

	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	schedule, err := a.svc.Refresh(cmd.Context(), false)
	if err != nil {
		return err
	}

	next := prayer.SelectNext(filterEntries(schedule.Prayers, tracked), time.Now().UnixMilli())
	if next == nil {
		return fmt.Errorf("could not determine next prayer")
	}

	fmt.Fprint(cmd.OutOrStdout(), prayer.FormatOutput(*next, flagFormat))
	return nil
}

// parsePrayers parses a comma-separated prayer list. An empty list means all.
func parsePrayers(list string) ([]prayer.Name, error) {
	var names []prayer.Name
	for _, s := range strings.Split(list, ",") {
		if strings.TrimSpace(s) == "" {
			continue
		}
		n, ok := prayer.ParseName(s)
		if !ok {
			return nil, fmt.Errorf("unknown prayer %q; valid names: %s", strings.TrimSpace(s), joinNames(prayer.Names))
		}
		names = append(names, n)
	}
	return names, nil
}

func filterEntries(entries []prayer.Entry, only []prayer.Name) []prayer.Entry {
	if len(only) == 0 {
		return entries
	}
	keep := make(map[prayer.Name]bool, len(only))
	for _, n := range only {
		keep[n] = true
	}
	var out []prayer.Entry
	for _, e := range entries {
		if keep[e.Name] {
			out = append(out, e)
		}
	}
	return out
}

func joinNames(names []prayer.Name) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = string(n)
	}
	return strings.Join(parts, ", ")
}
