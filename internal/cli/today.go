package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notify/internal/display"
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

// todayJSON is the JSON output of the root command.
type todayJSON struct {
	Schedule *prayer.Schedule   `json:"schedule"`
	Current  string             `json:"current,omitempty"`
	Next     *prayer.NextPrayer `json:"next"`
	Banner   string             `json:"banner,omitempty"`
}

func runToday(cmd *cobra.Command, args []string) error {
	cfg := effectiveConfig(cmd)

	a, err := openApp(cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	schedule, err := a.svc.Refresh(cmd.Context(), false)
	if err != nil {
		return err
	}

	now := time.Now()
	next := prayer.SelectNext(schedule.Prayers, now.UnixMilli())
	banner := a.state.Banner()

	if FlagJSON {
		out := todayJSON{Schedule: schedule, Next: next, Banner: banner}
		if cur := prayer.CurrentPrayer(schedule.Prayers, now.UnixMilli()); cur != nil {
			out.Current = string(cur.Name)
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), display.RenderToday(display.TodayView{
		Schedule: schedule,
		Next:     next,
		Now:      now,
		Only:     cfg.PrayerFilter(),
		Banner:   banner,
	}))
	return nil
}
