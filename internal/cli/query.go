package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

func newQueryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "query <prayer>",
		Short: "Query a specific prayer time for today",
		Long:  "Print today's time for one prayer.\n\nValid prayer names: " + joinNames(prayer.Names),
		Args:  cobra.ExactArgs(1),
		RunE:  runQuery,
	}
}

type queryJSON struct {
	Prayer      string `json:"prayer"`
	Time        string `json:"time"`
	DateTimeISO string `json:"dateTimeISO"`
	Date        string `json:"date"`
	Hijri       string `json:"hijri,omitempty"`
	Timezone    string `json:"timezone"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	name, ok := prayer.ParseName(args[0])
	if !ok {
		return fmt.Errorf("unknown prayer %q; valid names: %s", args[0], joinNames(prayer.Names))
	}

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
	e, ok := schedule.Entry(name)
	if !ok {
		return fmt.Errorf("no timing found for %s", name)
	}

	if FlagJSON {
		data, err := json.MarshalIndent(queryJSON{
			Prayer:      string(e.Name),
			Time:        e.DisplayTime,
			DateTimeISO: e.DateTimeISO,
			Date:        schedule.DateKey,
			Hijri:       schedule.Hijri,
			Timezone:    schedule.Timezone,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", e.Name, e.DisplayTime)
	return nil
}
