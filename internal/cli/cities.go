package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notify/internal/display"
	"github.com/smokyabdulrahman/prayer-notify/internal/geo"
)

// geonamesURL overrides the city search endpoint when set.
var geonamesURL string

var flagCityPage int

func newCitiesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cities <query>",
		Short: "Search cities by name",
		Long:  "Search cities by name, largest first, ten per page. Needs a geonames account:\n  prayer-notify config set geonames_user <name>",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCities,
	}
	cmd.Flags().IntVar(&flagCityPage, "page", 1, "Result page, starting at 1")
	return cmd
}

func runCities(cmd *cobra.Command, args []string) error {
	if flagCityPage < 1 {
		return fmt.Errorf("invalid --page %d: must be 1 or more", flagCityPage)
	}
	cfg := effectiveConfig(cmd)

	searcher := geo.NewCitySearcher(cfg.GeonamesUser)
	if geonamesURL != "" {
		searcher.BaseURL = geonamesURL
	}

	page, err := searcher.SearchCities(cmd.Context(), strings.Join(args, " "), flagCityPage-1)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if FlagJSON {
		data, err := json.MarshalIndent(page, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(page.Cities) == 0 {
		fmt.Fprintln(out, "No cities found.")
		return nil
	}

	tbl := display.NewTable([]string{"City", "Country", "Latitude", "Longitude", "Timezone"})
	for _, c := range page.Cities {
		tbl.AddRow([]string{
			c.Name,
			c.Country,
			strconv.FormatFloat(c.Latitude, 'f', 4, 64),
			strconv.FormatFloat(c.Longitude, 'f', 4, 64),
			c.Timezone,
		})
	}
	fmt.Fprint(out, tbl.Render())

	fmt.Fprintf(out, "\n  %s\n", display.Muted(fmt.Sprintf("Page %d, %d results.", flagCityPage, page.Total)))
	if page.HasMore() {
		fmt.Fprintf(out, "  %s\n", display.Muted(fmt.Sprintf("More with --page %d.", flagCityPage+1)))
	}
	return nil
}
