package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notify/internal/display"
	"github.com/smokyabdulrahman/prayer-notify/internal/quran"
)

var flagQuranDuration time.Duration

func newQuranCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quran",
		Short: "Qur'an recitation helpers",
	}
	segment := &cobra.Command{
		Use:   "segment [file]",
		Short: "Estimate ayah boundaries in a recitation",
		Long: `Read a surah as JSON from file (or stdin) and print each ayah's playback
window. Verse timestamps are used when present for every ayah; otherwise
boundaries are estimated from ayah length, which is approximate.

Input:
  {"durationMs": 46000,
   "ayahs": [{"number": 1, "text": "..."}],
   "timestamps": [{"ayah": 1, "fromMs": 0, "toMs": 6000}]}`,
		Args: cobra.MaximumNArgs(1),
		RunE: runQuranSegment,
	}
	segment.Flags().DurationVar(&flagQuranDuration, "duration", 0, "Audio duration (overrides durationMs)")
	cmd.AddCommand(segment)
	return cmd
}

type segmentInput struct {
	DurationMs int64             `json:"durationMs"`
	Ayahs      []quran.Ayah      `json:"ayahs"`
	Timestamps []quran.Timestamp `json:"timestamps"`
}

func runQuranSegment(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var in segmentInput
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return fmt.Errorf("decoding surah: %w", err)
	}
	if flagQuranDuration > 0 {
		in.DurationMs = flagQuranDuration.Milliseconds()
	}

	tl, err := quran.Segments(in.Ayahs, in.DurationMs, in.Timestamps)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if FlagJSON {
		data, err := json.MarshalIndent(tl, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	tbl := display.NewTable([]string{"Ayah", "Start", "End"})
	for _, s := range tl.Segments {
		tbl.AddRow([]string{strconv.Itoa(s.Ayah), clock(s.StartMs), clock(s.EndMs)})
	}
	fmt.Fprint(out, tbl.Render())
	if tl.Estimated {
		fmt.Fprintf(out, "\n  %s\n", display.Muted("Estimated from ayah length; boundaries are approximate."))
	}
	return nil
}

// clock formats ms as m:ss.mmm.
func clock(ms int64) string {
	return fmt.Sprintf("%d:%02d.%03d", ms/60000, ms/1000%60, ms%1000)
}
