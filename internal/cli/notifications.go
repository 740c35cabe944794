package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notify/internal/display"
	"github.com/smokyabdulrahman/prayer-notify/internal/notify"
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

func newNotificationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notifications",
		Short: "Inspect Athan notifications",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show notification settings and what is scheduled",
		Long:  "Show notification settings and the Athan notifications the running daemon holds. Without a daemon, the last sync record from the store is shown.",
		RunE:  runNotificationsStatus,
	})
	return cmd
}

// daemonStatus is the daemon's GET /api/notifications body.
type daemonStatus struct {
	Enabled bool               `json:"enabled"`
	Meta    notify.Meta        `json:"meta"`
	Pending []notify.Scheduled `json:"pending"`
}

func fetchDaemonStatus(ctx context.Context, addr string) (*daemonStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/api/notifications", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon answered %s", resp.Status)
	}

	var st daemonStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding daemon status: %w", err)
	}
	return &st, nil
}

func runNotificationsStatus(cmd *cobra.Command, args []string) error {
	cfg := effectiveConfig(cmd)
	out := cmd.OutOrStdout()

	st, err := fetchDaemonStatus(cmd.Context(), cfg.ListenAddr)
	live := err == nil
	if !live {
		log.Debug().Err(err).Str("addr", cfg.ListenAddr).Msg("daemon not reachable")
		kv, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer kv.Close()
		st = &daemonStatus{
			Enabled: cfg.NotificationsEnabled(),
			Meta:    notify.NewSynchronizer(kv, nil).Meta(cmd.Context()),
		}
	}

	if FlagJSON {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "\n  %s\n\n", display.Bold("Athan notifications"))
	fmt.Fprintf(out, "  %-12s %s\n", "Enabled", onOff(st.Enabled))
	fmt.Fprintf(out, "  %-12s %s\n", "Sound", cfg.Sound())
	alerts := cfg.PrayerAlerts()
	for _, n := range prayer.Names {
		if n.Notifiable() {
			fmt.Fprintf(out, "  %-12s %s\n", n, onOff(alerts[n]))
		}
	}
	fmt.Fprintln(out)

	if !live {
		fmt.Fprintf(out, "  %s\n", display.Muted("Daemon not running at "+cfg.ListenAddr+"."))
		fmt.Fprintf(out, "  Last sync issued %d notification(s).\n\n", len(st.Meta.NotificationIDs))
		return nil
	}

	if len(st.Pending) == 0 {
		fmt.Fprintf(out, "  %s\n\n", display.Muted("Nothing scheduled."))
		return nil
	}
	tbl := display.NewTable([]string{"Prayer", "Fires at", "Tag"})
	for _, p := range st.Pending {
		tbl.AddRow([]string{p.Title, p.FireAt.Local().Format("Mon 02 Jan 15:04"), p.Tag})
	}
	fmt.Fprint(out, tbl.Render())
	fmt.Fprintln(out)
	return nil
}

func onOff(b bool) string {
	if b {
		return display.Good("on")
	}
	return display.Muted("off")
}
