package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/smokyabdulrahman/prayer-notify/internal/config"
	"github.com/smokyabdulrahman/prayer-notify/internal/notify"
	"github.com/smokyabdulrahman/prayer-notify/internal/server"
	"github.com/smokyabdulrahman/prayer-notify/internal/widget"
)

var (
	flagListen string
	flagNoHTTP bool
	flagNotify bool
)

func newDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep the schedule, notifications and widget feed current",
		Long: `Run until interrupted. The daemon refetches on day rollover, schedules
Athan desktop notifications when they are enabled, publishes the widget
payload to MQTT when mqtt_broker is set, and serves a status API on
listen_addr.`,
		RunE: runDaemon,
	}
	cmd.Flags().StringVar(&flagListen, "listen", "", "Status API address (overrides listen_addr)")
	cmd.Flags().BoolVar(&flagNoHTTP, "no-http", false, "Do not serve the status API")
	cmd.Flags().BoolVar(&flagNotify, "notify", false, "Enable notifications for this run")
	return cmd
}

// daemonPrefs applies the daemon's own flags to the effective config.
func daemonPrefs(cfg config.Config, forceNotify bool, listen string) config.Config {
	if forceNotify {
		on := true
		cfg.Notifications = &on
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	return cfg
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := daemonPrefs(effectiveConfig(cmd), flagNotify, flagListen)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	desktop := notify.NewDesktopNotifier()
	defer desktop.Close()

	var pub widget.Publisher
	if cfg.MQTTBroker != "" {
		mqttPub, err := widget.NewMQTTPublisher(cfg.MQTTBroker, cfg.MQTTTopic)
		if err != nil {
			// The widget feed is optional; the schedule still runs.
			log.Warn().Err(err).Msg("widget feed disabled")
		} else {
			defer mqttPub.Close()
			pub = mqttPub
		}
	}
	bridge := widget.NewBridge(pub)

	a, err := openApp(cfg, appOptions{notifier: desktop, bridge: bridge, persistPrefs: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if !flagNoHTTP {
		if !FlagVerbose {
			gin.SetMode(gin.ReleaseMode)
		}
		srv := server.New(a.svc, a.state, bridge)
		go func() {
			if err := srv.ListenAndServe(ctx, cfg.ListenAddr); err != nil {
				log.Error().Err(err).Str("addr", cfg.ListenAddr).Msg("status API stopped")
			}
		}()
	}

	log.Info().
		Bool("notifications", cfg.NotificationsEnabled()).
		Bool("mqtt", pub != nil).
		Str("store", cfg.Store).
		Msg("daemon started")

	err = a.svc.Run(ctx)
	log.Info().Msg("daemon stopped")
	return err
}
