package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/smokyabdulrahman/prayer-notify/internal/config"
	"github.com/smokyabdulrahman/prayer-notify/internal/logging"
)

// Global flags shared across all subcommands.
var (
	FlagCity       string
	FlagCountry    string
	FlagLatitude   float64
	FlagLongitude  float64
	FlagMethod     int
	FlagSchool     int
	FlagJSON       bool
	FlagCacheDir   string
	FlagTimeFormat string
	FlagVerbose    bool
	FlagLogJSON    bool
)

// loadedConfig holds the config loaded during PersistentPreRunE.
var loadedConfig *config.Config

// NewRootCmd creates the root command for the prayer-notify CLI.
// The version parameter is set by the calling binary via ldflags.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "prayer-notify",
		Short:   "Prayer times with Athan notifications",
		Long:    "Shows the day's prayer times and, as a daemon, keeps Athan notifications and widget feeds in sync with them.",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup(FlagVerbose, FlagLogJSON)
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			loadedConfig = cfg
			return nil
		},
		// Default action: show today's prayer schedule.
		RunE:          runToday,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&FlagCity, "city", "", "Override city (takes precedence over config)")
	pf.StringVar(&FlagCountry, "country", "", "Override country")
	pf.Float64Var(&FlagLatitude, "latitude", 0, "Override latitude")
	pf.Float64Var(&FlagLongitude, "longitude", 0, "Override longitude")
	pf.IntVar(&FlagMethod, "method", 0, "Override calculation method (0-23, default 0 Jafari)")
	pf.IntVar(&FlagSchool, "school", -1, "Override school (0=Shafi, 1=Hanafi)")
	pf.BoolVar(&FlagJSON, "json", false, "Output as JSON (where supported)")
	pf.StringVar(&FlagCacheDir, "cache-dir", "", "Directory for the local state database (default: $XDG_DATA_HOME/prayer-notify)")
	pf.StringVar(&FlagTimeFormat, "time-format", "", "Time format: 12h or 24h (overrides config)")
	pf.BoolVarP(&FlagVerbose, "verbose", "v", false, "Log debug output to stderr")
	pf.BoolVar(&FlagLogJSON, "log-json", false, "Log as JSON lines")

	rootCmd.AddCommand(newNextCmd())
	rootCmd.AddCommand(newQueryCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newMethodsCmd())
	rootCmd.AddCommand(newCitiesCmd())
	rootCmd.AddCommand(newNotificationsCmd())
	rootCmd.AddCommand(newDaemonCmd())
	rootCmd.AddCommand(newQuranCmd())

	return rootCmd
}

// effectiveConfig returns the merged configuration:
// CLI flags > environment > config file > defaults.
// It uses cobra's Changed() to detect whether a flag was explicitly set.
func effectiveConfig(cmd *cobra.Command) config.Config {
	var cfg config.Config
	if loadedConfig != nil {
		cfg = *loadedConfig
	}

	flags := cmd.Flags()
	root := cmd.Root().PersistentFlags()

	if flagWasSet(flags, root, "city") {
		cfg.City = FlagCity
		cfg.Latitude, cfg.Longitude = 0, 0
	}
	if flagWasSet(flags, root, "country") {
		cfg.Country = FlagCountry
	}
	if flagWasSet(flags, root, "latitude") {
		cfg.Latitude = FlagLatitude
	}
	if flagWasSet(flags, root, "longitude") {
		cfg.Longitude = FlagLongitude
	}
	if flagWasSet(flags, root, "method") {
		method := FlagMethod
		cfg.Method = &method
	}
	if flagWasSet(flags, root, "school") {
		school := FlagSchool
		cfg.School = &school
	}
	if flagWasSet(flags, root, "cache-dir") {
		cfg.CacheDir = FlagCacheDir
	}
	if flagWasSet(flags, root, "time-format") {
		cfg.TimeFormat = FlagTimeFormat
	}

	return cfg.WithDefaults()
}

// flagWasSet checks if a flag was explicitly set on either the local or persistent flag set.
func flagWasSet(local, persistent *pflag.FlagSet, name string) bool {
	if f := local.Lookup(name); f != nil && f.Changed {
		return true
	}
	if f := persistent.Lookup(name); f != nil && f.Changed {
		return true
	}
	return false
}
