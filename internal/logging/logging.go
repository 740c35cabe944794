// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/muesli/termenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup points the global logger at stderr. verbose lowers the level to
// debug; json switches from the console writer to JSON lines.
func Setup(verbose, json bool) {
	SetupTo(os.Stderr, verbose, json)
}

// SetupTo is Setup with an explicit writer.
func SetupTo(w io.Writer, verbose, json bool) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := w
	if !json {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
			NoColor:    !colorEnabled(w),
		}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// colorEnabled follows termenv: no color for non-terminals or NO_COLOR,
// color when CLICOLOR_FORCE is set.
func colorEnabled(w io.Writer) bool {
	return termenv.NewOutput(w).EnvColorProfile() != termenv.Ascii
}
