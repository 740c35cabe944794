// Package display renders terminal output with lipgloss.
//
// Colors follow termenv's detection of stdout and are turned off when
// NO_COLOR is set or output is piped. FORCE_COLOR turns them on.
package display

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var renderer = lipgloss.NewRenderer(os.Stdout)

var (
	colorAccent = lipgloss.Color("6")
	colorMuted  = lipgloss.Color("8")
	colorGood   = lipgloss.Color("2")
	colorWarn   = lipgloss.Color("3")
)

func init() {
	renderer.SetColorProfile(detectProfile())
}

func detectProfile() termenv.Profile {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return termenv.Ascii
	}
	if _, ok := os.LookupEnv("FORCE_COLOR"); ok {
		return termenv.ANSI256
	}
	return termenv.NewOutput(os.Stdout).EnvColorProfile()
}

// SetEnabled overrides the detected color state.
func SetEnabled(b bool) {
	if b {
		renderer.SetColorProfile(termenv.ANSI256)
		return
	}
	renderer.SetColorProfile(termenv.Ascii)
}

// Enabled reports whether color output is active.
func Enabled() bool {
	return renderer.ColorProfile() != termenv.Ascii
}

func style() lipgloss.Style {
	return renderer.NewStyle()
}

// Bold returns text rendered in bold.
func Bold(text string) string {
	return style().Bold(true).Render(text)
}

// Dim returns text rendered faint.
func Dim(text string) string {
	return style().Faint(true).Render(text)
}

// Muted returns text in the secondary color.
func Muted(text string) string {
	return style().Foreground(colorMuted).Render(text)
}

// Good returns text in the success color.
func Good(text string) string {
	return style().Foreground(colorGood).Render(text)
}

// Warn returns text in the warning color.
func Warn(text string) string {
	return style().Foreground(colorWarn).Bold(true).Render(text)
}

// Accent highlights the next prayer.
func Accent(text string) string {
	return style().Foreground(colorAccent).Bold(true).Render(text)
}

// Boldf formats and bolds a string.
func Boldf(format string, a ...any) string {
	return Bold(fmt.Sprintf(format, a...))
}
