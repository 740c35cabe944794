// Package widget serializes the next-prayer state for companion widgets and
// pushes it whenever it changes.
package widget

import (
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

// Theme is the eight-color palette a widget renders with.
type Theme struct {
	Background string `json:"colorBackground"`
	Surface    string `json:"colorSurface"`
	Primary    string `json:"colorPrimary"`
	Accent     string `json:"colorAccent"`
	Text       string `json:"colorText"`
	TextMuted  string `json:"colorTextMuted"`
	Border     string `json:"colorBorder"`
	Highlight  string `json:"colorHighlight"`
}

var (
	LightTheme = Theme{
		Background: "#FFFFFF",
		Surface:    "#F4F1EA",
		Primary:    "#1B5E20",
		Accent:     "#C9A227",
		Text:       "#1C1C1C",
		TextMuted:  "#6B6B6B",
		Border:     "#DDD6C8",
		Highlight:  "#E8F5E9",
	}
	DarkTheme = Theme{
		Background: "#121212",
		Surface:    "#1E1E1E",
		Primary:    "#81C784",
		Accent:     "#E6C55A",
		Text:       "#F5F5F5",
		TextMuted:  "#A0A0A0",
		Border:     "#333333",
		Highlight:  "#1B3A1F",
	}
)

// ThemeNamed returns the palette for "dark", and the light one otherwise.
func ThemeNamed(name string) Theme {
	if name == "dark" {
		return DarkTheme
	}
	return LightTheme
}

// Payload is the flattened record a widget consumes.
type Payload struct {
	NextPrayer  string `json:"nextPrayer"`
	FireAt      int64  `json:"fireAt"`
	DisplayTime string `json:"displayTime"`
	Timezone    string `json:"timezone"`
	CityLabel   string `json:"cityLabel"`
	Language    string `json:"language"`
	Theme
}

// BuildPayload flattens the schedule and its next prayer. A nil next yields a
// payload with only the place, language and colors set.
func BuildPayload(s *prayer.Schedule, next *prayer.NextPrayer, language, theme string) Payload {
	p := Payload{
		Language: language,
		Theme:    ThemeNamed(theme),
	}
	if s != nil {
		p.Timezone = s.Timezone
		p.CityLabel = s.Label()
	}
	if next != nil {
		p.NextPrayer = string(next.Name)
		p.FireAt = next.Timestamp
		p.DisplayTime = next.DisplayTime
	}
	return p
}
