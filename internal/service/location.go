package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/smokyabdulrahman/prayer-notify/internal/config"
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

// Location is the resolved input for a fetch.
type Location struct {
	Source   prayer.Source
	Lat, Lon float64
	City     string
	Country  string
	// Timezone is a hint from detection; the API's answer wins.
	Timezone string
}

// resolveLocation picks the fetch input.
// Priority: configured coordinates > configured city > cached detection > IP detection.
func (s *Service) resolveLocation(ctx context.Context, prefs config.Config) (Location, error) {
	switch {
	case prefs.Latitude != 0 || prefs.Longitude != 0:
		return Location{Source: prayer.SourceGPS, Lat: prefs.Latitude, Lon: prefs.Longitude}, nil
	case prefs.City != "":
		if prefs.Country == "" {
			return Location{}, fmt.Errorf("%w: country is required when city is set", ErrLocationUnavailable)
		}
		return Location{Source: prayer.SourceCity, City: prefs.City, Country: prefs.Country}, nil
	}

	if s.cache != nil {
		if cached := s.cache.LoadGeo(ctx); cached != nil {
			return Location{
				Source:   prayer.SourceGPS,
				Lat:      cached.Latitude,
				Lon:      cached.Longitude,
				Timezone: cached.Timezone,
			}, nil
		}
	}

	detected, err := s.detect(ctx)
	if err != nil {
		return Location{}, fmt.Errorf("%w: no location set and auto-detection failed: %v", ErrLocationUnavailable, err)
	}

	if s.cache != nil {
		if err := s.cache.SaveGeo(ctx, detected); err != nil {
			log.Warn().Err(err).Msg("failed to cache detected location")
		}
	}

	return Location{
		Source:   prayer.SourceGPS,
		Lat:      detected.Latitude,
		Lon:      detected.Longitude,
		Timezone: detected.Timezone,
	}, nil
}
