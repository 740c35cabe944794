// Package cache keeps the last resolved prayer schedule and the last detected
// location in the durable key-value store.
package cache

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smokyabdulrahman/prayer-notify/internal/geo"
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notify/internal/store"
)

const (
	scheduleKey = "prayer:schedule"
	geoKey      = "geo:location"
	geoTTL      = 24 * time.Hour
)

// Cache reads and writes cached state through a store.KV.
type Cache struct {
	kv  store.KV
	now func() time.Time
}

// GeoCacheEntry stores a detected location with the time it was cached.
type GeoCacheEntry struct {
	Location geo.Location `json:"location"`
	CachedAt time.Time    `json:"cached_at"`
}

// New creates a Cache backed by kv.
func New(kv store.KV) *Cache {
	return &Cache{kv: kv, now: time.Now}
}

// InputKey builds a deterministic hash from the parameters that affect prayer
// times. A cached schedule built for other inputs is treated as a miss.
func InputKey(lat, lon float64, city, country string, method, school int) string {
	raw := fmt.Sprintf("%.6f|%.6f|%s|%s|%d|%d", lat, lon, city, country, method, school)
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", h[:8])
}

// IsValidForToday reports whether s was built for the civil date of now in
// the schedule's own time zone. The device's zone is never consulted.
func IsValidForToday(s *prayer.Schedule, now time.Time) bool {
	if s == nil || len(s.Prayers) == 0 {
		return false
	}
	loc, err := prayer.LoadZone(s.Timezone)
	if err != nil {
		return false
	}
	return s.DateKey == prayer.DateKeyIn(now, loc)
}

// LoadSchedule returns the last saved schedule, or nil if there is none or it
// cannot be decoded.
func (c *Cache) LoadSchedule(ctx context.Context) *prayer.Schedule {
	var s prayer.Schedule
	if err := store.GetJSON(ctx, c.kv, scheduleKey, &s); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("ignoring unreadable schedule cache")
		}
		return nil
	}
	return &s
}

// LoadValid returns the saved schedule only if it was built for inputKey and
// is still valid for today at now.
func (c *Cache) LoadValid(ctx context.Context, inputKey string, now time.Time) *prayer.Schedule {
	s := c.LoadSchedule(ctx)
	if s == nil {
		return nil
	}
	if s.InputKey != inputKey {
		log.Debug().Str("cached", s.InputKey).Str("want", inputKey).Msg("schedule cache built for other inputs")
		return nil
	}
	if !IsValidForToday(s, now) {
		log.Debug().Str("date_key", s.DateKey).Msg("schedule cache is stale")
		return nil
	}
	return s
}

// SaveSchedule replaces the cached schedule.
func (c *Cache) SaveSchedule(ctx context.Context, s *prayer.Schedule) error {
	if err := store.SetJSON(ctx, c.kv, scheduleKey, s); err != nil {
		return fmt.Errorf("failed to write schedule cache: %w", err)
	}
	return nil
}

// LoadGeo returns the cached location, or nil if it is missing or older
// than 24 hours.
func (c *Cache) LoadGeo(ctx context.Context) *geo.Location {
	var entry GeoCacheEntry
	if err := store.GetJSON(ctx, c.kv, geoKey, &entry); err != nil {
		return nil
	}
	if c.now().Sub(entry.CachedAt) > geoTTL {
		return nil
	}
	return &entry.Location
}

// SaveGeo caches a detected location.
func (c *Cache) SaveGeo(ctx context.Context, loc *geo.Location) error {
	entry := GeoCacheEntry{
		Location: *loc,
		CachedAt: c.now(),
	}
	if err := store.SetJSON(ctx, c.kv, geoKey, entry); err != nil {
		return fmt.Errorf("failed to write geo cache: %w", err)
	}
	return nil
}
