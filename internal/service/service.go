// Package service runs the prayer pipeline: it resolves the location,
// fetches and builds the day's schedule, keeps the next prayer current and
// keeps notifications and the widget feed in step.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smokyabdulrahman/prayer-notify/internal/api"
	"github.com/smokyabdulrahman/prayer-notify/internal/cache"
	"github.com/smokyabdulrahman/prayer-notify/internal/config"
	"github.com/smokyabdulrahman/prayer-notify/internal/geo"
	"github.com/smokyabdulrahman/prayer-notify/internal/notify"
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notify/internal/state"
	"github.com/smokyabdulrahman/prayer-notify/internal/widget"
)

var (
	// ErrUpstream wraps fetch, response and timing-format failures.
	ErrUpstream = errors.New("prayer times unavailable")
	// ErrLocationUnavailable is returned when no location is set and none
	// can be detected.
	ErrLocationUnavailable = errors.New("location unavailable")
	// ErrSuperseded is returned by a refresh whose result was discarded
	// because a newer refresh started meanwhile.
	ErrSuperseded = errors.New("refresh superseded")
)

const (
	tickInterval        = time.Second
	defaultRetryBackoff = time.Minute
)

// Fetcher fetches raw timings. *api.Client implements it.
type Fetcher interface {
	FetchByCoordinates(ctx context.Context, date time.Time, lat, lon float64, method, school int) (*api.Response, error)
	FetchByCity(ctx context.Context, date time.Time, city, country string, method, school int) (*api.Response, error)
}

// Deps are the collaborators of a Service. State, API and Cache are
// required; the rest are optional.
type Deps struct {
	State  *state.State
	API    Fetcher
	Cache  *cache.Cache
	Sync   *notify.Synchronizer
	Bridge *widget.Bridge
	// Detect finds the location when none is configured. Defaults to
	// geo.DetectLocation.
	Detect func(context.Context) (*geo.Location, error)
	// SavePrefs persists preferences changed through UpdatePreferences.
	SavePrefs func(config.Config) error
	Now       func() time.Time
}

// Service owns the schedule lifecycle.
type Service struct {
	state     *state.State
	api       Fetcher
	cache     *cache.Cache
	sync      *notify.Synchronizer
	bridge    *widget.Bridge
	detect    func(context.Context) (*geo.Location, error)
	savePrefs func(config.Config) error
	now       func() time.Time

	retryBackoff time.Duration

	// generation increases with every refresh; only the newest may apply.
	generation atomic.Uint64

	// applyMu makes the generation check and the state update one step.
	applyMu sync.Mutex

	mu            sync.Mutex
	lastAttempt   time.Time
	lastWidgetErr string
}

// New creates a Service.
func New(d Deps) *Service {
	s := &Service{
		state:        d.State,
		api:          d.API,
		cache:        d.Cache,
		sync:         d.Sync,
		bridge:       d.Bridge,
		detect:       d.Detect,
		savePrefs:    d.SavePrefs,
		now:          d.Now,
		retryBackoff: defaultRetryBackoff,
	}
	if s.detect == nil {
		s.detect = geo.DetectLocation
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Refresh produces today's schedule and applies it to the state. Unless force
// is set, a cached schedule for the same inputs and civil date is reused. On
// upstream failure the last valid cached schedule is applied instead; without
// one the failure is returned and shown as the banner.
func (s *Service) Refresh(ctx context.Context, force bool) (*prayer.Schedule, error) {
	gen := s.generation.Add(1)
	prefs := s.state.Prefs()
	now := s.now()

	loc, err := s.resolveLocation(ctx, prefs)
	if err != nil {
		// Without a location the input key is unknown; any schedule for
		// today beats none.
		if cached := s.cache.LoadSchedule(ctx); cached != nil && cache.IsValidForToday(cached, now) {
			return s.applyFallback(ctx, gen, cached, err)
		}
		return nil, s.fail(gen, err)
	}

	method := prefs.MethodOrDefault(api.MethodJafari)
	school := prefs.SchoolOrDefault(-1)
	inputKey := cache.InputKey(loc.Lat, loc.Lon, loc.City, loc.Country, method, school)
	if loc.Timezone == "" {
		if cur := s.state.Schedule(); cur != nil && cur.InputKey == inputKey {
			loc.Timezone = cur.Timezone
		}
	}

	if !force {
		if cached := s.cache.LoadValid(ctx, inputKey, now); cached != nil {
			log.Debug().Str("date_key", cached.DateKey).Msg("using cached schedule")
			return s.apply(ctx, gen, s.withFormat(cached, prefs.Format()), false)
		}
	}

	schedule, err := s.fetch(ctx, loc, method, school, prefs.Format(), now)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if cached := s.cache.LoadValid(ctx, inputKey, now); cached != nil {
			return s.applyFallback(ctx, gen, cached, err)
		}
		return nil, s.fail(gen, err)
	}
	schedule.InputKey = inputKey

	return s.apply(ctx, gen, schedule, true)
}

func (s *Service) fetch(ctx context.Context, loc Location, method, school int, format prayer.TimeFormat, now time.Time) (*prayer.Schedule, error) {
	// With a known zone ask for that zone's civil date; otherwise let the
	// API pick "today" for the location.
	var date time.Time
	if loc.Timezone != "" {
		if z, err := prayer.LoadZone(loc.Timezone); err == nil {
			date = now.In(z)
		}
	}

	var (
		resp *api.Response
		err  error
	)
	switch loc.Source {
	case prayer.SourceCity:
		resp, err = s.api.FetchByCity(ctx, date, loc.City, loc.Country, method, school)
	default:
		resp, err = s.api.FetchByCoordinates(ctx, date, loc.Lat, loc.Lon, method, school)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	tz := resp.Data.Meta.Timezone
	if tz == "" {
		tz = loc.Timezone
	}
	zone, err := prayer.LoadZone(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	dateKey, err := prayer.DateKeyFromGregorian(resp.Data.Date.Gregorian.Date)
	if err != nil {
		dateKey = prayer.DateKeyIn(now, zone)
	}

	entries, err := prayer.BuildSchedule(resp.Data.Timings, dateKey, tz, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}

	schedule := &prayer.Schedule{
		DateKey:    dateKey,
		Timezone:   tz,
		Source:     loc.Source,
		Prayers:    entries,
		FetchedAt:  now.UnixMilli(),
		TimeFormat: format,
		Hijri:      resp.Data.Date.Hijri.Format(),
	}
	if loc.Source == prayer.SourceCity {
		schedule.City = &prayer.City{Name: loc.City, Country: loc.Country}
	} else {
		schedule.Coordinates = &prayer.Coordinates{Latitude: loc.Lat, Longitude: loc.Lon}
	}

	log.Info().Str("date_key", dateKey).Str("timezone", tz).Str("source", string(loc.Source)).Msg("prayer times fetched")
	return schedule, nil
}

// apply installs schedule if gen is still the newest refresh.
func (s *Service) apply(ctx context.Context, gen uint64, schedule *prayer.Schedule, persist bool) (*prayer.Schedule, error) {
	s.applyMu.Lock()
	if s.generation.Load() != gen {
		s.applyMu.Unlock()
		log.Debug().Str("date_key", schedule.DateKey).Msg("discarding superseded schedule")
		return nil, ErrSuperseded
	}

	if persist {
		if err := s.cache.SaveSchedule(ctx, schedule); err != nil {
			log.Warn().Err(err).Msg("failed to cache schedule")
		}
	}

	s.state.SetSchedule(schedule)
	s.state.SetBanner("")
	s.applyMu.Unlock()

	s.updateNext(ctx, schedule, s.now())

	if err := s.SyncNotifications(ctx); err != nil && !errors.Is(err, notify.ErrPermissionDenied) {
		log.Error().Err(err).Msg("notification sync failed")
	}
	return schedule, nil
}

func (s *Service) applyFallback(ctx context.Context, gen uint64, cached *prayer.Schedule, cause error) (*prayer.Schedule, error) {
	log.Warn().Err(cause).Str("date_key", cached.DateKey).Msg("refresh failed, using cached schedule")
	prefs := s.state.Prefs()
	fallback := s.withFormat(cached, prefs.Format())
	fallback.Source = prayer.SourceCache
	return s.apply(ctx, gen, fallback, false)
}

// fail records err as the banner unless a newer refresh took over.
func (s *Service) fail(gen uint64, err error) error {
	if s.generation.Load() != gen {
		return ErrSuperseded
	}
	log.Error().Err(err).Msg("refresh failed")
	s.state.SetBanner(bannerFor(err))
	return err
}

func bannerFor(err error) string {
	switch {
	case errors.Is(err, ErrLocationUnavailable):
		return "Could not determine your location. Set a city with `prayer-notify config set city <name>`."
	case errors.Is(err, ErrUpstream):
		return "Could not load prayer times. Check your connection; retrying shortly."
	default:
		return "Could not load prayer times: " + err.Error()
	}
}

// withFormat returns schedule with display strings for format, copying only
// when they differ.
func (s *Service) withFormat(schedule *prayer.Schedule, format prayer.TimeFormat) *prayer.Schedule {
	out := *schedule
	if schedule.TimeFormat != format {
		out.Prayers = prayer.Reformat(schedule.Prayers, format)
		out.TimeFormat = format
	}
	return &out
}

// Tick is one polling step: refetch after a day rollover (at most once per
// retry back-off), recompute the next prayer and push the widget payload.
// It never fails.
func (s *Service) Tick(ctx context.Context) {
	now := s.now()
	schedule := s.state.Schedule()

	if schedule == nil || !cache.IsValidForToday(schedule, now) {
		if s.dueForRetry(now) {
			if _, err := s.Refresh(ctx, false); err != nil && !errors.Is(err, ErrSuperseded) {
				log.Debug().Err(err).Msg("tick refresh failed")
			}
			schedule = s.state.Schedule()
			now = s.now()
		}
	}

	if schedule == nil {
		return
	}
	s.updateNext(ctx, schedule, now)
}

func (s *Service) dueForRetry(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastAttempt.IsZero() && now.Sub(s.lastAttempt) < s.retryBackoff {
		return false
	}
	s.lastAttempt = now
	return true
}

func (s *Service) updateNext(ctx context.Context, schedule *prayer.Schedule, now time.Time) {
	next := prayer.SelectNext(schedule.Prayers, now.UnixMilli())
	s.state.SetNext(next)
	s.pushWidget(ctx, schedule, next)
}

func (s *Service) pushWidget(ctx context.Context, schedule *prayer.Schedule, next *prayer.NextPrayer) {
	if s.bridge == nil {
		return
	}
	prefs := s.state.Prefs()
	_, err := s.bridge.Push(ctx, widget.BuildPayload(schedule, next, prefs.Language, prefs.Theme))

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil && err.Error() != s.lastWidgetErr:
		log.Warn().Err(err).Msg("widget push failed")
		s.lastWidgetErr = err.Error()
	case err == nil && s.lastWidgetErr != "":
		log.Info().Msg("widget push recovered")
		s.lastWidgetErr = ""
	}
}

// SyncNotifications reconciles notifications with the current schedule and
// preferences. A permission denial turns notifications off for this run and
// sets the banner.
func (s *Service) SyncNotifications(ctx context.Context) error {
	if s.sync == nil {
		return nil
	}
	prefs := s.state.Prefs()
	err := s.sync.Sync(ctx, s.state.Schedule(), prefs.NotificationsEnabled(), prefs.Sound(), prefs.PrayerAlerts())
	if errors.Is(err, notify.ErrPermissionDenied) {
		log.Warn().Msg("notification permission denied")
		off := false
		prefs.Notifications = &off
		s.state.SetPrefs(prefs)
		s.state.SetBanner("Notifications are blocked. Allow them in your desktop settings, then enable notifications again.")
	}
	return err
}

// NotificationStatus returns the stored sync meta and the pending Athan
// notifications.
func (s *Service) NotificationStatus(ctx context.Context) (notify.Meta, []notify.Scheduled, error) {
	if s.sync == nil {
		return notify.Meta{}, nil, nil
	}
	pending, err := s.sync.Pending(ctx)
	return s.sync.Meta(ctx), pending, err
}

// locationKeys are the preferences that change what is fetched.
var locationKeys = map[string]bool{
	"city": true, "country": true, "latitude": true, "longitude": true,
	"method": true, "school": true,
}

// notificationKeys are the preferences the synchronizer depends on.
var notificationKeys = map[string]bool{
	"notifications": true, "athan_sound": true,
	"alert_fajr": true, "alert_dhuhr": true, "alert_asr": true,
	"alert_maghrib": true, "alert_isha": true,
}

// UpdatePreferences validates and applies changes (config key to value),
// persists them, and reacts: new location inputs refetch, a new time format
// rebuilds display strings locally, notification settings resync and
// widget settings repush.
func (s *Service) UpdatePreferences(ctx context.Context, changes map[string]string) (config.Config, error) {
	prefs := s.state.Prefs()
	for key, value := range changes {
		if err := prefs.Set(key, value); err != nil {
			return s.state.Prefs(), err
		}
	}

	if s.savePrefs != nil {
		if err := s.savePrefs(prefs); err != nil {
			return s.state.Prefs(), fmt.Errorf("saving preferences: %w", err)
		}
	}
	s.state.SetPrefs(prefs)

	var refetch, resync bool
	for key := range changes {
		refetch = refetch || locationKeys[key]
		resync = resync || notificationKeys[key]
	}

	if refetch {
		if _, err := s.Refresh(ctx, false); err != nil && !errors.Is(err, ErrSuperseded) {
			return prefs, err
		}
		return s.state.Prefs(), nil
	}

	if schedule := s.state.Schedule(); schedule != nil {
		if _, ok := changes["time_format"]; ok {
			schedule = s.withFormat(schedule, prefs.Format())
			s.state.SetSchedule(schedule)
			if err := s.cache.SaveSchedule(ctx, schedule); err != nil {
				log.Warn().Err(err).Msg("failed to cache reformatted schedule")
			}
		}
		s.updateNext(ctx, schedule, s.now())
	}

	if resync {
		if err := s.SyncNotifications(ctx); err != nil {
			return s.state.Prefs(), err
		}
	}
	return s.state.Prefs(), nil
}

// Run refreshes, then ticks every second until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	s.Tick(ctx)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
