package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
	"github.com/smokyabdulrahman/prayer-notify/internal/store"
)

const (
	// TagPrefix marks every notification this package issues.
	TagPrefix = "athan-"

	metaKey = "notify:meta"
)

// Meta records the notifications issued for a schedule key.
type Meta struct {
	ScheduleKey     string   `json:"scheduleKey"`
	NotificationIDs []string `json:"notificationIds"`
	// FireAt maps each notification ID to its fire time in epoch ms.
	FireAt map[string]int64 `json:"fireAt,omitempty"`
}

// Synchronizer reconciles scheduled notifications with a prayer schedule.
// At most one consistent set of notifications exists for a given schedule,
// sound and per-prayer flags.
type Synchronizer struct {
	kv       store.KV
	notifier Notifier
	now      func() time.Time

	// mu makes the compare-and-persist of the schedule key atomic.
	mu sync.Mutex
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithClock replaces the clock used to skip prayers that already passed.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) { s.now = now }
}

// NewSynchronizer creates a Synchronizer that keeps its meta in kv.
func NewSynchronizer(kv store.KV, notifier Notifier, opts ...Option) *Synchronizer {
	s := &Synchronizer{kv: kv, notifier: notifier, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScheduleKey derives the idempotence key from the date, the sound and the
// (name, timestamp, enabled) triple of every notifiable prayer in order.
func ScheduleKey(schedule *prayer.Schedule, sound SoundKey, prefs map[prayer.Name]bool) string {
	var b strings.Builder
	b.WriteString(schedule.DateKey)
	b.WriteString("|")
	b.WriteString(string(sound))
	for _, name := range prayer.Names {
		if !name.Notifiable() {
			continue
		}
		var ts int64
		if e, ok := schedule.Entry(name); ok {
			ts = e.Timestamp
		}
		fmt.Fprintf(&b, "|%s:%d:%t", name, ts, alertEnabled(prefs, name))
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// alertEnabled treats a prayer missing from prefs as enabled.
func alertEnabled(prefs map[prayer.Name]bool, name prayer.Name) bool {
	v, ok := prefs[name]
	return !ok || v
}

// Sync brings scheduled notifications in line with schedule. With enabled
// false or a nil schedule every Athan notification is cancelled. Otherwise it
// is a no-op when nothing changed since the last successful sync.
func (s *Synchronizer) Sync(ctx context.Context, schedule *prayer.Schedule, enabled bool, sound SoundKey, prefs map[prayer.Name]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := s.loadMeta(ctx)

	if !enabled || schedule == nil {
		s.cancelAll(ctx, meta.NotificationIDs)
		if err := s.kv.Delete(ctx, metaKey); err != nil {
			return fmt.Errorf("clearing notification meta: %w", err)
		}
		return nil
	}

	granted, err := s.notifier.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("requesting notification permission: %w", err)
	}
	if !granted {
		return ErrPermissionDenied
	}

	key := ScheduleKey(schedule, sound, prefs)
	now := s.now().UnixMilli()
	if meta.ScheduleKey == key && len(meta.NotificationIDs) > 0 && s.held(ctx, meta, now) {
		log.Debug().Str("date_key", schedule.DateKey).Msg("notifications already in sync")
		return nil
	}

	s.cancelAll(ctx, meta.NotificationIDs)

	tag := TagPrefix + schedule.DateKey
	ids := make([]string, 0, len(schedule.Prayers))
	fireAt := make(map[string]int64, len(schedule.Prayers))
	for _, e := range schedule.Prayers {
		if !e.Name.Notifiable() || !alertEnabled(prefs, e.Name) || e.Timestamp <= now {
			continue
		}

		id, err := s.notifier.Schedule(ctx, Request{
			Title:   string(e.Name),
			Body:    fmt.Sprintf("It is time for %s prayer (%s)", e.Name, e.DisplayTime),
			FireAt:  e.Time(),
			Sound:   sound,
			Channel: sound.Channel(),
			Tag:     tag,
		})
		if err != nil {
			s.rollback(ctx, ids)
			if derr := s.kv.Delete(ctx, metaKey); derr != nil {
				log.Warn().Err(derr).Msg("failed to clear notification meta")
			}
			return fmt.Errorf("scheduling %s notification: %w", e.Name, err)
		}
		log.Debug().Str("prayer", string(e.Name)).Str("notification_id", id).Str("fire_at", e.DateTimeISO).Msg("notification scheduled")
		ids = append(ids, id)
		fireAt[id] = e.Timestamp
	}

	if err := store.SetJSON(ctx, s.kv, metaKey, Meta{ScheduleKey: key, NotificationIDs: ids, FireAt: fireAt}); err != nil {
		s.rollback(ctx, ids)
		return fmt.Errorf("saving notification meta: %w", err)
	}

	log.Info().Str("date_key", schedule.DateKey).Int("count", len(ids)).Msg("notifications rescheduled")
	return nil
}

// Meta returns the stored meta, empty if there is none.
func (s *Synchronizer) Meta(ctx context.Context) Meta {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadMeta(ctx)
}

// Pending lists the Athan notifications the host still holds.
func (s *Synchronizer) Pending(ctx context.Context) ([]Scheduled, error) {
	all, err := s.notifier.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	var out []Scheduled
	for _, n := range all {
		if strings.HasPrefix(n.Tag, TagPrefix) {
			out = append(out, n)
		}
	}
	return out, nil
}

// held reports whether the host still holds every stored notification that
// has not fired yet. Hosts that keep notifications in memory lose them on
// restart while the stored meta survives.
func (s *Synchronizer) held(ctx context.Context, meta Meta, now int64) bool {
	pending, err := s.notifier.List(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("notification scan failed")
		return false
	}
	have := make(map[string]bool, len(pending))
	for _, n := range pending {
		have[n.ID] = true
	}
	for _, id := range meta.NotificationIDs {
		at, known := meta.FireAt[id]
		if known && at <= now {
			continue
		}
		if !have[id] {
			log.Debug().Str("notification_id", id).Msg("stored notification no longer pending")
			return false
		}
	}
	return true
}

func (s *Synchronizer) loadMeta(ctx context.Context) Meta {
	var meta Meta
	if err := store.GetJSON(ctx, s.kv, metaKey, &meta); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warn().Err(err).Msg("ignoring unreadable notification meta")
		}
		return Meta{}
	}
	return meta
}

// cancelAll cancels the stored IDs and then anything carrying the tag prefix,
// in case the stored IDs are stale. Failures are logged and swallowed.
func (s *Synchronizer) cancelAll(ctx context.Context, ids []string) {
	cancelled := make(map[string]bool, len(ids))
	for _, id := range ids {
		s.cancel(ctx, id)
		cancelled[id] = true
	}

	pending, err := s.Pending(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("notification scan failed")
		return
	}
	for _, n := range pending {
		if !cancelled[n.ID] {
			s.cancel(ctx, n.ID)
		}
	}
}

func (s *Synchronizer) rollback(ctx context.Context, ids []string) {
	for _, id := range ids {
		s.cancel(ctx, id)
	}
}

func (s *Synchronizer) cancel(ctx context.Context, id string) {
	if err := s.notifier.Cancel(ctx, id); err != nil {
		log.Warn().Err(err).Str("notification_id", id).Msg("failed to cancel notification")
	}
}
