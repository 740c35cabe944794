package notify

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	appName      = "prayer-notify"
	notifyObj    = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = "org.freedesktop.Notifications.Notify"
)

type pending struct {
	req   Request
	timer *time.Timer
}

// DesktopNotifier schedules notifications in-process and shows them through
// the freedesktop notification service on the session bus when they fire.
// Pending notifications live only as long as the process.
type DesktopNotifier struct {
	mu      sync.Mutex
	pending map[string]*pending

	// deliver shows a notification. Replaced in tests.
	deliver func(Request) error
	// available reports whether a notification service is running.
	available func() (bool, error)
}

// NewDesktopNotifier creates a notifier bound to the D-Bus session bus.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{
		pending:   make(map[string]*pending),
		deliver:   dbusDeliver,
		available: dbusAvailable,
	}
}

// RequestPermission reports whether a notification service owns its name on
// the session bus. Desktop sessions need no per-app grant.
func (d *DesktopNotifier) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return d.available()
}

// Schedule arms a timer that shows req at req.FireAt.
func (d *DesktopNotifier) Schedule(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	wait := time.Until(req.FireAt)
	if wait <= 0 {
		return "", fmt.Errorf("fire time %s is not in the future", req.FireAt.Format(time.RFC3339))
	}

	id := uuid.NewString()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[id] = &pending{
		req:   req,
		timer: time.AfterFunc(wait, func() { d.fire(id) }),
	}
	return id, nil
}

func (d *DesktopNotifier) fire(id string) {
	d.mu.Lock()
	p, ok := d.pending[id]
	delete(d.pending, id)
	d.mu.Unlock()
	if !ok {
		return
	}

	if err := d.deliver(p.req); err != nil {
		log.Error().Err(err).Str("notification_id", id).Msg("failed to show notification")
		return
	}
	log.Info().Str("notification_id", id).Str("title", p.req.Title).Msg("notification shown")
}

// Cancel stops a pending notification.
func (d *DesktopNotifier) Cancel(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[id]; ok {
		p.timer.Stop()
		delete(d.pending, id)
	}
	return nil
}

// List returns pending notifications ordered by fire time.
func (d *DesktopNotifier) List(_ context.Context) ([]Scheduled, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Scheduled, 0, len(d.pending))
	for id, p := range d.pending {
		out = append(out, Scheduled{ID: id, Tag: p.req.Tag, Title: p.req.Title, FireAt: p.req.FireAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

// Close stops every pending timer.
func (d *DesktopNotifier) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, p := range d.pending {
		p.timer.Stop()
		delete(d.pending, id)
	}
}

func dbusAvailable() (bool, error) {
	bus, err := dbus.SessionBus()
	if err != nil {
		return false, fmt.Errorf("connecting to session bus: %w", err)
	}
	var owned bool
	if err := bus.BusObject().Call("org.freedesktop.DBus.NameHasOwner", 0, notifyObj).Store(&owned); err != nil {
		return false, fmt.Errorf("looking up %s: %w", notifyObj, err)
	}
	return owned, nil
}

func dbusDeliver(req Request) error {
	bus, err := dbus.SessionBus()
	if err != nil {
		return fmt.Errorf("connecting to session bus: %w", err)
	}

	hints := map[string]dbus.Variant{
		"category": dbus.MakeVariant("x-athan"),
	}
	if name := sounds[req.Sound]; name != "" {
		hints["sound-name"] = dbus.MakeVariant(name)
	} else {
		hints["suppress-sound"] = dbus.MakeVariant(true)
	}

	call := bus.Object(notifyObj, notifyPath).Call(
		notifyMethod,
		0,
		appName,
		uint32(0),
		"",
		req.Title,
		req.Body,
		[]string{},
		hints,
		int32(-1),
	)
	if call.Err != nil {
		return fmt.Errorf("sending notification %q: %w", req.Title, call.Err)
	}
	return nil
}
