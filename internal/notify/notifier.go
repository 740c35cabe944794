// Package notify keeps OS-level Athan notifications in step with the current
// prayer schedule.
package notify

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrPermissionDenied is returned when the host refuses to show notifications.
// Callers surface it and leave notifications off until the user acts.
var ErrPermissionDenied = errors.New("notification permission denied")

// SoundKey names the Athan recording played with a notification.
type SoundKey string

const (
	SoundDefault SoundKey = "default"
	SoundMakkah  SoundKey = "makkah"
	SoundMadinah SoundKey = "madinah"
	SoundKarbala SoundKey = "karbala"
	SoundSilent  SoundKey = "silent"
)

var sounds = map[SoundKey]string{
	SoundDefault: "message-new-instant",
	SoundMakkah:  "athan-makkah",
	SoundMadinah: "athan-madinah",
	SoundKarbala: "athan-karbala",
	SoundSilent:  "",
}

// ValidSound reports whether s is a known sound key.
func ValidSound(s string) bool {
	_, ok := sounds[SoundKey(s)]
	return ok
}

// SoundNames lists the known sound keys in sorted order.
func SoundNames() []string {
	names := make([]string, 0, len(sounds))
	for k := range sounds {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return names
}

// Channel is the notification channel for a sound. Hosts that bind the sound
// to the channel need one channel per sound.
func (k SoundKey) Channel() string {
	return "athan-" + string(k)
}

// Request describes one notification to fire at an absolute instant.
type Request struct {
	Title   string
	Body    string
	FireAt  time.Time
	Sound   SoundKey
	Channel string
	// Tag groups notifications for bulk cancellation.
	Tag string
}

// Scheduled is a pending notification known to the host.
type Scheduled struct {
	ID     string    `json:"id"`
	Tag    string    `json:"tag"`
	Title  string    `json:"title"`
	FireAt time.Time `json:"fireAt"`
}

// Notifier is the host's local-notification capability.
type Notifier interface {
	// RequestPermission asks for, or verifies, permission to notify.
	RequestPermission(ctx context.Context) (bool, error)
	// Schedule registers req and returns its identifier.
	Schedule(ctx context.Context, req Request) (string, error)
	// Cancel removes a pending notification. Unknown IDs are not an error.
	Cancel(ctx context.Context, id string) error
	// List returns the pending notifications.
	List(ctx context.Context) ([]Scheduled, error)
}
