// Package state holds the live application state shared by the service loop,
// the status API and the CLI. One State is created at start-up and injected
// wherever it is needed.
package state

import (
	"sync"

	"github.com/smokyabdulrahman/prayer-notify/internal/config"
	"github.com/smokyabdulrahman/prayer-notify/internal/prayer"
)

// Snapshot is a point-in-time copy of the state.
type Snapshot struct {
	Prefs    config.Config      `json:"preferences"`
	Schedule *prayer.Schedule   `json:"schedule,omitempty"`
	Next     *prayer.NextPrayer `json:"next,omitempty"`
	Banner   string             `json:"banner,omitempty"`
}

// State is safe for concurrent use. Readers always see the last written value.
type State struct {
	mu       sync.RWMutex
	prefs    config.Config
	schedule *prayer.Schedule
	next     *prayer.NextPrayer
	banner   string
}

// New creates a State holding prefs.
func New(prefs config.Config) *State {
	return &State{prefs: prefs}
}

// Prefs returns the current preferences.
func (s *State) Prefs() config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs
}

// SetPrefs replaces the preferences.
func (s *State) SetPrefs(prefs config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = prefs
}

// Schedule returns the current schedule, or nil.
func (s *State) Schedule() *prayer.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedule
}

// SetSchedule replaces the schedule. The caller must not modify it afterwards.
func (s *State) SetSchedule(schedule *prayer.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schedule = schedule
}

// Next returns the last computed next prayer, or nil.
func (s *State) Next() *prayer.NextPrayer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next
}

// SetNext records the next prayer.
func (s *State) SetNext(next *prayer.NextPrayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = next
}

// Banner returns the user-facing error message, empty when all is well.
func (s *State) Banner() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.banner
}

// SetBanner sets or, with "", clears the banner.
func (s *State) SetBanner(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.banner = msg
}

// Snapshot returns a consistent copy of everything.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Prefs:    s.prefs,
		Schedule: s.schedule,
		Next:     s.next,
		Banner:   s.banner,
	}
}
