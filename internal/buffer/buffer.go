// Package buffer implements the EventStore: a time-windowed buffer of
// recent desktop events.
//
// Pruning moment: the store prunes lazily, on every Recent call. Add never
// drops events. Because pruning is by age rather than position, events
// added out of chronological order are still handled correctly.
//
// Boundary: an event exactly Window old is retained (inclusive bound).
//
// Store is not safe for concurrent use; the pipeline serializes access.
package buffer

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/shortcut-sage/internal/event"
)

// DefaultWindow is the retention horizon the daemon uses unless configured.
const DefaultWindow = 3 * time.Second

// ErrInvalidConfiguration is returned when a Store is constructed with a
// non-positive window.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Store holds recent events ordered by insertion.
type Store struct {
	window time.Duration
	events []event.Event
}

// New creates a Store retaining events for window.
// Returns ErrInvalidConfiguration (wrapped) if window <= 0.
func New(window time.Duration) (*Store, error) {
	if window <= 0 {
		return nil, fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfiguration, window)
	}
	return &Store{
		window: window,
		events: make([]event.Event, 0, 32),
	}, nil
}

// NewSeconds is New with the window expressed in (fractional) seconds, the
// unit used by configuration files and CLI flags.
func NewSeconds(windowSeconds float64) (*Store, error) {
	if windowSeconds <= 0 {
		return nil, fmt.Errorf("%w: window_seconds must be positive, got %v", ErrInvalidConfiguration, windowSeconds)
	}
	return New(time.Duration(windowSeconds * float64(time.Second)))
}

// Window returns the retention horizon.
func (s *Store) Window() time.Duration {
	return s.window
}

// Add appends an event. It never prunes.
func (s *Store) Add(ev event.Event) {
	s.events = append(s.events, ev)
}

// Recent prunes events older than Window relative to now and returns the
// remaining events in insertion order (oldest first for monotonic input).
//
// The returned slice is a copy; callers may keep it.
func (s *Store) Recent(now time.Time) []event.Event {
	s.prune(now)
	out := make([]event.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Snapshot returns the current contents relative to the newest stored
// event, without requiring the caller to supply a time. Used for debug
// views of the buffer.
func (s *Store) Snapshot() []event.Event {
	latest, ok := s.latest()
	if !ok {
		return []event.Event{}
	}
	return s.Recent(latest)
}

// Len returns the number of stored events, including any not yet pruned.
func (s *Store) Len() int {
	return len(s.events)
}

// Clear drops every stored event.
func (s *Store) Clear() {
	for i := range s.events {
		s.events[i] = event.Event{}
	}
	s.events = s.events[:0]
}

// prune drops every event whose age relative to now exceeds the window.
// Filters in place so out-of-order insertion cannot shield stale events.
func (s *Store) prune(now time.Time) {
	kept := s.events[:0]
	for _, ev := range s.events {
		if ev.Age(now) <= s.window {
			kept = append(kept, ev)
		}
	}
	// Release references held by the tail for GC.
	for i := len(kept); i < len(s.events); i++ {
		s.events[i] = event.Event{}
	}
	s.events = kept
}

func (s *Store) latest() (time.Time, bool) {
	if len(s.events) == 0 {
		return time.Time{}, false
	}
	latest := s.events[0].Timestamp
	for _, ev := range s.events[1:] {
		if ev.Timestamp.After(latest) {
			latest = ev.Timestamp
		}
	}
	return latest, true
}
