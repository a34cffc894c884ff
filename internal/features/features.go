// Package features derives the flat, matcher-friendly summary of the
// EventStore's current contents.
package features

import (
	"strings"
	"time"

	"github.com/roach88/shortcut-sage/internal/event"
)

// SequenceSeparator joins RecentActions into ActionSequence.
const SequenceSeparator = " "

// Source is anything that can report its recent events. *buffer.Store
// satisfies it.
type Source interface {
	Recent(now time.Time) []event.Event
}

// Features is recomputed on every extraction and never persisted.
type Features struct {
	// RecentActions is the action id of every recent event, oldest first.
	RecentActions []string

	// EventCount equals len(RecentActions).
	EventCount int

	// LastAction is the newest action id. Empty when HasLast is false.
	LastAction string
	HasLast    bool

	// ActionSequence is RecentActions joined by SequenceSeparator.
	ActionSequence string
}

// Extract summarizes src.Recent(now). An empty source yields a Features
// value with a non-nil empty RecentActions slice and HasLast == false.
func Extract(src Source, now time.Time) Features {
	return FromEvents(src.Recent(now))
}

// FromEvents summarizes an already-pruned event sequence.
func FromEvents(events []event.Event) Features {
	actions := make([]string, len(events))
	for i, ev := range events {
		actions[i] = ev.Action
	}

	f := Features{
		RecentActions:  actions,
		EventCount:     len(actions),
		ActionSequence: strings.Join(actions, SequenceSeparator),
	}
	if len(actions) > 0 {
		f.LastAction = actions[len(actions)-1]
		f.HasLast = true
	}
	return f
}

// Tail returns the last n recent actions (all of them if n exceeds the
// count, none if n <= 0).
func (f Features) Tail(n int) []string {
	if n <= 0 {
		return nil
	}
	if n >= len(f.RecentActions) {
		return f.RecentActions
	}
	return f.RecentActions[len(f.RecentActions)-n:]
}
