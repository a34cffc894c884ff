// Package event defines the symbolic desktop events consumed by the
// suggestion pipeline.
//
// Events are produced by the window-manager script and arrive over IPC as
// JSON. Parse validates and normalizes a payload before it reaches the
// EventStore; code past that point assumes a well-formed Event.
//
// Events are privacy-scrubbed: they carry an action id and a coarse type,
// never raw keystrokes. Metadata is opaque to the matcher today.
package event

import (
	"encoding/json"
	"time"
)

// Type is the symbolic category of an event.
type Type string

const (
	TypeWindowFocus    Type = "window_focus"
	TypeDesktopSwitch  Type = "desktop_switch"
	TypeOverviewToggle Type = "overview_toggle"
	TypeWindowMove     Type = "window_move"
	TypeDesktopState   Type = "desktop_state"
	TypeTest           Type = "test"
)

// KnownTypes lists every accepted event type in declaration order.
var KnownTypes = []Type{
	TypeWindowFocus,
	TypeDesktopSwitch,
	TypeOverviewToggle,
	TypeWindowMove,
	TypeDesktopState,
	TypeTest,
}

// IsKnown reports whether t is one of KnownTypes.
func (t Type) IsKnown() bool {
	for _, k := range KnownTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Event is an immutable record of a desktop-activity occurrence.
//
// Metadata may be nil. Callers must not mutate an Event (or its Metadata)
// after handing it to the EventStore.
type Event struct {
	Timestamp time.Time
	Type      Type
	Action    string
	Metadata  map[string]string
}

// New creates an Event with a normalized action id.
func New(ts time.Time, typ Type, action string, metadata map[string]string) Event {
	return Event{
		Timestamp: ts,
		Type:      typ,
		Action:    NormalizeAction(action),
		Metadata:  metadata,
	}
}

// Age returns how old the event is relative to now.
// Negative when the event is timestamped after now.
func (e Event) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// wireEvent is the JSON shape exchanged over IPC.
type wireEvent struct {
	Timestamp string            `json:"timestamp"`
	Type      string            `json:"type"`
	Action    string            `json:"action"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// MarshalJSON renders the event in its wire format (RFC 3339 timestamp).
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		Timestamp: e.Timestamp.Format(time.RFC3339Nano),
		Type:      string(e.Type),
		Action:    e.Action,
		Metadata:  e.Metadata,
	})
}
