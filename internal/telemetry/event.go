package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a telemetry event.
type EventType string

const (
	EventReceived      EventType = "event_received"
	SuggestionShown    EventType = "suggestion_shown"
	SuggestionAccepted EventType = "suggestion_accepted"
	DaemonStart        EventType = "daemon_start"
	DaemonStop         EventType = "daemon_stop"
	ConfigReload       EventType = "config_reload"
	ErrorOccurred      EventType = "error_occurred"
)

// Event is one telemetry record.
type Event struct {
	ID         string            `json:"id"`
	SessionID  string            `json:"session_id"`
	Type       EventType         `json:"event_type"`
	Timestamp  time.Time         `json:"timestamp"`
	Duration   time.Duration     `json:"duration,omitempty"` // 0 when not timed
	Properties map[string]string `json:"properties,omitempty"`
}

// NewEvent creates an event with a fresh time-sortable ID.
func NewEvent(typ EventType, at time.Time, duration time.Duration, props map[string]string) Event {
	return Event{
		ID:         NewID(),
		Type:       typ,
		Timestamp:  at,
		Duration:   duration,
		Properties: props,
	}
}

// NewID returns a UUIDv7 string.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}
