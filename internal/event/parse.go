package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ParseError reports a malformed inbound event payload.
type ParseError struct {
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid event: %s", e.Message)
	}
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Message)
}

// IsParseError returns true if err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// localLayouts cover timestamps emitted by scripting hosts that omit the
// offset. Producers on the same machine stamp those in local time.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Parse decodes and validates a JSON event payload.
//
// Required: timestamp (ISO-8601), type (one of KnownTypes), action
// (non-empty). metadata is optional and may be null. Unknown fields are
// rejected so that a misspelled key fails loudly instead of silently
// producing an empty action.
func Parse(data []byte) (Event, error) {
	var w wireEvent
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&w); err != nil {
		return Event{}, &ParseError{Message: fmt.Sprintf("malformed JSON: %v", err)}
	}

	if strings.TrimSpace(w.Timestamp) == "" {
		return Event{}, &ParseError{Field: "timestamp", Message: "is required"}
	}
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return Event{}, &ParseError{Field: "timestamp", Message: err.Error()}
	}

	typ := Type(strings.TrimSpace(w.Type))
	if typ == "" {
		return Event{}, &ParseError{Field: "type", Message: "is required"}
	}
	if !typ.IsKnown() {
		return Event{}, &ParseError{Field: "type", Message: fmt.Sprintf("unknown event type %q", w.Type)}
	}

	action := NormalizeAction(w.Action)
	if action == "" {
		return Event{}, &ParseError{Field: "action", Message: "is required"}
	}

	return Event{
		Timestamp: ts,
		Type:      typ,
		Action:    action,
		Metadata:  w.Metadata,
	}, nil
}

// ParseTimestamp parses an ISO-8601 timestamp. A trailing "Z" or an
// explicit offset is honored; timestamps without one are interpreted in
// time.Local, the zone of the daemon's clock.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

// NormalizeAction canonicalizes an action id: NFC-normalized, trimmed and
// lower-cased. Config loading and event parsing both go through here so
// that ids compare byte-for-byte.
func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFC.String(action)))
}
