package rules

import "time"

// ContextType selects the match strategy of a rule.
type ContextType string

const (
	ContextEventSequence ContextType = "event_sequence"
	ContextRecentWindow  ContextType = "recent_window"
	ContextDesktopState  ContextType = "desktop_state"
)

// ContextTypes lists the supported context types.
var ContextTypes = []ContextType{
	ContextEventSequence,
	ContextRecentWindow,
	ContextDesktopState,
}

// IsSupported reports whether the matcher has a strategy for t.
func (t ContextType) IsSupported() bool {
	for _, c := range ContextTypes {
		if c == t {
			return true
		}
	}
	return false
}

// DefaultWindow is the rule lookback depth, in actions, when Window is 0.
const DefaultWindow = 3

// Pattern is an ordered run of action ids. A single-action pattern is a
// Pattern of length one.
type Pattern []string

// Context is the match predicate of a rule.
type Context struct {
	Type    ContextType `json:"type"`
	Pattern Pattern     `json:"pattern"`
	Window  int         `json:"window,omitempty"` // 0 means DefaultWindow
}

// EffectiveWindow returns Window, or DefaultWindow when unset.
func (c Context) EffectiveWindow() int {
	if c.Window <= 0 {
		return DefaultWindow
	}
	return c.Window
}

// Suggestion is a suggestion template attached to a rule.
// Higher Priority is more important.
type Suggestion struct {
	Action   string `json:"action"`
	Priority int    `json:"priority"`
}

// Rule is a named context predicate with the suggestions it surfaces.
type Rule struct {
	Name     string        `json:"name"`
	Context  Context       `json:"context"`
	Suggest  []Suggestion  `json:"suggest"`
	Cooldown time.Duration `json:"cooldown"`
}

// Shortcut describes the key binding for an action.
type Shortcut struct {
	Action      string `json:"action"`
	Key         string `json:"key"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// DefaultCategory is used for shortcuts that declare none.
const DefaultCategory = "general"
