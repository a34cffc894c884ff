// Package shortcut joins policy output with the configured key bindings.
package shortcut

import (
	"github.com/roach88/shortcut-sage/internal/policy"
	"github.com/roach88/shortcut-sage/internal/rules"
)

// Table maps action ids to their shortcut. A Table is immutable once
// built; hot reload replaces the whole Table.
type Table struct {
	byAction map[string]rules.Shortcut
	order    []string
}

// NewTable builds a Table from shortcuts in declaration order. A later
// duplicate action replaces the earlier entry; the config loader rejects
// duplicates before this point.
func NewTable(shortcuts []rules.Shortcut) *Table {
	t := &Table{byAction: make(map[string]rules.Shortcut, len(shortcuts))}
	for _, s := range shortcuts {
		if s.Category == "" {
			s.Category = rules.DefaultCategory
		}
		if _, dup := t.byAction[s.Action]; !dup {
			t.order = append(t.order, s.Action)
		}
		t.byAction[s.Action] = s
	}
	return t
}

// Lookup returns the shortcut for action.
func (t *Table) Lookup(action string) (rules.Shortcut, bool) {
	if t == nil {
		return rules.Shortcut{}, false
	}
	s, ok := t.byAction[action]
	return s, ok
}

// Len returns the number of shortcuts.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.order)
}

// All returns the shortcuts in declaration order.
func (t *Table) All() []rules.Shortcut {
	if t == nil {
		return nil
	}
	out := make([]rules.Shortcut, len(t.order))
	for i, a := range t.order {
		out[i] = t.byAction[a]
	}
	return out
}

// Enriched is a suggestion ready for the presentation layer.
type Enriched struct {
	Action      string `json:"action"`
	Priority    int    `json:"priority"`
	Key         string `json:"key"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Known       bool   `json:"known"`
}

// Enrich joins suggestions with t, preserving their order. A suggestion
// with no shortcut entry is kept with empty key and description and
// Known == false.
func Enrich(suggestions []policy.Suggestion, t *Table) []Enriched {
	out := make([]Enriched, len(suggestions))
	for i, s := range suggestions {
		e := Enriched{Action: s.Action, Priority: s.Priority}
		if sc, ok := t.Lookup(s.Action); ok {
			e.Key = sc.Key
			e.Description = sc.Description
			e.Category = sc.Category
			e.Known = true
		}
		out[i] = e
	}
	return out
}

// Unknown returns the actions in suggestions that t has no entry for.
func Unknown(suggestions []policy.Suggestion, t *Table) []string {
	var missing []string
	for _, s := range suggestions {
		if _, ok := t.Lookup(s.Action); !ok {
			missing = append(missing, s.Action)
		}
	}
	return missing
}
