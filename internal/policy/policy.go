// Package policy turns matcher output into the final suggestion list.
//
// Apply runs, in order: flatten, deduplicate by action (highest priority
// wins), cooldown suppression, stable priority sort, top-N truncation, and
// finally records the emission time of every surviving suggestion.
//
// The cooldown ledger is the only persistent mutable state of the
// pipeline. It is owned by an Engine instance (or injected through
// WithLedger), never process-global.
package policy

import (
	"slices"
	"sync"
	"time"

	"github.com/roach88/shortcut-sage/internal/matcher"
)

// DefaultTopN is the number of suggestions surfaced per event unless the
// caller asks otherwise.
const DefaultTopN = 3

// Suggestion is a ranked suggestion selected for emission.
type Suggestion struct {
	Action   string `json:"action"`
	Priority int    `json:"priority"`
	Rule     string `json:"rule,omitempty"` // rule that contributed the winning instance
}

// Engine applies cooldown, ranking and truncation.
//
// Apply is expected to be called from a single serialized dispatch point.
// MarkAccepted and AcceptanceCount may be called from any goroutine.
type Engine struct {
	ledger Ledger

	mu       sync.Mutex
	accepted map[string]int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLedger replaces the default in-memory cooldown ledger.
func WithLedger(l Ledger) Option {
	return func(e *Engine) {
		e.ledger = l
	}
}

// New creates an Engine with an empty ledger.
func New(opts ...Option) *Engine {
	e := &Engine{
		ledger:   NewMemoryLedger(),
		accepted: make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// candidate is a flattened suggestion carrying its rule's cooldown and its
// position in declaration order (rule order, then template order).
type candidate struct {
	Suggestion
	cooldown time.Duration
	seq      int
}

// Apply selects at most topN suggestions from matches at instant now.
//
// Only suggestions that are returned update the ledger; suppressed or
// truncated candidates leave their cooldown untouched. topN <= 0 yields an
// empty list.
func (e *Engine) Apply(matches []matcher.Match, now time.Time, topN int) []Suggestion {
	if topN <= 0 || len(matches) == 0 {
		return []Suggestion{}
	}

	candidates := dedupe(flatten(matches))
	last := e.lastEmitted(candidates)

	eligible := candidates[:0]
	for _, c := range candidates {
		if coolingDown(c, last, now) {
			continue
		}
		eligible = append(eligible, c)
	}

	slices.SortStableFunc(eligible, func(a, b candidate) int {
		if a.Priority != b.Priority {
			return b.Priority - a.Priority
		}
		return a.seq - b.seq
	})

	if len(eligible) > topN {
		eligible = eligible[:topN]
	}

	out := make([]Suggestion, len(eligible))
	for i, c := range eligible {
		out[i] = c.Suggestion
	}
	e.record(out, now)
	return out
}

// lastEmitted reads the ledger entry of every candidate.
func (e *Engine) lastEmitted(candidates []candidate) map[string]time.Time {
	if b, ok := e.ledger.(BatchLedger); ok {
		actions := make([]string, len(candidates))
		for i, c := range candidates {
			actions[i] = c.Action
		}
		return b.LastAll(actions)
	}
	last := make(map[string]time.Time, len(candidates))
	for _, c := range candidates {
		if t, ok := e.ledger.Last(c.Action); ok {
			last[c.Action] = t
		}
	}
	return last
}

func (e *Engine) record(emitted []Suggestion, now time.Time) {
	if len(emitted) == 0 {
		return
	}
	if b, ok := e.ledger.(BatchLedger); ok {
		actions := make([]string, len(emitted))
		for i, s := range emitted {
			actions[i] = s.Action
		}
		b.RecordAll(actions, now)
		return
	}
	for _, s := range emitted {
		e.ledger.Record(s.Action, now)
	}
}

// coolingDown reports whether c was emitted less than its cooldown ago.
// Elapsed time exactly equal to the cooldown is eligible again.
func coolingDown(c candidate, last map[string]time.Time, now time.Time) bool {
	t, ok := last[c.Action]
	if !ok {
		return false
	}
	return now.Sub(t) < c.cooldown
}

// flatten expands every match into candidates in declaration order.
func flatten(matches []matcher.Match) []candidate {
	var out []candidate
	seq := 0
	for _, m := range matches {
		for _, s := range m.Suggestions {
			out = append(out, candidate{
				Suggestion: Suggestion{Action: s.Action, Priority: s.Priority, Rule: m.Rule.Name},
				cooldown:   m.Rule.Cooldown,
				seq:        seq,
			})
			seq++
		}
	}
	return out
}

// dedupe keeps one candidate per action: the highest priority instance,
// or the earliest declared one among equal priorities.
func dedupe(candidates []candidate) []candidate {
	best := make(map[string]int, len(candidates))
	var out []candidate
	for _, c := range candidates {
		i, seen := best[c.Action]
		if !seen {
			best[c.Action] = len(out)
			out = append(out, c)
			continue
		}
		if c.Priority > out[i].Priority {
			out[i] = c
		}
	}
	return out
}

// MarkAccepted records that the user acted on a suggestion for action.
func (e *Engine) MarkAccepted(action string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.accepted[action]++
}

// AcceptanceCount returns how many times action was accepted.
func (e *Engine) AcceptanceCount(action string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accepted[action]
}

// ClearCooldowns forgets every recorded emission.
func (e *Engine) ClearCooldowns() {
	e.ledger.Reset()
}

// LastEmitted exposes the ledger entry for action.
func (e *Engine) LastEmitted(action string) (time.Time, bool) {
	return e.ledger.Last(action)
}
