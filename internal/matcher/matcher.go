// Package matcher evaluates configured rules against extracted features.
//
// The active RuleSet lives behind an atomic pointer. Each Match call loads
// the pointer once, so a concurrent Swap is never observed half-applied.
//
// The matcher performs no deduplication or ranking; every firing rule
// contributes all of its suggestion templates in configured order.
package matcher

import (
	"sync/atomic"

	"github.com/roach88/shortcut-sage/internal/features"
	"github.com/roach88/shortcut-sage/internal/rules"
)

// Match is a firing rule together with the suggestion templates it
// contributes.
type Match struct {
	Rule        rules.Rule
	Suggestions []rules.Suggestion
}

// Matcher evaluates a swappable RuleSet snapshot.
//
// Thread-safety: Match and Swap are safe for concurrent use.
type Matcher struct {
	active atomic.Pointer[rules.RuleSet]
}

// New creates a Matcher over set. A nil set behaves as an empty one.
func New(set *rules.RuleSet) *Matcher {
	m := &Matcher{}
	m.Swap(set)
	return m
}

// Swap atomically installs a new snapshot and returns the names of rules
// whose context type is unsupported (those rules never match).
func (m *Matcher) Swap(set *rules.RuleSet) []string {
	if set == nil {
		set = rules.EmptyRuleSet()
	}
	m.active.Store(set)
	return Unsupported(set)
}

// Rules returns the active snapshot.
func (m *Matcher) Rules() *rules.RuleSet {
	return m.active.Load()
}

// Match returns every rule whose context predicate holds, in declaration
// order. Unsupported context types fail soft: the rule is skipped.
func (m *Matcher) Match(f features.Features) []Match {
	set := m.active.Load()

	var matches []Match
	for _, rule := range set.Rules() {
		if !matchContext(rule.Context, f) {
			continue
		}
		matches = append(matches, Match{
			Rule:        rule,
			Suggestions: append([]rules.Suggestion(nil), rule.Suggest...),
		})
	}
	return matches
}

// Unsupported lists the names of rules in set with an unsupported
// context type, in declaration order.
func Unsupported(set *rules.RuleSet) []string {
	var names []string
	for _, r := range set.Rules() {
		if !r.Context.Type.IsSupported() {
			names = append(names, r.Name)
		}
	}
	return names
}
