package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shortcut-sage/internal/matcher"
	"github.com/roach88/shortcut-sage/internal/rules"
)

var t0 = time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)

// Test helper to build a match contributed by one rule
func makeMatch(name string, cooldown time.Duration, suggest ...rules.Suggestion) matcher.Match {
	return matcher.Match{
		Rule: rules.Rule{
			Name:     name,
			Context:  rules.Context{Type: rules.ContextEventSequence, Pattern: rules.Pattern{"x"}},
			Suggest:  suggest,
			Cooldown: cooldown,
		},
		Suggestions: suggest,
	}
}

func actions(s []Suggestion) []string {
	out := make([]string, len(s))
	for i, sg := range s {
		out[i] = sg.Action
	}
	return out
}

// TestApply_AfterShowDesktop tests the basic two-suggestion rule.
func TestApply_AfterShowDesktop(t *testing.T) {
	e := New()
	m := makeMatch("after_show_desktop", 5*time.Minute,
		rules.Suggestion{Action: "overview", Priority: 80},
		rules.Suggestion{Action: "tile_left", Priority: 60},
	)

	got := e.Apply([]matcher.Match{m}, t0, DefaultTopN)
	require.Len(t, got, 2)
	assert.Equal(t, Suggestion{Action: "overview", Priority: 80, Rule: "after_show_desktop"}, got[0])
	assert.Equal(t, Suggestion{Action: "tile_left", Priority: 60, Rule: "after_show_desktop"}, got[1])
}

// TestApply_CooldownBoundary tests suppression inside the cooldown and
// eligibility once exactly the cooldown has elapsed.
func TestApply_CooldownBoundary(t *testing.T) {
	m := makeMatch("r", 5*time.Second, rules.Suggestion{Action: "a", Priority: 50})

	t.Run("suppressed within cooldown", func(t *testing.T) {
		e := New()
		require.Len(t, e.Apply([]matcher.Match{m}, t0, 3), 1)
		assert.Empty(t, e.Apply([]matcher.Match{m}, t0.Add(2*time.Second), 3))
	})

	t.Run("eligible at exact boundary", func(t *testing.T) {
		e := New()
		require.Len(t, e.Apply([]matcher.Match{m}, t0, 3), 1)
		assert.Len(t, e.Apply([]matcher.Match{m}, t0.Add(5*time.Second), 3), 1)
	})

	t.Run("eligible after cooldown", func(t *testing.T) {
		e := New()
		require.Len(t, e.Apply([]matcher.Match{m}, t0, 3), 1)
		assert.Len(t, e.Apply([]matcher.Match{m}, t0.Add(6*time.Second), 3), 1)
	})

	t.Run("suppression does not extend cooldown", func(t *testing.T) {
		e := New()
		require.Len(t, e.Apply([]matcher.Match{m}, t0, 3), 1)
		require.Empty(t, e.Apply([]matcher.Match{m}, t0.Add(4*time.Second), 3))
		assert.Len(t, e.Apply([]matcher.Match{m}, t0.Add(5*time.Second), 3), 1)
	})
}

// TestApply_ZeroCooldown tests that a zero cooldown never suppresses.
func TestApply_ZeroCooldown(t *testing.T) {
	e := New()
	m := makeMatch("r", 0, rules.Suggestion{Action: "a", Priority: 50})

	require.Len(t, e.Apply([]matcher.Match{m}, t0, 3), 1)
	assert.Len(t, e.Apply([]matcher.Match{m}, t0, 3), 1)
}

// TestApply_CooldownIsPerAction tests that an action emitted by one rule
// is suppressed when another rule suggests it.
func TestApply_CooldownIsPerAction(t *testing.T) {
	e := New()
	first := makeMatch("r1", time.Minute, rules.Suggestion{Action: "overview", Priority: 50})
	second := makeMatch("r2", time.Minute, rules.Suggestion{Action: "overview", Priority: 90})

	require.Len(t, e.Apply([]matcher.Match{first}, t0, 3), 1)
	assert.Empty(t, e.Apply([]matcher.Match{second}, t0.Add(time.Second), 3))
}

// TestApply_RanksAndTruncates tests priority ordering and top-N selection
// across several rules.
func TestApply_RanksAndTruncates(t *testing.T) {
	e := New()
	matches := []matcher.Match{
		makeMatch("low", time.Minute, rules.Suggestion{Action: "d", Priority: 40}),
		makeMatch("mid", time.Minute, rules.Suggestion{Action: "c", Priority: 50}),
		makeMatch("high", time.Minute, rules.Suggestion{Action: "a", Priority: 90}),
		makeMatch("upper", time.Minute, rules.Suggestion{Action: "b", Priority: 70}),
	}

	got := e.Apply(matches, t0, 3)
	assert.Equal(t, []string{"a", "b", "c"}, actions(got))
	assert.Equal(t, 90, got[0].Priority)
	assert.Equal(t, 70, got[1].Priority)
	assert.Equal(t, 50, got[2].Priority)
}

// TestApply_TruncatedCandidatesKeepCooldown tests that candidates cut by
// top-N are not recorded as emitted.
func TestApply_TruncatedCandidatesKeepCooldown(t *testing.T) {
	e := New()
	matches := []matcher.Match{
		makeMatch("r", time.Minute,
			rules.Suggestion{Action: "a", Priority: 90},
			rules.Suggestion{Action: "b", Priority: 10},
		),
	}

	got := e.Apply(matches, t0, 1)
	assert.Equal(t, []string{"a"}, actions(got))

	_, recorded := e.LastEmitted("b")
	assert.False(t, recorded)

	at, recorded := e.LastEmitted("a")
	require.True(t, recorded)
	assert.Equal(t, t0, at)
}

// TestApply_StableOnEqualPriority tests that ties keep declaration order.
func TestApply_StableOnEqualPriority(t *testing.T) {
	e := New()
	matches := []matcher.Match{
		makeMatch("r1", time.Minute,
			rules.Suggestion{Action: "first", Priority: 50},
			rules.Suggestion{Action: "second", Priority: 50},
		),
		makeMatch("r2", time.Minute, rules.Suggestion{Action: "third", Priority: 50}),
	}

	assert.Equal(t, []string{"first", "second", "third"}, actions(e.Apply(matches, t0, 5)))
}

// TestApply_DedupeKeepsHighestPriority tests that a repeated action is
// emitted once, carrying its highest priority.
func TestApply_DedupeKeepsHighestPriority(t *testing.T) {
	e := New()
	matches := []matcher.Match{
		makeMatch("r1", time.Minute,
			rules.Suggestion{Action: "overview", Priority: 40},
			rules.Suggestion{Action: "tile_left", Priority: 60},
		),
		makeMatch("r2", time.Minute, rules.Suggestion{Action: "overview", Priority: 80}),
	}

	got := e.Apply(matches, t0, 3)
	require.Len(t, got, 2)
	assert.Equal(t, Suggestion{Action: "overview", Priority: 80, Rule: "r2"}, got[0])
	assert.Equal(t, "tile_left", got[1].Action)
}

// TestApply_DedupeTieKeepsEarliest tests that equal-priority duplicates
// resolve to the first declared instance.
func TestApply_DedupeTieKeepsEarliest(t *testing.T) {
	e := New()
	matches := []matcher.Match{
		makeMatch("r1", time.Minute, rules.Suggestion{Action: "overview", Priority: 50}),
		makeMatch("r2", time.Minute, rules.Suggestion{Action: "overview", Priority: 50}),
	}

	got := e.Apply(matches, t0, 3)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].Rule)
}

// TestApply_EmptyInputs tests the degenerate topN and match cases.
func TestApply_EmptyInputs(t *testing.T) {
	m := makeMatch("r", time.Minute, rules.Suggestion{Action: "a", Priority: 50})

	tests := []struct {
		name    string
		matches []matcher.Match
		topN    int
	}{
		{"no matches", nil, 3},
		{"zero top n", []matcher.Match{m}, 0},
		{"negative top n", []matcher.Match{m}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New()
			got := e.Apply(tt.matches, t0, tt.topN)
			assert.NotNil(t, got)
			assert.Empty(t, got)

			_, recorded := e.LastEmitted("a")
			assert.False(t, recorded)
		})
	}
}

// TestClearCooldowns tests that clearing the ledger re-enables actions.
func TestClearCooldowns(t *testing.T) {
	e := New()
	m := makeMatch("r", time.Hour, rules.Suggestion{Action: "a", Priority: 50})

	require.Len(t, e.Apply([]matcher.Match{m}, t0, 3), 1)
	require.Empty(t, e.Apply([]matcher.Match{m}, t0.Add(time.Second), 3))

	e.ClearCooldowns()
	assert.Len(t, e.Apply([]matcher.Match{m}, t0.Add(2*time.Second), 3), 1)
}

// TestMarkAccepted tests acceptance counting.
func TestMarkAccepted(t *testing.T) {
	e := New()
	assert.Equal(t, 0, e.AcceptanceCount("overview"))

	e.MarkAccepted("overview")
	e.MarkAccepted("overview")
	e.MarkAccepted("tile_left")

	assert.Equal(t, 2, e.AcceptanceCount("overview"))
	assert.Equal(t, 1, e.AcceptanceCount("tile_left"))
}

// TestWithLedger tests that an injected ledger is consulted.
func TestWithLedger(t *testing.T) {
	ledger := NewMemoryLedger()
	ledger.Record("a", t0)

	e := New(WithLedger(ledger))
	m := makeMatch("r", time.Minute, rules.Suggestion{Action: "a", Priority: 50})

	assert.Empty(t, e.Apply([]matcher.Match{m}, t0.Add(time.Second), 3))
	assert.Equal(t, 1, ledger.Len())
}

func TestMemoryLedger(t *testing.T) {
	l := NewMemoryLedger()

	_, ok := l.Last("a")
	assert.False(t, ok)

	l.Record("a", t0)
	l.Record("a", t0.Add(time.Second))
	got, ok := l.Last("a")
	require.True(t, ok)
	assert.Equal(t, t0.Add(time.Second), got)

	l.Reset()
	assert.Equal(t, 0, l.Len())
}
