package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Step: 0, AtMS: 0, Action: "show_desktop", Matched: []string{"r1"},
			Suggestions: []TraceSuggestion{{Action: "overview", Priority: 80}, {Action: "tile_left", Priority: 60}}},
		{Step: 1, AtMS: 1000, Action: "show_desktop", Matched: []string{"r1"},
			Suggestions: []TraceSuggestion{}},
		{Step: 2, AtMS: 2000, Action: "switch_desktop", Matched: []string{"r1", "r2"},
			Suggestions: []TraceSuggestion{{Action: "move_to_desktop", Priority: 50}, {Action: "overview", Priority: 40}}},
	}
}

func TestEvaluateAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
	}{
		{"suggested", Assertion{Type: AssertSuggested, Action: "tile_left"}, true},
		{"suggested missing", Assertion{Type: AssertSuggested, Action: "close_window"}, false},
		{"never suggested", Assertion{Type: AssertNeverSuggested, Action: "close_window"}, true},
		{"never suggested violated", Assertion{Type: AssertNeverSuggested, Action: "overview"}, false},
		{"count", Assertion{Type: AssertSuggestionCount, Action: "overview", Count: 2}, true},
		{"count zero", Assertion{Type: AssertSuggestionCount, Action: "close_window", Count: 0}, true},
		{"count wrong", Assertion{Type: AssertSuggestionCount, Action: "overview", Count: 1}, false},
		{"order", Assertion{Type: AssertSuggestionOrder, Actions: []string{"overview", "move_to_desktop"}}, true},
		{"order with gaps", Assertion{Type: AssertSuggestionOrder, Actions: []string{"overview", "tile_left", "move_to_desktop"}}, true},
		{"order reversed", Assertion{Type: AssertSuggestionOrder, Actions: []string{"move_to_desktop", "overview"}}, false},
		{"order unknown action", Assertion{Type: AssertSuggestionOrder, Actions: []string{"close_window"}}, false},
		{"rule count", Assertion{Type: AssertRuleCount, Rule: "r1", Count: 3}, true},
		{"rule count wrong", Assertion{Type: AssertRuleCount, Rule: "r2", Count: 2}, false},
		{"unknown type", Assertion{Type: "trace_contains"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleTrace(), []Assertion{tt.assertion})
			if tt.pass {
				assert.Empty(t, errs)
			} else {
				assert.Len(t, errs, 1)
			}
		})
	}
}

// TestAssertionError_Message tests that failures carry the trace.
func TestAssertionError_Message(t *testing.T) {
	errs := EvaluateAssertions(sampleTrace(), []Assertion{
		{Type: AssertSuggestionCount, Action: "overview", Count: 5},
	})
	require.Len(t, errs, 1)

	var ae *AssertionError
	require.ErrorAs(t, errs[0], &ae)
	assert.Equal(t, AssertSuggestionCount, ae.Type)

	msg := errs[0].Error()
	assert.Contains(t, msg, "Assertion failed: suggestion_count")
	assert.Contains(t, msg, "Expected: overview suggested 5 times")
	assert.Contains(t, msg, "Actual: suggested 2 times")
	assert.Contains(t, msg, "[2] @2000ms switch_desktop -> [move_to_desktop overview]")
}

func TestEvaluateAssertions_CollectsAll(t *testing.T) {
	errs := EvaluateAssertions(sampleTrace(), []Assertion{
		{Type: AssertSuggested, Action: "a"},
		{Type: AssertSuggested, Action: "overview"},
		{Type: AssertSuggested, Action: "b"},
	})
	assert.Len(t, errs, 2)
}
