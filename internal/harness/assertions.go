package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] @%dms %s -> %v\n", ev.Step, ev.AtMS, ev.Action, ev.Actions())
	}

	return buf.String()
}

// EvaluateAssertions runs every assertion against the trace and returns
// all failures. Unknown assertion types are reported as failures.
func EvaluateAssertions(trace []TraceEvent, assertions []Assertion) []error {
	var errs []error
	for _, a := range assertions {
		if err := evaluateAssertion(trace, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func evaluateAssertion(trace []TraceEvent, a Assertion) error {
	switch a.Type {
	case AssertSuggested:
		return assertSuggested(trace, a)
	case AssertNeverSuggested:
		return assertNeverSuggested(trace, a)
	case AssertSuggestionCount:
		return assertSuggestionCount(trace, a)
	case AssertSuggestionOrder:
		return assertSuggestionOrder(trace, a)
	case AssertRuleCount:
		return assertRuleCount(trace, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// suggestionCount counts the steps at which action was suggested.
func suggestionCount(trace []TraceEvent, action string) int {
	n := 0
	for _, ev := range trace {
		for _, s := range ev.Suggestions {
			if s.Action == action {
				n++
			}
		}
	}
	return n
}

func assertSuggested(trace []TraceEvent, a Assertion) error {
	if suggestionCount(trace, a.Action) > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertSuggested,
		Expected: fmt.Sprintf("%s suggested at least once", a.Action),
		Actual:   "never suggested",
		Trace:    trace,
	}
}

func assertNeverSuggested(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		for _, s := range ev.Suggestions {
			if s.Action == a.Action {
				return &AssertionError{
					Type:     AssertNeverSuggested,
					Expected: fmt.Sprintf("%s never suggested", a.Action),
					Actual:   fmt.Sprintf("suggested at step %d", ev.Step),
					Trace:    trace,
				}
			}
		}
	}
	return nil
}

func assertSuggestionCount(trace []TraceEvent, a Assertion) error {
	got := suggestionCount(trace, a.Action)
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertSuggestionCount,
		Expected: fmt.Sprintf("%s suggested %d times", a.Action, a.Count),
		Actual:   fmt.Sprintf("suggested %d times", got),
		Trace:    trace,
	}
}

// assertSuggestionOrder checks that the listed actions were first
// suggested in the given relative order. Other actions may interleave.
func assertSuggestionOrder(trace []TraceEvent, a Assertion) error {
	var firsts []string
	seen := make(map[string]bool)
	for _, ev := range trace {
		for _, s := range ev.Suggestions {
			if !seen[s.Action] {
				seen[s.Action] = true
				firsts = append(firsts, s.Action)
			}
		}
	}

	idx := 0
	for _, action := range firsts {
		if idx < len(a.Actions) && action == a.Actions[idx] {
			idx++
		}
	}
	if idx == len(a.Actions) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSuggestionOrder,
		Expected: fmt.Sprintf("first suggested in order %v", a.Actions),
		Actual:   fmt.Sprintf("first-suggestion order %v", firsts),
		Trace:    trace,
	}
}

func assertRuleCount(trace []TraceEvent, a Assertion) error {
	got := 0
	for _, ev := range trace {
		for _, name := range ev.Matched {
			if name == a.Rule {
				got++
			}
		}
	}
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertRuleCount,
		Expected: fmt.Sprintf("rule %s matched %d times", a.Rule, a.Count),
		Actual:   fmt.Sprintf("matched %d times", got),
		Trace:    trace,
	}
}
