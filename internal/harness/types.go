package harness

// TraceSuggestion is one suggestion emitted at a step.
type TraceSuggestion struct {
	Action   string `json:"action"`
	Priority int    `json:"priority"`
	Key      string `json:"key,omitempty"`
}

// TraceEvent records what one step produced.
type TraceEvent struct {
	Step        int               `json:"step"`
	AtMS        int64             `json:"at_ms"`
	Action      string            `json:"action"`
	Matched     []string          `json:"matched_rules"`
	Suggestions []TraceSuggestion `json:"suggestions"`
}

// Actions returns the suggested action ids in order.
func (e TraceEvent) Actions() []string {
	out := make([]string, len(e.Suggestions))
	for i, s := range e.Suggestions {
		out[i] = s.Action
	}
	return out
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace has one entry per step, in step order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists every failed expectation. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddStep appends a step to the trace.
func (r *Result) AddStep(e TraceEvent) {
	r.Trace = append(r.Trace, e)
}
