package harness

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/shortcut-sage/internal/buffer"
	"github.com/roach88/shortcut-sage/internal/config"
	"github.com/roach88/shortcut-sage/internal/event"
	"github.com/roach88/shortcut-sage/internal/pipeline"
	"github.com/roach88/shortcut-sage/internal/rules"
	"github.com/roach88/shortcut-sage/internal/shortcut"
)

// Epoch is the instant at_ms offsets are measured from.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh pipeline with its own buffer and
// cooldown ledger. Execution flow:
//  1. Validate and install the scenario's rules and shortcuts
//  2. Feed each step's event at Epoch+at_ms
//  3. Record matched rules and suggestions per step
//  4. Check expect clauses and assertions
//
// Returns an error only if the scenario cannot be executed (invalid rules,
// bad window). Expectation failures are reported in Result.Errors.
func Run(s *Scenario) (*Result, error) {
	return RunWithLogger(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// RunWithLogger is Run with an explicit pipeline logger.
func RunWithLogger(s *Scenario, logger *slog.Logger) (*Result, error) {
	if s == nil {
		return nil, fmt.Errorf("scenario is nil")
	}

	p, err := build(s, logger)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	result := NewResult()
	for i, step := range s.Steps {
		at := Epoch.Add(time.Duration(step.AtMS) * time.Millisecond)
		typ := event.Type(step.Type)
		if typ == "" {
			typ = event.TypeTest
		}

		res := p.Process(event.New(at, typ, step.Action, step.Metadata), at)
		te := toTraceEvent(i, step.AtMS, res)
		result.AddStep(te)

		if step.Expect == nil {
			continue
		}
		want := make([]string, len(step.Expect))
		for j, a := range step.Expect {
			want[j] = event.NormalizeAction(a)
		}
		if got := te.Actions(); !slices.Equal(want, got) {
			result.AddError(fmt.Sprintf("steps[%d] (%s @%dms): expected suggestions %v, got %v",
				i, te.Action, step.AtMS, want, got))
		}
	}

	for _, err := range EvaluateAssertions(result.Trace, s.Assertions) {
		result.AddError(err.Error())
	}

	return result, nil
}

func build(s *Scenario, logger *slog.Logger) (*pipeline.Pipeline, error) {
	window := buffer.DefaultWindow
	if s.WindowSeconds > 0 {
		window = time.Duration(s.WindowSeconds * float64(time.Second))
	}

	// Config files need at least one entry; scenarios may omit either list.
	set := rules.NewRuleSet(config.Version, nil)
	if len(s.Rules) > 0 {
		var err error
		set, err = config.BuildRules(config.RulesDocument{Version: config.Version, Rules: s.Rules}, s.Name)
		if err != nil {
			return nil, err
		}
	}

	var shortcuts []rules.Shortcut
	if len(s.Shortcuts) > 0 {
		var err error
		shortcuts, err = config.BuildShortcuts(config.ShortcutsDocument{Version: config.Version, Shortcuts: s.Shortcuts}, s.Name)
		if err != nil {
			return nil, err
		}
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithTraceIDs(pipeline.NewFixedGenerator()),
	}
	if s.TopN != nil {
		opts = append(opts, pipeline.WithTopN(*s.TopN))
	}

	p, err := pipeline.New(window, opts...)
	if err != nil {
		return nil, err
	}
	p.SetRules(set)
	p.SetShortcuts(shortcut.NewTable(shortcuts))
	return p, nil
}

func toTraceEvent(step int, atMS int64, res pipeline.Result) TraceEvent {
	te := TraceEvent{
		Step:        step,
		AtMS:        atMS,
		Action:      res.Action,
		Matched:     res.Matched,
		Suggestions: make([]TraceSuggestion, len(res.Suggestions)),
	}
	if te.Matched == nil {
		te.Matched = []string{}
	}
	for i, s := range res.Suggestions {
		te.Suggestions[i] = TraceSuggestion{
			Action:   s.Action,
			Priority: s.Priority,
			Key:      s.Key,
		}
	}
	return te
}
