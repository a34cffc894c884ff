package pipeline

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/shortcut-sage/internal/buffer"
	"github.com/roach88/shortcut-sage/internal/event"
	"github.com/roach88/shortcut-sage/internal/features"
	"github.com/roach88/shortcut-sage/internal/matcher"
	"github.com/roach88/shortcut-sage/internal/policy"
	"github.com/roach88/shortcut-sage/internal/rules"
	"github.com/roach88/shortcut-sage/internal/shortcut"
	"github.com/roach88/shortcut-sage/internal/telemetry"
)

// Recorder receives telemetry for processed events.
// Implemented by *telemetry.Recorder.
type Recorder interface {
	Record(ev telemetry.Event)
}

type nopRecorder struct{}

func (nopRecorder) Record(telemetry.Event) {}

// Result is the outcome of processing one event.
type Result struct {
	TraceID     string              `json:"trace_id"`
	Action      string              `json:"action"`
	Matched     []string            `json:"matched_rules"`
	Suggestions []shortcut.Enriched `json:"suggestions"`
}

// Pipeline runs events through the suggestion stages.
type Pipeline struct {
	mu     sync.Mutex
	buffer *buffer.Store
	policy *policy.Engine

	matcher   *matcher.Matcher
	shortcuts atomic.Pointer[shortcut.Table]

	topN     int
	traces   TraceIDGenerator
	recorder Recorder
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTopN sets the maximum number of suggestions per event.
func WithTopN(n int) Option {
	return func(p *Pipeline) {
		p.topN = n
	}
}

// WithPolicy replaces the default policy engine (e.g. to share a Redis
// ledger).
func WithPolicy(e *policy.Engine) Option {
	return func(p *Pipeline) {
		p.policy = e
	}
}

// WithRecorder sends telemetry to r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// WithTraceIDs sets the trace ID generator.
func WithTraceIDs(g TraceIDGenerator) Option {
	return func(p *Pipeline) {
		p.traces = g
	}
}

// New creates a pipeline with an empty rule set and shortcut table.
// window is the EventStore retention horizon.
func New(window time.Duration, opts ...Option) (*Pipeline, error) {
	store, err := buffer.New(window)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	p := &Pipeline{
		buffer:   store,
		matcher:  matcher.New(nil),
		topN:     policy.DefaultTopN,
		traces:   UUIDv7Generator{},
		recorder: nopRecorder{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.policy == nil {
		p.policy = policy.New()
	}
	p.shortcuts.Store(shortcut.NewTable(nil))
	return p, nil
}

// SetRules installs set as the active rule set. Rules with unsupported
// context types are kept but never match; they are logged here.
func (p *Pipeline) SetRules(set *rules.RuleSet) {
	for _, name := range p.matcher.Swap(set) {
		r, _ := set.Lookup(name)
		p.logger.Warn("rule has unsupported context type, skipping",
			"rule", name,
			"type", r.Context.Type,
		)
	}
	p.logger.Debug("rules installed", "count", set.Len(), "version", set.Version())
}

// SetShortcuts installs t as the active shortcut table.
func (p *Pipeline) SetShortcuts(t *shortcut.Table) {
	if t == nil {
		t = shortcut.NewTable(nil)
	}
	p.shortcuts.Store(t)
	p.logger.Debug("shortcuts installed", "count", t.Len())
}

// Rules returns the active rule set.
func (p *Pipeline) Rules() *rules.RuleSet {
	return p.matcher.Rules()
}

// Shortcuts returns the active shortcut table.
func (p *Pipeline) Shortcuts() *shortcut.Table {
	return p.shortcuts.Load()
}

// Policy exposes the policy engine for acceptance tracking.
func (p *Pipeline) Policy() *policy.Engine {
	return p.policy
}

// Process runs ev through every stage at instant now.
func (p *Pipeline) Process(ev event.Event, now time.Time) Result {
	start := time.Now()
	traceID := p.traces.Generate()

	p.mu.Lock()
	p.buffer.Add(ev)
	f := features.Extract(p.buffer, now)
	matches := p.matcher.Match(f)
	selected := p.policy.Apply(matches, now, p.topN)
	p.mu.Unlock()

	table := p.shortcuts.Load()
	res := Result{
		TraceID:     traceID,
		Action:      ev.Action,
		Matched:     make([]string, len(matches)),
		Suggestions: shortcut.Enrich(selected, table),
	}
	for i, m := range matches {
		res.Matched[i] = m.Rule.Name
	}

	if missing := shortcut.Unknown(selected, table); len(missing) > 0 {
		p.logger.Debug("suggestions without shortcut entry", "trace", traceID, "actions", missing)
	}

	elapsed := time.Since(start)
	p.logger.Debug("event processed",
		"trace", traceID,
		"action", ev.Action,
		"recent", f.EventCount,
		"matched", len(matches),
		"suggested", len(selected),
		"duration", elapsed,
	)

	p.recorder.Record(telemetry.Event{
		Type:      telemetry.EventReceived,
		Timestamp: now,
		Duration:  elapsed,
		Properties: map[string]string{
			"type":   string(ev.Type),
			"action": ev.Action,
		},
	})
	if len(selected) > 0 {
		actions := make([]string, len(selected))
		for i, s := range selected {
			actions[i] = s.Action
		}
		p.recorder.Record(telemetry.Event{
			Type:      telemetry.SuggestionShown,
			Timestamp: now,
			Properties: map[string]string{
				"count":   strconv.Itoa(len(selected)),
				"actions": strings.Join(actions, ","),
			},
		})
	}

	return res
}

// ProcessJSON parses raw and processes it. Malformed payloads are
// rejected before they reach the EventStore.
func (p *Pipeline) ProcessJSON(raw []byte, now time.Time) (Result, error) {
	ev, err := event.Parse(raw)
	if err != nil {
		p.logger.Warn("rejected event", "error", err)
		p.recorder.Record(telemetry.Event{
			Type:       telemetry.ErrorOccurred,
			Timestamp:  now,
			Properties: map[string]string{"error": err.Error(), "stage": "parse"},
		})
		return Result{}, err
	}
	return p.Process(ev, now), nil
}

// Accept records that the user acted on a suggestion.
func (p *Pipeline) Accept(action string, now time.Time) {
	action = event.NormalizeAction(action)
	p.policy.MarkAccepted(action)
	p.recorder.Record(telemetry.Event{
		Type:       telemetry.SuggestionAccepted,
		Timestamp:  now,
		Properties: map[string]string{"action": action},
	})
}

// BufferState returns the stored events relative to the newest one.
func (p *Pipeline) BufferState() []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.Snapshot()
}

// Window returns the EventStore retention horizon.
func (p *Pipeline) Window() time.Duration {
	return p.buffer.Window()
}

// Reset clears the buffer and the cooldown ledger.
func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buffer.Clear()
	p.policy.ClearCooldowns()
}
