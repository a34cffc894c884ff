package telemetry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// errorRateThreshold flags reports whose error share exceeds 5%.
	errorRateThreshold = 0.05

	// slowThreshold flags event types whose average duration exceeds it.
	slowThreshold = time.Second
)

// TimeRange is the span covered by a report.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Hours returns the span length in hours.
func (r TimeRange) Hours() float64 {
	return r.End.Sub(r.Start).Hours()
}

// Report summarizes stored telemetry.
type Report struct {
	Generated        time.Time                `json:"generated"`
	TotalEvents      int                      `json:"total_events"`
	EventTypeCounts  map[string]int           `json:"event_type_counts"`
	AverageDurations map[string]time.Duration `json:"average_durations"`
	TimeRange        *TimeRange               `json:"time_range,omitempty"`
	ErrorCount       int                      `json:"error_count"`
	Issues           []string                 `json:"issues"`
	Suggestions      []string                 `json:"suggestions"`
}

// Audit builds a report over every event in store.
func Audit(ctx context.Context, store *Store, now time.Time) (Report, error) {
	events, err := store.List(ctx, Filter{})
	if err != nil {
		return Report{}, fmt.Errorf("audit: %w", err)
	}
	return BuildReport(events, now), nil
}

// BuildReport summarizes events.
func BuildReport(events []Event, generated time.Time) Report {
	r := Report{
		Generated:        generated,
		TotalEvents:      len(events),
		EventTypeCounts:  make(map[string]int),
		AverageDurations: make(map[string]time.Duration),
		Issues:           []string{},
		Suggestions:      []string{},
	}
	if len(events) == 0 {
		r.Issues = append(r.Issues, "No telemetry data found")
		return r
	}

	sums := make(map[string]time.Duration)
	timed := make(map[string]int)
	tr := TimeRange{Start: events[0].Timestamp, End: events[0].Timestamp}
	for _, ev := range events {
		typ := string(ev.Type)
		r.EventTypeCounts[typ]++
		if ev.Duration > 0 {
			sums[typ] += ev.Duration
			timed[typ]++
		}
		if ev.Timestamp.Before(tr.Start) {
			tr.Start = ev.Timestamp
		}
		if ev.Timestamp.After(tr.End) {
			tr.End = ev.Timestamp
		}
	}
	r.TimeRange = &tr

	for typ, sum := range sums {
		r.AverageDurations[typ] = sum / time.Duration(timed[typ])
	}

	r.ErrorCount = r.EventTypeCounts[string(ErrorOccurred)]
	if r.ErrorCount > 0 {
		rate := float64(r.ErrorCount) / float64(r.TotalEvents)
		if rate > errorRateThreshold {
			r.Issues = append(r.Issues, fmt.Sprintf("High error rate: %.2f%% (%d/%d)", rate*100, r.ErrorCount, r.TotalEvents))
		}
	}

	for _, typ := range sortedKeys(r.AverageDurations) {
		avg := r.AverageDurations[typ]
		if avg > slowThreshold {
			r.Issues = append(r.Issues, fmt.Sprintf("Slow %s: avg %.2fs", typ, avg.Seconds()))
			r.Suggestions = append(r.Suggestions, fmt.Sprintf("Optimize %s processing", typ))
		}
	}

	if shown := r.EventTypeCounts[string(SuggestionShown)]; shown > 0 {
		r.Suggestions = append(r.Suggestions, fmt.Sprintf("Review %d shown suggestions for relevance", shown))
	}

	return r
}

// Text renders the report for a terminal.
func (r Report) Text() string {
	var b strings.Builder
	fmt.Fprintln(&b, "Shortcut Sage - Dev Audit Report")
	fmt.Fprintf(&b, "Generated: %s\n", r.Generated.Format(time.RFC3339))
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Summary:")
	fmt.Fprintf(&b, "  Total Events: %d\n", r.TotalEvents)
	if r.TimeRange != nil {
		fmt.Fprintf(&b, "  Time Range: %s to %s\n", r.TimeRange.Start.Format(time.RFC3339), r.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(&b, "  Duration: %.2f hours\n", r.TimeRange.Hours())
	}
	fmt.Fprintf(&b, "  Error Count: %d\n", r.ErrorCount)

	if len(r.EventTypeCounts) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Event Type Counts:")
		for _, typ := range sortedKeys(r.EventTypeCounts) {
			fmt.Fprintf(&b, "  %s: %d\n", typ, r.EventTypeCounts[typ])
		}
	}

	if len(r.AverageDurations) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Average Durations:")
		for _, typ := range sortedKeys(r.AverageDurations) {
			fmt.Fprintf(&b, "  %s: %.3fs\n", typ, r.AverageDurations[typ].Seconds())
		}
	}

	if len(r.Issues) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Issues Found:")
		for _, issue := range r.Issues {
			fmt.Fprintf(&b, "  - %s\n", issue)
		}
	}

	if len(r.Suggestions) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Suggestions:")
		for _, s := range r.Suggestions {
			fmt.Fprintf(&b, "  - %s\n", s)
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprint(&b, "End of Report")
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
