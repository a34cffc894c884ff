package telemetry

import (
	"sync"
	"time"
)

// HistogramStats summarizes a duration histogram in seconds.
type HistogramStats struct {
	Count int     `json:"count"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

type histogram struct {
	count    int
	sum      time.Duration
	min, max time.Duration
}

func (h *histogram) observe(d time.Duration) {
	if h.count == 0 || d < h.min {
		h.min = d
	}
	if d > h.max {
		h.max = d
	}
	h.count++
	h.sum += d
}

func (h *histogram) stats() HistogramStats {
	if h.count == 0 {
		return HistogramStats{}
	}
	return HistogramStats{
		Count: h.count,
		Avg:   (h.sum / time.Duration(h.count)).Seconds(),
		Min:   h.min.Seconds(),
		Max:   h.max.Seconds(),
	}
}

// Snapshot is the exported view of Metrics.
type Snapshot struct {
	UptimeSeconds float64                   `json:"uptime"`
	Counters      map[string]int64          `json:"counters"`
	Histograms    map[string]HistogramStats `json:"histograms"`
	EventCount    int64                     `json:"event_count"`
}

// Metrics aggregates counters and timing histograms. Safe for concurrent use.
type Metrics struct {
	mu         sync.Mutex
	start      time.Time
	counters   map[string]int64
	histograms map[string]*histogram
	events     int64
}

// NewMetrics creates empty metrics whose uptime is measured from start.
func NewMetrics(start time.Time) *Metrics {
	return &Metrics{
		start:      start,
		counters:   make(map[string]int64),
		histograms: make(map[string]*histogram),
	}
}

// Observe counts ev and records its duration when it has one.
func (m *Metrics) Observe(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events++
	m.counters[string(ev.Type)]++
	if ev.Duration > 0 {
		m.timing(string(ev.Type), ev.Duration)
	}
}

// Increment adds delta to the named counter.
func (m *Metrics) Increment(name string, delta int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += delta
}

// RecordTiming adds d to the named histogram.
func (m *Metrics) RecordTiming(name string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timing(name, d)
}

func (m *Metrics) timing(name string, d time.Duration) {
	h, ok := m.histograms[name]
	if !ok {
		h = &histogram{}
		m.histograms[name] = h
	}
	h.observe(d)
}

// Counter returns the named counter.
func (m *Metrics) Counter(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Histogram returns the stats of the named histogram.
func (m *Metrics) Histogram(name string) HistogramStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.histograms[name]; ok {
		return h.stats()
	}
	return HistogramStats{}
}

// Export returns a copy of all metrics as of now.
func (m *Metrics) Export(now time.Time) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Snapshot{
		UptimeSeconds: now.Sub(m.start).Seconds(),
		Counters:      make(map[string]int64, len(m.counters)),
		Histograms:    make(map[string]HistogramStats, len(m.histograms)),
		EventCount:    m.events,
	}
	for k, v := range m.counters {
		s.Counters[k] = v
	}
	for k, h := range m.histograms {
		s.Histograms[k] = h.stats()
	}
	return s
}

// Reset clears counters and histograms. Uptime is unaffected.
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.counters)
	clear(m.histograms)
	m.events = 0
}
