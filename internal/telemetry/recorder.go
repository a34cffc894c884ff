package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	// queueSize bounds pending writes; Record drops when full.
	queueSize = 1000

	// batchSize triggers an immediate flush.
	batchSize = 32

	// flushInterval bounds how long an event waits in a partial batch.
	flushInterval = 250 * time.Millisecond

	writeTimeout = 5 * time.Second
)

// Recorder feeds Metrics synchronously and persists events to a Store in
// the background. Record never blocks.
type Recorder struct {
	store   *Store
	metrics *Metrics
	session string
	logger  *slog.Logger
	now     func() time.Time

	queue   chan Event
	stopCh  chan struct{}
	mu      sync.RWMutex // guards stopped against enqueues racing Stop
	stopped bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the logger for write failures and drops.
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = l
	}
}

// WithSession overrides the generated session ID.
func WithSession(id string) RecorderOption {
	return func(r *Recorder) {
		r.session = id
	}
}

// WithNow overrides the wall clock used for event timestamps.
func WithNow(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder starts a recorder. store may be nil, in which case events
// only reach Metrics.
func NewRecorder(store *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:   store,
		session: NewID(),
		logger:  slog.Default(),
		now:     time.Now,
		queue:   make(chan Event, queueSize),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.metrics = NewMetrics(r.now())

	if r.store != nil {
		r.wg.Add(1)
		go r.process()
	}
	return r
}

// Session returns the session ID stamped on every event.
func (r *Recorder) Session() string {
	return r.session
}

// Metrics returns the live metrics.
func (r *Recorder) Metrics() *Metrics {
	return r.metrics
}

// Dropped returns how many events were not persisted, either because the
// queue was full or because the recorder was already stopped.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Record stores ev. Missing ID, session and timestamp are filled in.
func (r *Recorder) Record(ev Event) {
	if ev.ID == "" {
		ev.ID = NewID()
	}
	if ev.SessionID == "" {
		ev.SessionID = r.session
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.now()
	}

	r.metrics.Observe(ev)

	if r.store == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
		r.logger.Warn("telemetry queue full, dropping event", "type", ev.Type)
	}
}

// Log records an event of typ at the current time.
func (r *Recorder) Log(typ EventType, duration time.Duration, props map[string]string) {
	r.Record(Event{Type: typ, Duration: duration, Properties: props})
}

// Error records an error_occurred event.
func (r *Recorder) Error(msg string, props map[string]string) {
	p := make(map[string]string, len(props)+1)
	for k, v := range props {
		p[k] = v
	}
	p["error"] = msg
	r.Log(ErrorOccurred, 0, p)
}

// Stop flushes pending events and stops the background writer. Events
// recorded after Stop count as dropped.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.stopCh)
	r.mu.Unlock()

	r.wg.Wait()
}

func (r *Recorder) process() {
	defer r.wg.Done()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		r.flush(batch)
		batch = make([]Event, 0, batchSize)
	}

	for {
		select {
		case ev := <-r.queue:
			batch = append(batch, ev)
			if len(batch) >= batchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-r.stopCh:
			for {
				select {
				case ev := <-r.queue:
					batch = append(batch, ev)
					if len(batch) >= batchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(events []Event) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.store.Write(ctx, events...); err != nil {
		r.logger.Warn("telemetry write failed", "count", len(events), "error", err)
	}
}
