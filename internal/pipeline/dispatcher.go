package pipeline

import (
	"context"
	"errors"
	"log/slog"
)

// ErrDispatcherClosed is returned by Submit after Stop or once Run has
// returned.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Dispatcher serializes events from concurrent sources into a Pipeline.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Dispatcher struct {
	pipeline *Pipeline
	clock    Clock
	queue    *requestQueue
	logger   *slog.Logger
	onResult func(Result)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock sets the source of "now" for processed events.
func WithClock(c Clock) DispatcherOption {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

// WithResultHook calls fn from the Run loop after each successfully
// processed event. fn must not block.
func WithResultHook(fn func(Result)) DispatcherOption {
	return func(d *Dispatcher) {
		d.onResult = fn
	}
}

// WithDispatcherLogger sets the dispatcher logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = l
	}
}

// NewDispatcher creates a dispatcher for p.
func NewDispatcher(p *Pipeline, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		pipeline: p,
		clock:    SystemClock{},
		queue:    newRequestQueue(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit queues raw for processing and waits for its result.
func (d *Dispatcher) Submit(ctx context.Context, raw []byte) (Result, error) {
	req := request{raw: raw, reply: make(chan reply, 1)}
	if !d.queue.Enqueue(req) {
		return Result{}, ErrDispatcherClosed
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case r := <-req.reply:
		return r.result, r.err
	}
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Run processes queued events in FIFO order until ctx is cancelled or
// Stop is called. Requests still queued when Run returns are answered
// with ErrDispatcherClosed.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher starting")
	defer d.drain()

	for {
		if req, ok := d.queue.TryDequeue(); ok {
			d.handle(req)
			continue
		}

		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping: context cancelled")
			d.queue.Close()
			return ctx.Err()

		case <-d.queue.Wait():
			// A closed signal channel fires immediately.
			if d.queue.Len() == 0 && d.closed() {
				d.logger.Info("dispatcher stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue; Run returns once the queue is empty.
func (d *Dispatcher) Stop() {
	d.queue.Close()
}

func (d *Dispatcher) closed() bool {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	return d.queue.closed
}

func (d *Dispatcher) handle(req request) {
	res, err := d.pipeline.ProcessJSON(req.raw, d.clock.Now())
	req.reply <- reply{result: res, err: err}
	if err == nil && d.onResult != nil {
		d.onResult(res)
	}
}

func (d *Dispatcher) drain() {
	for {
		req, ok := d.queue.TryDequeue()
		if !ok {
			return
		}
		req.reply <- reply{err: ErrDispatcherClosed}
	}
}
