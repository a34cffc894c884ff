package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shortcut-sage/internal/rules"
)

func payload(action string) []byte {
	return []byte(fmt.Sprintf(`{"timestamp":"2025-01-02T10:00:00Z","type":"test","action":%q}`, action))
}

func startDispatcher(t *testing.T, d *Dispatcher) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, cancelFn := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()
	return cancelFn, errCh
}

// TestDispatcher_SubmitReturnsResult tests the request/reply round trip.
func TestDispatcher_SubmitReturnsResult(t *testing.T) {
	p := newPipeline(t, []rules.Rule{
		rule("r", "show_desktop", time.Minute, rules.Suggestion{Action: "overview", Priority: 80}),
	})
	d := NewDispatcher(p, WithClock(NewFixedClock(t0)))
	cancel, done := startDispatcher(t, d)
	defer cancel()

	res, err := d.Submit(context.Background(), payload("show_desktop"))
	require.NoError(t, err)
	require.Len(t, res.Suggestions, 1)
	assert.Equal(t, "overview", res.Suggestions[0].Action)

	d.Stop()
	assert.NoError(t, <-done)
}

// TestDispatcher_ParseErrorReturned tests that bad payloads are answered
// with the parse error.
func TestDispatcher_ParseErrorReturned(t *testing.T) {
	d := NewDispatcher(newPipeline(t, nil), WithClock(NewFixedClock(t0)))
	cancel, _ := startDispatcher(t, d)
	defer cancel()

	_, err := d.Submit(context.Background(), []byte(`{}`))
	assert.Error(t, err)
}

// TestDispatcher_ResultHook tests the post-process hook.
func TestDispatcher_ResultHook(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	d := NewDispatcher(newPipeline(t, nil),
		WithClock(NewFixedClock(t0)),
		WithResultHook(func(r Result) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, r.Action)
		}),
	)
	cancel, _ := startDispatcher(t, d)
	defer cancel()

	_, err := d.Submit(context.Background(), payload("a"))
	require.NoError(t, err)
	_, err = d.Submit(context.Background(), payload("b"))
	require.NoError(t, err)

	// The hook runs after the reply is sent; wait for the second call.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, seen)
}

// TestDispatcher_ConcurrentSubmitters tests that every event is processed
// exactly once.
func TestDispatcher_ConcurrentSubmitters(t *testing.T) {
	p := newPipeline(t, nil)
	d := NewDispatcher(p, WithClock(NewFixedClock(t0)))
	cancel, _ := startDispatcher(t, d)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := d.Submit(context.Background(), payload(fmt.Sprintf("action_%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, p.BufferState(), 20)
}

// TestDispatcher_SubmitAfterStop tests the closed error.
func TestDispatcher_SubmitAfterStop(t *testing.T) {
	d := NewDispatcher(newPipeline(t, nil))
	d.Stop()

	_, err := d.Submit(context.Background(), payload("a"))
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

// TestDispatcher_RunStopsOnCancel tests context cancellation.
func TestDispatcher_RunStopsOnCancel(t *testing.T) {
	d := NewDispatcher(newPipeline(t, nil))
	cancel, done := startDispatcher(t, d)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

// TestDispatcher_SubmitHonorsContext tests a caller giving up while the
// loop is not running.
func TestDispatcher_SubmitHonorsContext(t *testing.T) {
	d := NewDispatcher(newPipeline(t, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Submit(ctx, payload("a"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, d.Pending())
}

func TestRequestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()
	require.True(t, q.Enqueue(request{raw: []byte("1")}))
	require.True(t, q.Enqueue(request{raw: []byte("2")}))

	r, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "1", string(r.raw))
	r, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "2", string(r.raw))
	_, ok = q.TryDequeue()
	assert.False(t, ok)

	q.Close()
	q.Close()
	assert.False(t, q.Enqueue(request{}))
}
