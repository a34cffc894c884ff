package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRecorder_FeedsMetricsWithoutStore tests the metrics-only mode.
func TestRecorder_FeedsMetricsWithoutStore(t *testing.T) {
	r := NewRecorder(nil, WithNow(func() time.Time { return t0 }))
	defer r.Stop()

	r.Log(EventReceived, 2*time.Millisecond, nil)
	r.Log(EventReceived, 4*time.Millisecond, nil)
	r.Error("bad payload", map[string]string{"stage": "parse"})

	m := r.Metrics()
	assert.Equal(t, int64(2), m.Counter("event_received"))
	assert.Equal(t, int64(1), m.Counter("error_occurred"))
	assert.Equal(t, 2, m.Histogram("event_received").Count)
}

// TestRecorder_StopFlushesToStore tests that pending events are
// persisted on Stop.
func TestRecorder_StopFlushesToStore(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s, WithSession("session-1"), WithNow(func() time.Time { return t0 }))

	r.Log(DaemonStart, 0, nil)
	r.Log(EventReceived, time.Millisecond, map[string]string{"action": "show_desktop"})
	r.Stop()

	events, err := s.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.Equal(t, "session-1", ev.SessionID)
		assert.NotEmpty(t, ev.ID)
		assert.Equal(t, t0, ev.Timestamp)
	}
}

// TestRecorder_RecordAfterStop tests that late events are ignored safely.
func TestRecorder_RecordAfterStop(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s)
	r.Stop()
	r.Stop()

	assert.NotPanics(t, func() { r.Log(DaemonStop, 0, nil) })
	assert.Equal(t, int64(1), r.Dropped())
}

// TestRecorder_RecordRacingStop tests that every event recorded around
// Stop is either persisted or counted as dropped.
func TestRecorder_RecordRacingStop(t *testing.T) {
	s := openTestStore(t)
	r := NewRecorder(s)

	const writers, perWriter = 8, 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				r.Log(EventReceived, 0, nil)
			}
		}()
	}
	r.Stop()
	wg.Wait()

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, writers*perWriter, n+int(r.Dropped()))
}

// TestRecorder_ErrorKeepsCallerProperties tests that Error does not
// mutate its input.
func TestRecorder_ErrorKeepsCallerProperties(t *testing.T) {
	r := NewRecorder(nil)
	props := map[string]string{"stage": "match"}
	r.Error("boom", props)
	assert.Equal(t, map[string]string{"stage": "match"}, props)
}
