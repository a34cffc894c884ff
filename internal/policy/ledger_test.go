package policy

import (
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/shortcut-sage/internal/matcher"
	"github.com/roach88/shortcut-sage/internal/rules"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMiniLedger starts an in-process Redis and a ledger on top of it.
func newMiniLedger(t *testing.T) (*miniredis.Miniredis, *RedisLedger) {
	t.Helper()
	mr := miniredis.RunT(t)
	ledger, err := NewRedisLedger(mr.Addr(), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return mr, ledger
}

// silentListener accepts connections and never replies.
func silentListener(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return ln.Addr().String()
}

func TestNewRedisLedger_Unreachable(t *testing.T) {
	_, err := NewRedisLedger("127.0.0.1:1", discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis connection failed")
}

func TestRedisOptions_BoundCalls(t *testing.T) {
	opts := RedisOptions("localhost:6379")
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.True(t, opts.ContextTimeoutEnabled)
	assert.Equal(t, defaultRedisTimeout, opts.ReadTimeout)
	assert.Equal(t, defaultRedisTimeout, opts.WriteTimeout)
	assert.Equal(t, defaultRedisTimeout, opts.DialTimeout)
	assert.Equal(t, -1, opts.MaxRetries)
}

// TestRedisLedger_FailsSoft tests that a refused connection behaves as an
// empty ledger instead of suppressing suggestions.
func TestRedisLedger_FailsSoft(t *testing.T) {
	ledger := NewRedisLedgerWithClient(redis.NewClient(RedisOptions("127.0.0.1:1")), discardLogger())
	defer ledger.Close()

	ledger.Record("overview", t0)
	_, ok := ledger.Last("overview")
	assert.False(t, ok)
	ledger.Reset()

	e := New(WithLedger(ledger))
	m := makeMatch("r", time.Minute, rules.Suggestion{Action: "overview", Priority: 50})
	assert.Len(t, e.Apply([]matcher.Match{m}, t0, 3), 1)
	assert.Len(t, e.Apply([]matcher.Match{m}, t0.Add(time.Second), 3), 1, "nothing was recorded")
}

// TestRedisLedger_UnresponsiveServer tests that a server which accepts
// connections but never answers cannot stall Apply.
func TestRedisLedger_UnresponsiveServer(t *testing.T) {
	addr := silentListener(t)
	ledger := NewRedisLedgerWithClient(redis.NewClient(RedisOptions(addr)), discardLogger())
	defer ledger.Close()

	e := New(WithLedger(ledger))
	m := makeMatch("r", time.Minute,
		rules.Suggestion{Action: "a", Priority: 90},
		rules.Suggestion{Action: "b", Priority: 80},
		rules.Suggestion{Action: "c", Priority: 70},
		rules.Suggestion{Action: "d", Priority: 60},
	)

	start := time.Now()
	out := e.Apply([]matcher.Match{m}, t0, 3)
	elapsed := time.Since(start)
	assert.Equal(t, []string{"a", "b", "c"}, actions(out))
	assert.Less(t, elapsed, 100*time.Millisecond)

	// Within the backoff period Redis is not called at all.
	start = time.Now()
	out = e.Apply([]matcher.Match{m}, t0.Add(time.Second), 3)
	assert.Len(t, out, 3)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestRedisLedger_RoundTrip(t *testing.T) {
	mr, ledger := newMiniLedger(t)

	_, ok := ledger.Last("overview")
	assert.False(t, ok)

	at := time.Date(2025, 1, 2, 10, 0, 0, 123456789, time.UTC)
	ledger.Record("overview", at)

	got, ok := ledger.Last("overview")
	require.True(t, ok)
	assert.True(t, at.Equal(got), "got %s, want %s", got, at)

	raw, err := mr.Get("sage:cooldown:overview")
	require.NoError(t, err)
	assert.Equal(t, "1735812000123456789", raw)
}

func TestRedisLedger_LastAll(t *testing.T) {
	mr, ledger := newMiniLedger(t)

	ledger.RecordAll([]string{"a", "b"}, t0)
	require.NoError(t, mr.Set("sage:cooldown:corrupt", "not-a-number"))

	got := ledger.LastAll([]string{"a", "b", "missing", "corrupt"})
	assert.Len(t, got, 2)
	assert.True(t, t0.Equal(got["a"]))
	assert.True(t, t0.Equal(got["b"]))
}

func TestRedisLedger_ResetOnlyOwnKeys(t *testing.T) {
	mr, ledger := newMiniLedger(t)

	ledger.Record("overview", t0)
	ledger.Record("tile_left", t0)
	require.NoError(t, mr.Set("other:key", "keep"))

	ledger.Reset()

	assert.False(t, mr.Exists("sage:cooldown:overview"))
	assert.False(t, mr.Exists("sage:cooldown:tile_left"))
	assert.True(t, mr.Exists("other:key"))
	_, ok := ledger.Last("overview")
	assert.False(t, ok)
}

// TestRedisLedger_SharedAcrossEngines tests that an emission by one engine
// suppresses the same action on another engine using the same server.
func TestRedisLedger_SharedAcrossEngines(t *testing.T) {
	mr, first := newMiniLedger(t)
	second, err := NewRedisLedger(mr.Addr(), discardLogger())
	require.NoError(t, err)
	defer second.Close()

	e1 := New(WithLedger(first))
	e2 := New(WithLedger(second))
	m := makeMatch("r", 5*time.Second, rules.Suggestion{Action: "overview", Priority: 80})

	assert.Equal(t, []string{"overview"}, actions(e1.Apply([]matcher.Match{m}, t0, 3)))
	assert.Empty(t, e2.Apply([]matcher.Match{m}, t0.Add(2*time.Second), 3))
	assert.Equal(t, []string{"overview"}, actions(e2.Apply([]matcher.Match{m}, t0.Add(5*time.Second), 3)))

	last, ok := e1.LastEmitted("overview")
	require.True(t, ok)
	assert.True(t, t0.Add(5*time.Second).Equal(last))
}

// TestRedisLedger_RecoversAfterBackoff tests that the ledger resumes once
// the server is back and the backoff period has passed.
func TestRedisLedger_RecoversAfterBackoff(t *testing.T) {
	mr, ledger := newMiniLedger(t)
	ledger.backoff = 20 * time.Millisecond

	mr.Close()
	ledger.Record("overview", t0)
	assert.False(t, ledger.available())

	require.NoError(t, mr.Restart())
	time.Sleep(30 * time.Millisecond)

	ledger.Record("overview", t0)
	got, ok := ledger.Last("overview")
	require.True(t, ok)
	assert.True(t, t0.Equal(got))
}
