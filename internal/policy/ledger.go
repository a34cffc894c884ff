package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Ledger records when each action was last emitted.
//
// The ledger grows with the number of distinct actions ever suggested and
// is never pruned; action cardinality is fixed by configuration.
type Ledger interface {
	// Last returns the last emission time of action.
	Last(action string) (time.Time, bool)
	// Record stores at as the last emission time of action.
	Record(action string, at time.Time)
	// Reset forgets all entries.
	Reset()
}

// BatchLedger is implemented by ledgers that pay a round trip per call.
// Apply then reads every candidate in one call and records every emitted
// action in one call.
type BatchLedger interface {
	Ledger
	// LastAll returns the last emission time of each known action.
	LastAll(actions []string) map[string]time.Time
	// RecordAll stores at as the last emission time of every action.
	RecordAll(actions []string, at time.Time)
}

// MemoryLedger is the default process-local ledger.
type MemoryLedger struct {
	mu      sync.RWMutex
	emitted map[string]time.Time
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{emitted: make(map[string]time.Time)}
}

func (l *MemoryLedger) Last(action string) (time.Time, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.emitted[action]
	return t, ok
}

func (l *MemoryLedger) Record(action string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emitted[action] = at
}

func (l *MemoryLedger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.emitted)
}

// Len returns the number of tracked actions.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.emitted)
}

const (
	// redisKeyPrefix namespaces ledger keys: sage:cooldown:<action>.
	redisKeyPrefix = "sage:cooldown:"

	defaultRedisTimeout = 50 * time.Millisecond

	// defaultRedisBackoff is how long the ledger stops calling Redis after
	// a failed call.
	defaultRedisBackoff = time.Second
)

// RedisOptions returns client options that bound every ledger call by
// defaultRedisTimeout. go-redis only honors context deadlines on socket
// I/O when ContextTimeoutEnabled is set, so the socket timeouts are
// bounded as well, and retries are disabled.
func RedisOptions(addr string) *redis.Options {
	return &redis.Options{
		Addr:                  addr,
		DialTimeout:           defaultRedisTimeout,
		ReadTimeout:           defaultRedisTimeout,
		WriteTimeout:          defaultRedisTimeout,
		PoolTimeout:           defaultRedisTimeout,
		ContextTimeoutEnabled: true,
		MaxRetries:            -1,
	}
}

// RedisLedger shares cooldowns between daemon instances (e.g. one per
// seat or session) through Redis. Values are unix nanoseconds.
//
// Redis errors fail soft: a failed read behaves as "never emitted" and a
// failed write is dropped, both logged. After a failure the ledger skips
// Redis for a backoff period, so an unresponsive server costs at most one
// timeout per backoff period instead of one per event.
type RedisLedger struct {
	client    *redis.Client
	timeout   time.Duration
	backoff   time.Duration
	downUntil atomic.Int64 // unix nanos; 0 when healthy
	logger    *slog.Logger
}

// NewRedisLedger connects to addr and verifies the connection.
func NewRedisLedger(addr string, logger *slog.Logger) (*RedisLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(RedisOptions(addr))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info("cooldown ledger connected", "backend", "redis", "addr", addr)
	return NewRedisLedgerWithClient(client, logger), nil
}

// NewRedisLedgerWithClient wraps an existing client without pinging it.
// The client should be built from RedisOptions; a client with default
// options can block each call for seconds on an unresponsive server.
func NewRedisLedgerWithClient(client *redis.Client, logger *slog.Logger) *RedisLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLedger{
		client:  client,
		timeout: defaultRedisTimeout,
		backoff: defaultRedisBackoff,
		logger:  logger,
	}
}

func (l *RedisLedger) key(action string) string {
	return redisKeyPrefix + action
}

// available reports whether the ledger is outside a backoff period.
func (l *RedisLedger) available() bool {
	until := l.downUntil.Load()
	return until == 0 || time.Now().UnixNano() >= until
}

// fail logs err and starts a backoff period.
func (l *RedisLedger) fail(msg string, err error, args ...any) {
	l.downUntil.Store(time.Now().Add(l.backoff).UnixNano())
	l.logger.Warn(msg, append(args, "error", err, "backoff", l.backoff)...)
}

func (l *RedisLedger) Last(action string) (time.Time, bool) {
	t, ok := l.LastAll([]string{action})[action]
	return t, ok
}

// LastAll reads every action with a single MGET.
func (l *RedisLedger) LastAll(actions []string) map[string]time.Time {
	out := make(map[string]time.Time, len(actions))
	if len(actions) == 0 || !l.available() {
		return out
	}

	keys := make([]string, len(actions))
	for i, a := range actions {
		keys[i] = l.key(a)
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	vals, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		l.fail("cooldown ledger read failed", err, "actions", actions)
		return out
	}
	l.downUntil.Store(0)

	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // nil: never emitted
		}
		nanos, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			l.logger.Warn("cooldown ledger entry corrupt", "action", actions[i], "value", s)
			continue
		}
		out[actions[i]] = time.Unix(0, nanos)
	}
	return out
}

func (l *RedisLedger) Record(action string, at time.Time) {
	l.RecordAll([]string{action}, at)
}

// RecordAll writes every action in one pipelined round trip.
func (l *RedisLedger) RecordAll(actions []string, at time.Time) {
	if len(actions) == 0 || !l.available() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	_, err := l.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, a := range actions {
			pipe.Set(ctx, l.key(a), at.UnixNano(), 0)
		}
		return nil
	})
	if err != nil {
		l.fail("cooldown ledger write failed", err, "actions", actions)
		return
	}
	l.downUntil.Store(0)
}

// Reset deletes every ledger key. It ignores the backoff period.
func (l *RedisLedger) Reset() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	iter := l.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		l.logger.Warn("cooldown ledger scan failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := l.client.Del(ctx, keys...).Err(); err != nil {
		l.logger.Warn("cooldown ledger reset failed", "error", err)
	}
}

// Close releases the Redis connection.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}
