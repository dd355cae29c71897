// Package lock provides a Redis-backed mutual-exclusion lock, adapted
// from the teacher's multi-replica deduplication lock: SET NX PX to
// acquire, a value-checked Lua DEL to release so one holder can never
// drop another's lock after its TTL already rotated ownership. Used by
// the key-value factor's SQLite backend to serialize writes across
// multiple runtime processes sharing one database file.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config tunes lock acquisition. TTL bounds how long a crashed holder
// can block everyone else; RetryInterval/MaxRetries bound how long
// Acquire spins against a lock already held.
type Config struct {
	TTL           time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig matches the teacher's distributed-lock defaults.
func DefaultConfig() Config {
	return Config{TTL: 30 * time.Second, MaxRetries: 3, RetryInterval: 100 * time.Millisecond}
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// DistributedLock is a single named lock, identified by key, backed by
// one Redis client shared across every lock an app holds.
type DistributedLock struct {
	client *redis.Client
	key    string
	value  string
	cfg    Config
	logger *slog.Logger

	acquired bool
}

// New builds a lock for key. The lock's identity value is generated
// once here so Release can never delete a key some other holder has
// since acquired.
func New(client *redis.Client, key string, cfg Config, logger *slog.Logger) *DistributedLock {
	if cfg.TTL <= 0 {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DistributedLock{client: client, key: key, value: newLockValue(), cfg: cfg, logger: logger}
}

func newLockValue() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("lock_%d", time.Now().UnixNano())
	}
	return "lock_" + hex.EncodeToString(b)
}

// Acquire attempts SET NX PX once and then retries up to cfg.MaxRetries
// more times (cfg.MaxRetries+1 attempts in all), sleeping
// cfg.RetryInterval between attempts. It returns
// false, nil (not an error) when every attempt finds the lock already
// held by someone else.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		ok, err := l.client.SetNX(ctx, l.key, l.value, l.cfg.TTL).Result()
		if err != nil {
			return false, fmt.Errorf("lock: acquiring %q: %w", l.key, err)
		}
		if ok {
			l.acquired = true
			return true, nil
		}
		if attempt == l.cfg.MaxRetries {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
	return false, nil
}

// Release deletes the lock key, but only if it still holds l's value —
// a lock this holder's TTL already expired on must not be deleted out
// from under whoever reacquired it. Releasing a lock never acquired is
// a no-op, not an error.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	result, err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Result()
	if err != nil {
		return fmt.Errorf("lock: releasing %q: %w", l.key, err)
	}
	l.acquired = false
	if n, _ := result.(int64); n != 1 {
		l.logger.Warn("lock already expired or reacquired by another holder", "key", l.key)
	}
	return nil
}

// IsAcquired reports whether this lock currently believes it holds key.
func (l *DistributedLock) IsAcquired() bool { return l.acquired }
