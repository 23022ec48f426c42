package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serializes work on one subscriber's alert state. The returned
// unlock function is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates a KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				m.release(key, l)
			})
		}, nil
	case <-ctx.Done():
		m.release(key, l)
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) release(key string, l *keyLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(m.locks, key)
	}
}

// RedisLockerConfig holds configuration for the RedisLocker.
type RedisLockerConfig struct {
	Client redis.UniversalClient

	// Prefix is prepended to every key. Default: "iraq-dust:alert-lock:".
	Prefix string

	// TTL bounds how long a crashed holder keeps the lock. Default: 30s.
	TTL time.Duration

	// RetryInterval is the pause between acquisition attempts. Default: 50ms.
	RetryInterval time.Duration
}

// DefaultRedisLockerConfig returns the default configuration.
func DefaultRedisLockerConfig() RedisLockerConfig {
	return RedisLockerConfig{
		Prefix:        "iraq-dust:alert-lock:",
		TTL:           30 * time.Second,
		RetryInterval: 50 * time.Millisecond,
	}
}

// RedisLocker is a Locker shared by several pipeline processes. It holds
// each lock with SET NX PX and releases it only if the token still matches.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

var errLockHeld = errors.New("lock held")

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// NewRedisLocker creates a RedisLocker.
func NewRedisLocker(cfg RedisLockerConfig) (*RedisLocker, error) {
	if cfg.Client == nil {
		return nil, errors.New("redis locker requires a client")
	}
	def := DefaultRedisLockerConfig()
	if cfg.Prefix == "" {
		cfg.Prefix = def.Prefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = def.RetryInterval
	}
	return &RedisLocker{
		client: cfg.Client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		retry:  cfg.RetryInterval,
	}, nil
}

// Lock polls until the key is acquired or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	k := l.prefix + key
	token := uuid.NewString()

	acquire := func() error {
		ok, err := l.client.SetNX(ctx, k, token, l.ttl).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(l.retry), ctx)
	if err := backoff.Retry(acquire, b); err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", key, err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be done; release on a fresh one.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = unlockScript.Run(releaseCtx, l.client, []string{k}, token).Err()
		})
	}, nil
}

var (
	_ Locker = (*KeyedMutex)(nil)
	_ Locker = (*RedisLocker)(nil)
)
