package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// DefaultLockTimeout bounds how long Acquire waits for a contended row.
const DefaultLockTimeout = 5 * time.Second

// Locker serialises access to inventory rows. Acquire takes every key in
// SortKeys order so two callers sharing rows can never deadlock.
type Locker interface {
	Acquire(ctx context.Context, keys []Key) (release func(), err error)
}

// LockObserver receives lock wait timings; observability.Metrics implements it.
type LockObserver interface {
	ObserveLockWait(d time.Duration, acquired bool)
}

func conflictError(key Key, timeout time.Duration) error {
	return fmt.Errorf("inventory: lock %s not acquired within %s: %w", key, timeout, shared.ErrConcurrencyConflict)
}

type rowLock struct {
	sem  chan struct{}
	refs int
}

// LocalLocker holds per-row locks in process memory.
type LocalLocker struct {
	mu       sync.Mutex
	rows     map[Key]*rowLock
	timeout  time.Duration
	observer LockObserver
}

// NewLocalLocker constructs a LocalLocker. A zero timeout uses DefaultLockTimeout.
func NewLocalLocker(timeout time.Duration, observer LockObserver) *LocalLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &LocalLocker{rows: make(map[Key]*rowLock), timeout: timeout, observer: observer}
}

func (l *LocalLocker) ref(key Key) *rowLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.rows[key]
	if !ok {
		lock = &rowLock{sem: make(chan struct{}, 1)}
		l.rows[key] = lock
	}
	lock.refs++
	return lock
}

func (l *LocalLocker) unref(key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.rows[key]
	if !ok {
		return
	}
	lock.refs--
	if lock.refs == 0 {
		delete(l.rows, key)
	}
}

// Acquire locks keys in global order, waiting at most the configured timeout.
func (l *LocalLocker) Acquire(ctx context.Context, keys []Key) (func(), error) {
	start := time.Now()
	sorted := SortKeys(keys)
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	held := make([]Key, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.mu.Lock()
			lock := l.rows[held[i]]
			l.mu.Unlock()
			<-lock.sem
			l.unref(held[i])
		}
	}
	for _, key := range sorted {
		lock := l.ref(key)
		select {
		case lock.sem <- struct{}{}:
			held = append(held, key)
		case <-ctx.Done():
			l.unref(key)
			release()
			l.observe(start, false)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, conflictError(key, l.timeout)
			}
			return nil, ctx.Err()
		}
	}
	l.observe(start, true)
	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *LocalLocker) observe(start time.Time, acquired bool) {
	if l.observer != nil {
		l.observer.ObserveLockWait(time.Since(start), acquired)
	}
}

// releaseScript deletes the lock only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds per-row locks in Redis so several service replicas
// share them. Each lock expires after ttl in case its holder dies.
type RedisLocker struct {
	client   redis.UniversalClient
	timeout  time.Duration
	ttl      time.Duration
	retry    time.Duration
	observer LockObserver
}

// NewRedisLocker constructs a RedisLocker.
func NewRedisLocker(client redis.UniversalClient, timeout time.Duration, observer LockObserver) *RedisLocker {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &RedisLocker{client: client, timeout: timeout, ttl: 30 * time.Second, retry: 10 * time.Millisecond, observer: observer}
}

// Acquire locks keys in global order using SET NX with a per-call token.
func (l *RedisLocker) Acquire(ctx context.Context, keys []Key) (func(), error) {
	start := time.Now()
	sorted := SortKeys(keys)
	token := uuid.NewString()
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	held := make([]string, 0, len(sorted))
	release := func() {
		// Released with a fresh context: the caller's may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(releaseCtx, l.client, []string{held[i]}, token).Err()
		}
	}
	for _, key := range sorted {
		redisKey := shared.InventoryRowLockKey(key.LocationID, key.ProductID)
		for {
			ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
			if err != nil && ctx.Err() == nil {
				release()
				l.observe(start, false)
				return nil, fmt.Errorf("inventory: redis lock %s: %w", key, err)
			}
			if ok {
				held = append(held, redisKey)
				break
			}
			select {
			case <-time.After(l.retry):
				continue
			case <-ctx.Done():
			}
			release()
			l.observe(start, false)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, conflictError(key, l.timeout)
			}
			return nil, ctx.Err()
		}
	}
	l.observe(start, true)
	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *RedisLocker) observe(start time.Time, acquired bool) {
	if l.observer != nil {
		l.observer.ObserveLockWait(time.Since(start), acquired)
	}
}
