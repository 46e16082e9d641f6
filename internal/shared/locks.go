package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PartLockKey builds the lock key guarding a part's batches and transaction chain.
func PartLockKey(partID int64) string {
	return fmt.Sprintf("inventory:part:%d:lock", partID)
}

// AdjustmentLockKey builds the lock key serialising decisions on one adjustment.
func AdjustmentLockKey(adjustmentID int64) string {
	return fmt.Sprintf("inventory:adjustment:%d:lock", adjustmentID)
}

// Locker grants exclusive access to a keyed critical section.
type Locker interface {
	// Lock blocks until the key is held or the acquisition timeout elapses, in which
	// case it returns ErrLockTimeout. The returned func releases the lock.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LockParts acquires the part locks for ids in ascending id order and returns a
// release func for all of them. Duplicate ids are locked once.
func LockParts(ctx context.Context, locker Locker, ids []int64) (func(), error) {
	ordered := slices.Clone(ids)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	held := make([]func(), 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}
	for _, id := range ordered {
		unlock, err := locker.Lock(ctx, PartLockKey(id))
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, unlock)
	}
	return release, nil
}

// RetryOnLockTimeout runs fn up to attempts times while it fails with ErrLockTimeout.
func RetryOnLockTimeout(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff * time.Duration(i+1)):
		}
	}
	return err
}

// LocalLocker is an in-process keyed mutex with a bounded wait.
type LocalLocker struct {
	timeout time.Duration

	mu    sync.Mutex
	slots map[string]*lockSlot
}

type lockSlot struct {
	ch   chan struct{}
	refs int
}

// NewLocalLocker builds a LocalLocker waiting at most timeout per acquisition.
func NewLocalLocker(timeout time.Duration) *LocalLocker {
	return &LocalLocker{timeout: timeout, slots: make(map[string]*lockSlot)}
}

// Lock implements Locker.
func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	slot := l.acquireSlot(key)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case slot.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-slot.ch
				l.releaseSlot(key)
			})
		}, nil
	case <-timer.C:
		l.releaseSlot(key)
		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
	case <-ctx.Done():
		l.releaseSlot(key)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) acquireSlot(key string) *lockSlot {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		slot = &lockSlot{ch: make(chan struct{}, 1)}
		l.slots[key] = slot
	}
	slot.refs++
	return slot
}

func (l *LocalLocker) releaseSlot(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot, ok := l.slots[key]
	if !ok {
		return
	}
	slot.refs--
	if slot.refs <= 0 {
		delete(l.slots, key)
	}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker coordinates part locks across service instances with SET NX PX.
type RedisLocker struct {
	client  redis.UniversalClient
	timeout time.Duration
	ttl     time.Duration
	poll    time.Duration
}

// NewRedisLocker builds a RedisLocker. ttl bounds how long a crashed holder blocks others.
func NewRedisLocker(client redis.UniversalClient, timeout, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, timeout: timeout, ttl: ttl, poll: 10 * time.Millisecond}
}

// Lock implements Locker.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := lockToken()
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(l.timeout)
	wait := l.poll
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		if wait < 100*time.Millisecond {
			wait *= 2
		}
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
		})
	}, nil
}

func lockToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("shared: lock token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
