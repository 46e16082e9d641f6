package shared

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerTimesOut(t *testing.T) {
	locker := NewLocalLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, PartLockKey(1))
	require.NoError(t, err)

	_, err = locker.Lock(ctx, PartLockKey(1))
	require.ErrorIs(t, err, ErrLockTimeout)
	require.True(t, IsRetryable(err))

	other, err := locker.Lock(ctx, PartLockKey(2))
	require.NoError(t, err)
	other()

	unlock()
	again, err := locker.Lock(ctx, PartLockKey(1))
	require.NoError(t, err)
	again()
}

func TestLocalLockerSerialises(t *testing.T) {
	locker := NewLocalLocker(time.Second)
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "k")
			if err != nil {
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	require.Equal(t, 50, counter)
	require.Empty(t, locker.slots)
}

func TestLockPartsOrdersAndDedups(t *testing.T) {
	rec := &recordingLocker{}
	release, err := LockParts(context.Background(), rec, []int64{9, 2, 10, 2})
	require.NoError(t, err)
	require.Equal(t, []string{PartLockKey(2), PartLockKey(9), PartLockKey(10)}, rec.acquired)
	release()
	require.Equal(t, []string{PartLockKey(10), PartLockKey(9), PartLockKey(2)}, rec.released)
}

func TestLockPartsReleasesOnFailure(t *testing.T) {
	rec := &recordingLocker{failOn: PartLockKey(5)}
	_, err := LockParts(context.Background(), rec, []int64{5, 1, 3})
	require.ErrorIs(t, err, ErrLockTimeout)
	require.Equal(t, []string{PartLockKey(3), PartLockKey(1)}, rec.released)
}

func TestRetryOnLockTimeout(t *testing.T) {
	calls := 0
	err := RetryOnLockTimeout(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return ErrLockTimeout
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = RetryOnLockTimeout(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return ErrLockTimeout
	})
	require.ErrorIs(t, err, ErrLockTimeout)
	require.Equal(t, 2, calls)

	calls = 0
	boom := errors.New("boom")
	err = RetryOnLockTimeout(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, 30*time.Millisecond, time.Minute)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, PartLockKey(7))
	require.NoError(t, err)
	require.True(t, mr.Exists(PartLockKey(7)))

	_, err = locker.Lock(ctx, PartLockKey(7))
	require.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	require.False(t, mr.Exists(PartLockKey(7)))

	unlock2, err := locker.Lock(ctx, PartLockKey(7))
	require.NoError(t, err)
	unlock2()
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client, 30*time.Millisecond, time.Second)
	unlock, err := locker.Lock(context.Background(), "k")
	require.NoError(t, err)

	// the lease expired and another holder took over
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("k", "other-holder"))

	unlock()
	v, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "other-holder", v)
}

type recordingLocker struct {
	failOn   string
	acquired []string
	released []string
}

func (r *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	if key == r.failOn {
		return nil, ErrLockTimeout
	}
	r.acquired = append(r.acquired, key)
	return func() { r.released = append(r.released, key) }, nil
}
