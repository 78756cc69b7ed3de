package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestTTL_HitWithinWindow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTL[[]string]("test", 15*time.Minute).WithClock(clock.Now)

	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]string, error) {
		calls.Add(1)
		return []string{"tx-1", "tx-2"}, nil
	}

	first, err := c.GetOrFetch(context.Background(), "sbank:team1-1", fetch)
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, []string{"tx-1", "tx-2"}, first.Value)

	clock.Advance(2 * time.Minute)
	second, err := c.GetOrFetch(context.Background(), "sbank:team1-1", fetch)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, 2*time.Minute, second.Age)
	assert.GreaterOrEqual(t, second.Age, time.Duration(0))
	assert.EqualValues(t, 1, calls.Load())
}

func TestTTL_RefetchAfterExpiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTL[int]("test", 15*time.Minute).WithClock(clock.Now)

	var calls atomic.Int32
	fetch := func(ctx context.Context) (int, error) {
		return int(calls.Add(1)), nil
	}

	_, err := c.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	r, err := c.GetOrFetch(context.Background(), "k", fetch)
	require.NoError(t, err)
	assert.False(t, r.FromCache)
	assert.Equal(t, 2, r.Value)
	assert.EqualValues(t, 2, calls.Load())
}

func TestTTL_ConcurrentMissesShareOneFetch(t *testing.T) {
	c := NewTTL[int]("test", time.Minute)

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.GetOrFetch(context.Background(), "k", fetch)
			if err == nil {
				results[i] = r.Value
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestTTL_ErrorsAreNotCached(t *testing.T) {
	c := NewTTL[int]("test", time.Minute)
	boom := errors.New("upstream down")

	_, err := c.GetOrFetch(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	r, err := c.GetOrFetch(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, r.Value)
}

func TestTTL_InvalidateAndPurge(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTL[int]("test", time.Minute).WithClock(clock.Now)
	one := func(ctx context.Context) (int, error) { return 1, nil }

	_, _ = c.GetOrFetch(context.Background(), "a", one)
	_, _ = c.GetOrFetch(context.Background(), "b", one)
	require.Equal(t, 2, c.Len())

	c.Invalidate("a")
	assert.Equal(t, 1, c.Len())

	clock.Advance(time.Minute)
	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Len())
}

func TestTTL_PurgeKeepsFreshEntries(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)}
	c := NewTTL[int]("test", 15*time.Minute).WithClock(clock.Now)
	one := func(ctx context.Context) (int, error) { return 1, nil }

	_, _ = c.GetOrFetch(context.Background(), "team1-1:vbank:acc-1", one)
	clock.Advance(10 * time.Minute)
	_, _ = c.GetOrFetch(context.Background(), "team1-1:vbank:acc-2", one)
	clock.Advance(5 * time.Minute)

	assert.Equal(t, 1, c.Purge())
	assert.Equal(t, 0, c.Purge())
	assert.Equal(t, 1, c.Len())

	r, err := c.GetOrFetch(context.Background(), "team1-1:vbank:acc-2", func(ctx context.Context) (int, error) {
		return 2, nil
	})
	require.NoError(t, err)
	assert.True(t, r.FromCache)
	assert.Equal(t, 1, r.Value)
}

func TestTTL_CancelledCallerDoesNotAbortSharedFetch(t *testing.T) {
	c := NewTTL[int]("test", time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	var fetchErr atomic.Value
	fetch := func(ctx context.Context) (int, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			fetchErr.Store(err)
			return 0, err
		}
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return 42, nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(first, "k", fetch)
		firstDone <- err
	}()
	<-started

	secondDone := make(chan Result[int], 1)
	go func() {
		r, err := c.GetOrFetch(context.Background(), "k", fetch)
		assert.NoError(t, err)
		secondDone <- r
	}()

	cancel()
	assert.ErrorIs(t, <-firstDone, context.Canceled)

	close(release)
	r := <-secondDone
	assert.Equal(t, 42, r.Value)
	assert.Nil(t, fetchErr.Load())
	assert.Equal(t, 1, c.Len())
}
