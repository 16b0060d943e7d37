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

type nopLog struct{}

func (nopLog) Debugf(string, ...any) {}
func (nopLog) Infof(string, ...any)  {}
func (nopLog) Warnf(string, ...any)  {}
func (nopLog) Errorf(string, ...any) {}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func countingFetch(calls *int32, body []byte) FetchFunc {
	return func(context.Context) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		return body, nil
	}
}

func TestGetOrRefreshFetchesOncePerBucket(t *testing.T) {
	clock := &fakeClock{now: time.Date(2023, 4, 25, 11, 1, 0, 0, time.UTC)}
	s := New(0, nopLog{})
	s.SetClock(clock)

	var calls int32
	fetch := countingFetch(&calls, []byte("body-a"))

	for i := 0; i < 5; i++ {
		body, hit, err := s.GetOrRefresh(context.Background(), "0", fetch)
		require.NoError(t, err)
		assert.Equal(t, []byte("body-a"), body)
		assert.Equal(t, i > 0, hit)
	}
	assert.Equal(t, int32(1), calls)

	// Still inside the same bucket.
	clock.advance(20 * time.Minute)
	_, hit, err := s.GetOrRefresh(context.Background(), "0", fetch)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, int32(1), calls)

	// Next bucket forces a refresh.
	clock.advance(10 * time.Minute)
	_, hit, err = s.GetOrRefresh(context.Background(), "0", fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(2), calls)
}

func TestGetOrRefreshKeysAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Date(2023, 4, 25, 11, 0, 0, 0, time.UTC)}
	s := New(0, nopLog{})
	s.SetClock(clock)

	var a, b int32
	_, _, err := s.GetOrRefresh(context.Background(), "0", countingFetch(&a, []byte("nat")))
	require.NoError(t, err)
	_, _, err = s.GetOrRefresh(context.Background(), "5", countingFetch(&b, []byte("reg")))
	require.NoError(t, err)

	assert.Equal(t, int32(1), a)
	assert.Equal(t, int32(1), b)
	assert.Equal(t, 2, s.Len())
}

func TestGetOrRefreshCoalescesConcurrentCallers(t *testing.T) {
	clock := &fakeClock{now: time.Date(2023, 4, 25, 11, 0, 0, 0, time.UTC)}
	s := New(0, nopLog{})
	s.SetClock(clock)

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("shared"), nil
	}

	const n = 8
	var wg sync.WaitGroup
	results := make([][]byte, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _, err := s.GetOrRefresh(context.Background(), "0", fetch)
			require.NoError(t, err)
			results[i] = body
		}(i)
	}

	// Let all goroutines pile up behind the single flight, then release it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls, "concurrent callers must share one upstream fetch")
	for _, body := range results {
		assert.Equal(t, []byte("shared"), body)
	}
}

func TestGetOrRefreshFetchErrorNotCached(t *testing.T) {
	clock := &fakeClock{now: time.Date(2023, 4, 25, 11, 0, 0, 0, time.UTC)}
	s := New(0, nopLog{})
	s.SetClock(clock)

	boom := errors.New("upstream down")
	_, _, err := s.GetOrRefresh(context.Background(), "0", func(context.Context) ([]byte, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())

	var calls int32
	_, hit, err := s.GetOrRefresh(context.Background(), "0", countingFetch(&calls, []byte("ok")))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int32(1), calls, "a failed fetch must not poison the key")
}

func TestSweepEvictsIdleEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2023, 4, 25, 11, 0, 0, 0, time.UTC)}
	s := New(time.Hour, nopLog{})
	s.SetClock(clock)

	var calls int32
	_, _, err := s.GetOrRefresh(context.Background(), "0", countingFetch(&calls, []byte("a")))
	require.NoError(t, err)
	clock.advance(30 * time.Minute)
	_, _, err = s.GetOrRefresh(context.Background(), "NW1", countingFetch(&calls, []byte("b")))
	require.NoError(t, err)

	// "0" is now 30m idle, "NW1" fresh: nothing past the TTL yet.
	assert.Equal(t, 0, s.Sweep(clock.Now()))

	clock.advance(45 * time.Minute)
	assert.Equal(t, 1, s.Sweep(clock.Now()), `only "0" has been idle for over an hour`)
	assert.Equal(t, 1, s.Len())
}

func TestSweepDisabledWithZeroTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2023, 4, 25, 11, 0, 0, 0, time.UTC)}
	s := New(0, nopLog{})
	s.SetClock(clock)

	var calls int32
	_, _, err := s.GetOrRefresh(context.Background(), "0", countingFetch(&calls, []byte("a")))
	require.NoError(t, err)
	clock.advance(100 * time.Hour)
	assert.Equal(t, 0, s.Sweep(clock.Now()))
	assert.Equal(t, 1, s.Len())
}
