package viewcache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/eventkeeper/internal/invalidation"
)

func countingLoad(calls *int32, value string, deps ...invalidation.Key) LoadFunc[string] {
	return func() (string, []invalidation.Key, error) {
		atomic.AddInt32(calls, 1)
		return value, deps, nil
	}
}

func TestGet_CachesUntilTTL(t *testing.T) {
	c := New(time.Minute, nil)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	var calls int32
	load := countingLoad(&calls, "v1", invalidation.EventKey("e1"))

	v, err := Get(c, "detail:e1", load)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	_, err = Get(c, "detail:e1", load)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls)

	now = now.Add(time.Minute)
	_, err = Get(c, "detail:e1", load)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestInvalidate_EvictsDependentEntries(t *testing.T) {
	c := New(time.Minute, nil)
	var calls int32

	_, _ = Get(c, "detail:e1", countingLoad(&calls, "a", invalidation.EventKey("e1")))
	_, _ = Get(c, "mine:u1", countingLoad(&calls, "b", invalidation.UserKey("u1"), invalidation.EventKey("e2")))
	_, _ = Get(c, "detail:e3", countingLoad(&calls, "c", invalidation.EventKey("e3")))
	require.Equal(t, 3, c.Len())

	c.Invalidate([]invalidation.Key{invalidation.EventKey("e2"), invalidation.EventKey("e1")})

	assert.Equal(t, 1, c.Len())
}

func TestBusSubscription(t *testing.T) {
	c := New(time.Minute, nil)
	bus := invalidation.NewBus(nil)
	bus.Subscribe(c.Invalidate)

	var calls int32
	_, _ = Get(c, "detail:e1", countingLoad(&calls, "a", invalidation.EventKey("e1")))
	bus.Publish(invalidation.EventKey("e1"))

	_, _ = Get(c, "detail:e1", countingLoad(&calls, "a", invalidation.EventKey("e1")))
	assert.Equal(t, int32(2), calls)
}

func TestGet_ErrorNotCached(t *testing.T) {
	c := New(time.Minute, nil)
	boom := errors.New("boom")

	_, err := Get(c, "k", func() (string, []invalidation.Key, error) { return "", nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestGet_InvalidationDuringLoadIsNotStored(t *testing.T) {
	c := New(time.Minute, nil)

	_, err := Get(c, "k", func() (string, []invalidation.Key, error) {
		c.Invalidate([]invalidation.Key{invalidation.EventKey("e1")})
		return "stale", []invalidation.Key{invalidation.EventKey("e1")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestGet_ConcurrentLoadsAreDeduplicated(t *testing.T) {
	c := New(time.Minute, nil)
	release := make(chan struct{})
	var calls int32

	load := func() (string, []invalidation.Key, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "v", nil, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := Get(c, "k", load)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(5))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

func TestGet_ZeroTTLDisablesCaching(t *testing.T) {
	c := New(0, nil)
	var calls int32
	load := countingLoad(&calls, "v")

	_, _ = Get(c, "k", load)
	_, _ = Get(c, "k", load)

	assert.Equal(t, int32(2), calls)
}

func TestGet_ReadAfterInvalidateDoesNotJoinStaleLoad(t *testing.T) {
	c := New(time.Minute, nil)
	started := make(chan struct{})
	release := make(chan struct{})

	firstDone := make(chan string)
	go func() {
		v, _ := Get(c, "detail:e1", func() (string, []invalidation.Key, error) {
			close(started)
			<-release
			return "stale", []invalidation.Key{invalidation.EventKey("e1")}, nil
		})
		firstDone <- v
	}()
	<-started

	c.Invalidate([]invalidation.Key{invalidation.EventKey("e1")})

	v, err := Get(c, "detail:e1", func() (string, []invalidation.Key, error) {
		return "fresh", []invalidation.Key{invalidation.EventKey("e1")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	close(release)
	assert.Equal(t, "stale", <-firstDone)

	cached, err := Get(c, "detail:e1", func() (string, []invalidation.Key, error) {
		return "reloaded", nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fresh", cached)
}
