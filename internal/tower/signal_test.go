package tower

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/timeutil"
)

func TestSignalCache(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := timeutil.NewMockClock(start)
	cache := NewSignalCache(nil, clock)

	_, err := cache.Read(10 * time.Second)
	assert.ErrorIs(t, err, ErrStale, "never set")
	assert.True(t, cache.Updated().IsZero())

	cache.Update(cellular.Signal{Strength: -80, Quality: 2})
	got, err := cache.Read(10 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, -80, got.Strength)
	assert.Equal(t, 2, got.Quality)
	assert.Equal(t, start, got.Updated)

	clock.Advance(5 * time.Second)
	_, err = cache.Read(10 * time.Second)
	assert.NoError(t, err)

	clock.Advance(5*time.Second + time.Nanosecond)
	_, err = cache.Read(10 * time.Second)
	assert.ErrorIs(t, err, ErrStale)

	// a new reading is fresh again
	cache.Update(cellular.Signal{Strength: -90})
	_, err = cache.Read(10 * time.Second)
	assert.NoError(t, err)
}

func TestSignalCache_NoReadingClearsTimestamp(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	cache := NewSignalCache(nil, clock)

	cache.Update(cellular.Signal{Strength: -70})
	cache.Update(cellular.Signal{Strength: 0, Quality: cellular.NoQuality})
	assert.True(t, cache.Updated().IsZero())
	_, err := cache.Read(time.Hour)
	assert.ErrorIs(t, err, ErrStale)

	cache.Update(cellular.Signal{Strength: -70})
	cache.Invalidate()
	_, err = cache.Read(time.Hour)
	assert.ErrorIs(t, err, ErrStale)
}

func TestSignalCache_SharedLock(t *testing.T) {
	var mu sync.RWMutex
	cache := NewSignalCache(&mu, timeutil.NewMockClock(time.Unix(1000, 0)))

	mu.Lock()
	done := make(chan struct{})
	go func() {
		cache.Update(cellular.Signal{Strength: -60})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Update must wait for the shared lock")
	case <-time.After(20 * time.Millisecond):
	}
	mu.Unlock()
	<-done

	_, err := cache.Read(time.Second)
	assert.NoError(t, err)
}
