package tower

import (
	"sync"
	"time"

	"github.com/banshee-data/celltower/internal/cellular"
	"github.com/banshee-data/celltower/internal/timeutil"
)

// SignalSample is a cached signal reading and when it was taken. A zero
// Updated means no usable reading has been recorded.
type SignalSample struct {
	cellular.Signal
	Updated time.Time `json:"updated"`
}

// SignalCache holds the most recent signal reading. It may share its lock
// with other state so readers see both consistently.
type SignalCache struct {
	mu     *sync.RWMutex
	clock  timeutil.Clock
	sample SignalSample
}

// NewSignalCache returns an empty cache guarded by mu. A nil mu gets a
// private lock and a nil clock the real one.
func NewSignalCache(mu *sync.RWMutex, clock timeutil.Clock) *SignalCache {
	if mu == nil {
		mu = &sync.RWMutex{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SignalCache{mu: mu, clock: clock}
}

// Update stores sig stamped with the current time. A signal without a
// reading clears the timestamp instead, so the cache reads as stale.
func (c *SignalCache) Update(sig cellular.Signal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sample.Signal = sig
	if sig.HasReading() {
		c.sample.Updated = c.clock.Now()
	} else {
		c.sample.Updated = time.Time{}
	}
}

// Invalidate marks the cached sample stale.
func (c *SignalCache) Invalidate() {
	c.Update(cellular.NoSignal)
}

// Read returns the sample if it was set no more than maxAge ago.
func (c *SignalCache) Read(maxAge time.Duration) (SignalSample, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.sample.Updated.IsZero() || c.clock.Since(c.sample.Updated) > maxAge {
		return SignalSample{}, ErrStale
	}
	return c.sample, nil
}

// Updated returns when the sample was last set, or the zero time.
func (c *SignalCache) Updated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sample.Updated
}
