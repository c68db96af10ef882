package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Cached wraps a Source and keeps the last good quote. When the upstream
// fetch fails it serves the cached quote only while it is younger than
// maxStaleness; beyond that window it returns ErrStalePrice rather than
// silently pricing against old data.
type Cached struct {
	source       Source
	maxStaleness time.Duration
	now          func() time.Time

	mu   sync.Mutex
	last Rates
	ok   bool
}

func NewCached(source Source, maxStaleness time.Duration) *Cached {
	return &Cached{source: source, maxStaleness: maxStaleness, now: time.Now}
}

func (c *Cached) CurrentRates(ctx context.Context) (Rates, error) {
	rates, err := c.source.CurrentRates(ctx)
	if err == nil {
		c.mu.Lock()
		c.last = rates
		c.ok = true
		c.mu.Unlock()
		return rates, nil
	}

	c.mu.Lock()
	last, ok := c.last, c.ok
	c.mu.Unlock()
	if ok && c.now().Sub(last.Timestamp) <= c.maxStaleness {
		return last, nil
	}
	return Rates{}, errors.Wrap(ErrStalePrice, err.Error())
}
