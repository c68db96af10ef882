package oracle

import (
	"context"
	"sync"
	"time"
)

// Fixed is a settable in-process source for development and tests.
type Fixed struct {
	mu    sync.RWMutex
	rates Rates
}

func NewFixed(price int64, spreadBps int64) *Fixed {
	f := &Fixed{}
	f.SetPrice(price, spreadBps)
	return f
}

func (f *Fixed) SetPrice(price int64, spreadBps int64) {
	spread := price * spreadBps / 10000
	f.SetRates(Rates{Buy: price + spread, Sell: price - spread, Timestamp: time.Now()})
}

func (f *Fixed) SetRates(rates Rates) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rates = rates
}

func (f *Fixed) CurrentRates(context.Context) (Rates, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rates, nil
}
