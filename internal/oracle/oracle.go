// Package oracle adapts external price feeds into the buy/sell conversion
// rates the engines consume. Rates are pull-only; nothing in this package
// pushes prices into the executors.
package oracle

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStalePrice means no quote fresh enough to trade on is available.
	// Periodic jobs treat it as transient and retry next tick.
	ErrStalePrice = errors.New("price quote is stale")
	ErrNoPrice    = errors.New("price feed returned no quote")
)

// Rates are the platform's current conversion rates in cash minor units per
// whole crypto unit, from the user's perspective: Buy is what a user pays
// when buying crypto, Sell is what a user receives when selling. Buy >= Sell;
// the gap is the platform spread.
type Rates struct {
	Buy       int64
	Sell      int64
	Timestamp time.Time
}

type Source interface {
	CurrentRates(ctx context.Context) (Rates, error)
}
