package oracle

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// BinanceSource derives buy/sell rates from the Binance spot ticker by
// applying a symmetric spread in basis points around the last price.
type BinanceSource struct {
	client    *binance.Client
	symbol    string
	spreadBps int64
}

func NewBinanceSource(client *binance.Client, symbol string, spreadBps int64) *BinanceSource {
	return &BinanceSource{client: client, symbol: symbol, spreadBps: spreadBps}
}

func (s *BinanceSource) CurrentRates(ctx context.Context) (Rates, error) {
	prices, err := s.client.NewListPricesService().Symbol(s.symbol).Do(ctx)
	if err != nil {
		return Rates{}, errors.Wrapf(err, "fetch ticker for %s", s.symbol)
	}
	if len(prices) == 0 {
		return Rates{}, errors.Wrapf(ErrNoPrice, "symbol %s", s.symbol)
	}
	mid, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return Rates{}, errors.Wrapf(err, "parse ticker price %q", prices[0].Price)
	}
	return SpreadRates(mid, s.spreadBps, time.Now()), nil
}

// SpreadRates converts a mid price in major cash units into minor-unit
// buy/sell rates with the spread applied.
func SpreadRates(mid decimal.Decimal, spreadBps int64, at time.Time) Rates {
	midMinor := mid.Mul(decimal.NewFromInt(100))
	spread := decimal.NewFromInt(spreadBps).Div(decimal.NewFromInt(10000))
	one := decimal.NewFromInt(1)
	return Rates{
		Buy:       midMinor.Mul(one.Add(spread)).Ceil().IntPart(),
		Sell:      midMinor.Mul(one.Sub(spread)).Floor().IntPart(),
		Timestamp: at,
	}
}
