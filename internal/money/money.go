package money

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrTooManyDecimals = errors.New("amount has too many decimal places")
)

const (
	cashDecimals   = 2
	cryptoDecimals = 8

	// SatsPerUnit is the number of crypto minor units in one whole unit.
	SatsPerUnit = int64(100_000_000)
)

// ParseCashMinor parses a cash amount string ("12.34") into minor units (cents).
func ParseCashMinor(input string) (int64, error) {
	return parseMinor(input, cashDecimals)
}

// ParseCryptoMinor parses a crypto amount string ("0.00012345") into minor units (satoshi).
func ParseCryptoMinor(input string) (int64, error) {
	return parseMinor(input, cryptoDecimals)
}

func parseMinor(input string, decimals int) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, ErrInvalidAmount
	}
	sign := int64(1)
	switch trimmed[0] {
	case '-':
		sign = -1
		trimmed = trimmed[1:]
	case '+':
		trimmed = trimmed[1:]
	}
	parts := strings.SplitN(trimmed, ".", 2)
	wholePart := parts[0]
	if wholePart == "" {
		wholePart = "0"
	}
	if !isDigits(wholePart) {
		return 0, ErrInvalidAmount
	}
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if len(fracPart) > decimals {
		return 0, ErrTooManyDecimals
	}
	if fracPart != "" && !isDigits(fracPart) {
		return 0, ErrInvalidAmount
	}
	whole, err := strconv.ParseInt(wholePart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	frac := int64(0)
	if fracPart != "" {
		value, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, ErrInvalidAmount
		}
		for i := len(fracPart); i < decimals; i++ {
			value *= 10
		}
		frac = value
	}
	scale := int64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	minor := whole*scale + frac
	return sign * minor, nil
}

func FormatCashMinor(value int64) string {
	return formatMinor(value, cashDecimals)
}

func FormatCryptoMinor(value int64) string {
	return formatMinor(value, cryptoDecimals)
}

func formatMinor(value int64, decimals int) string {
	negative := value < 0
	if negative {
		value = -value
	}
	scale := int64(1)
	for i := 0; i < decimals; i++ {
		scale *= 10
	}
	whole := value / scale
	frac := value % scale
	formatted := fmt.Sprintf("%d.%0*d", whole, decimals, frac)
	if negative {
		return "-" + formatted
	}
	return formatted
}

// CryptoFromCash converts a cash amount to crypto minor units at the given
// price (cash minor units per whole crypto unit), rounding down so the
// platform never over-credits.
func CryptoFromCash(cashMinor, priceMinor int64) int64 {
	if priceMinor <= 0 {
		return 0
	}
	return decimal.NewFromInt(cashMinor).
		Mul(decimal.NewFromInt(SatsPerUnit)).
		Div(decimal.NewFromInt(priceMinor)).
		Floor().
		IntPart()
}

// CashFromCrypto converts a crypto amount to cash minor units at the given
// price, rounding down.
func CashFromCrypto(cryptoMinor, priceMinor int64) int64 {
	return decimal.NewFromInt(cryptoMinor).
		Mul(decimal.NewFromInt(priceMinor)).
		Div(decimal.NewFromInt(SatsPerUnit)).
		Floor().
		IntPart()
}

// CryptoToCoverCash returns the smallest crypto amount whose sale at the
// given price yields at least cashMinor. Used by full liquidation.
func CryptoToCoverCash(cashMinor, priceMinor int64) int64 {
	if priceMinor <= 0 {
		return 0
	}
	return decimal.NewFromInt(cashMinor).
		Mul(decimal.NewFromInt(SatsPerUnit)).
		Div(decimal.NewFromInt(priceMinor)).
		Ceil().
		IntPart()
}

func ValueToInt64(value interface{}) int64 {
	switch v := value.(type) {
	case nil:
		return 0
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	case uint64:
		return int64(v)
	case uint32:
		return int64(v)
	case []byte:
		parsed, _ := strconv.ParseInt(string(v), 10, 64)
		return parsed
	case string:
		parsed, _ := strconv.ParseInt(v, 10, 64)
		return parsed
	default:
		parsed, _ := strconv.ParseInt(fmt.Sprint(v), 10, 64)
		return parsed
	}
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
