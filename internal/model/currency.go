package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Display precision by currency code. Unlisted codes round to 2 places.
var currencyPrecision = map[string]int32{
	"BTC": 8,
	"LTC": 8,
	"SAT": 0,
	"JPY": 0,
	"KRW": 0,
	"VND": 0,
	"CLP": 0,
	"BHD": 3,
	"KWD": 3,
	"OMR": 3,
}

func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func CurrencyPrecision(code string) int32 {
	if p, ok := currencyPrecision[NormalizeCurrency(code)]; ok {
		return p
	}
	return 2
}

// RoundToCurrency rounds an amount to the currency's display precision.
// Rounding is idempotent: applying it twice yields the same value.
func RoundToCurrency(amount decimal.Decimal, code string) decimal.Decimal {
	return amount.Round(CurrencyPrecision(code))
}
