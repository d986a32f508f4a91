package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the fixed-point precision of every persisted amount.
const MoneyPlaces = 2

// HasMoneyPrecision reports whether d fits in MoneyPlaces decimal places
// without rounding.
func HasMoneyPrecision(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyPlaces))
}

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MaxMoney is the largest amount a NUMERIC(12,2) column holds.
var MaxMoney = decimal.RequireFromString("9999999999.99")

// WithinMoneyRange reports whether d can be persisted without overflow.
func WithinMoneyRange(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(MaxMoney)
}
