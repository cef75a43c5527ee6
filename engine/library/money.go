package library

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// UsdToCents converts a dollar amount to whole cents, rounding half away from zero.
func UsdToCents(usd decimal.Decimal) int64 {
	return usd.Mul(hundred).Round(0).IntPart()
}

func CentsToUsd(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(hundred)
}
