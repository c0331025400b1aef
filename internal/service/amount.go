package service

import "github.com/shopspring/decimal"

const amountPlaces = 4

// addAmount returns a+b rounded to 4 decimal places.
func addAmount(a, b float64) float64 {
	return decimal.NewFromFloat(a).Add(decimal.NewFromFloat(b)).Round(amountPlaces).InexactFloat64()
}

func roundAmount(d decimal.Decimal) float64 {
	return d.Round(amountPlaces).InexactFloat64()
}
