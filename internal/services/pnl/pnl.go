// Package pnl provides pure profit-and-loss arithmetic used to gate trading
// decisions.
package pnl

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PercentageDifference returns (new-old)/|old| * 100.
func PercentageDifference(oldPrice, newPrice decimal.Decimal) decimal.Decimal {
	if oldPrice.IsZero() {
		return decimal.Zero
	}
	return newPrice.Sub(oldPrice).Div(oldPrice.Abs()).Mul(hundred)
}

// Long returns the percentage PNL of a long position entered at entry and
// exited at exit.
func Long(entry, exit decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	return exit.Sub(entry).Div(entry).Mul(hundred)
}

// Short mirrors Long for a short position.
func Short(entry, exit decimal.Decimal) decimal.Decimal {
	if entry.IsZero() {
		return decimal.Zero
	}
	return entry.Sub(exit).Div(entry).Mul(hundred)
}

// UnrealizedLong returns the hypothetical percentage PNL of closing a long of
// qty at the current best bid. The qty term cancels out; it is kept so the
// formula reads the same as the notional computation it came from.
func UnrealizedLong(qty, entry, bestBid decimal.Decimal) decimal.Decimal {
	denom := entry.Mul(qty)
	if denom.IsZero() {
		return decimal.Zero
	}
	return bestBid.Sub(entry).Mul(qty).Div(denom).Mul(hundred)
}

// UnrealizedShort mirrors UnrealizedLong against the current best ask.
func UnrealizedShort(qty, entry, bestAsk decimal.Decimal) decimal.Decimal {
	denom := entry.Mul(qty)
	if denom.IsZero() {
		return decimal.Zero
	}
	return entry.Sub(bestAsk).Mul(qty).Div(denom).Mul(hundred)
}
