package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade normalized trade record shared by all exchange backends.
type Trade struct {
	Symbol          string
	Price           decimal.Decimal
	Qty             decimal.Decimal
	QuoteQty        decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	Time            time.Time
	IsBuyer         bool
}

// Balance asset balance with its fiat-equivalent valuation.
type Balance struct {
	Asset string
	Free  decimal.Decimal
	// FiatValue quote-currency valuation; zero when no pricing path exists.
	FiatValue decimal.Decimal
}
