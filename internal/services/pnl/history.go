package pnl

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/domain"
)

// Compact merges consecutive same-direction trades into single logical trades.
// Quantities and quote quantities are summed; commission is summed only when
// the commission asset matches. The merged record keeps the first trade's
// price and the last trade's timestamp.
//
// A properly compacted history alternates direction. Source data may be noisy,
// so a violation is logged as a warning rather than treated as fatal.
func Compact(l *zap.Logger, trades []domain.Trade) []domain.Trade {
	if len(trades) == 0 {
		return nil
	}

	compacted := make([]domain.Trade, 0, len(trades))
	current := trades[0]

	for _, t := range trades[1:] {
		if t.IsBuyer == current.IsBuyer {
			current.Qty = current.Qty.Add(t.Qty)
			current.QuoteQty = current.QuoteQty.Add(t.QuoteQty)
			if t.CommissionAsset == current.CommissionAsset {
				current.Commission = current.Commission.Add(t.Commission)
			}
			current.Time = t.Time
			continue
		}
		compacted = append(compacted, current)
		current = t
	}
	compacted = append(compacted, current)

	for i := 1; i < len(compacted); i++ {
		if compacted[i].IsBuyer == compacted[i-1].IsBuyer {
			l.Warn("compacted trade history does not alternate direction",
				zap.String("symbol", compacted[i].Symbol),
				zap.Int("index", i))
			break
		}
	}

	return compacted
}

// RealizedROI walks a compacted trade history and accumulates, for every trade
// that has a later opposite-direction counterpart, the base and quote deltas
// between the two. Returns zeros when the history has fewer than two trades or
// some entry has no opposite match.
func RealizedROI(trades []domain.Trade) (qtyDelta, quoteDelta decimal.Decimal) {
	if len(trades) < 2 {
		return decimal.Zero, decimal.Zero
	}

	for i := 0; i < len(trades)-1; i++ {
		matched := false
		for j := i + 1; j < len(trades); j++ {
			if trades[j].IsBuyer != trades[i].IsBuyer {
				qtyDelta = qtyDelta.Add(trades[j].Qty.Sub(trades[i].Qty))
				quoteDelta = quoteDelta.Add(trades[j].QuoteQty.Sub(trades[i].QuoteQty))
				matched = true
				break
			}
		}
		if !matched {
			return decimal.Zero, decimal.Zero
		}
	}

	return qtyDelta, quoteDelta
}
