package pnl

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gridbot/internal/domain"
)

func trade(isBuyer bool, price, qty, quoteQty int64, commission int64, asset string, ts time.Time) domain.Trade {
	return domain.Trade{
		Symbol:          "BTCUSDT",
		Price:           decimal.NewFromInt(price),
		Qty:             decimal.NewFromInt(qty),
		QuoteQty:        decimal.NewFromInt(quoteQty),
		Commission:      decimal.NewFromInt(commission),
		CommissionAsset: asset,
		Time:            ts,
		IsBuyer:         isBuyer,
	}
}

func TestCompactMergesConsecutiveSameDirection(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	trades := []domain.Trade{
		trade(true, 100, 1, 100, 1, "USDT", base),
		trade(true, 101, 2, 202, 1, "USDT", base.Add(time.Minute)),
		trade(true, 102, 1, 102, 1, "BNB", base.Add(2*time.Minute)),
		trade(false, 110, 2, 220, 1, "USDT", base.Add(3*time.Minute)),
		trade(false, 111, 2, 222, 1, "USDT", base.Add(4*time.Minute)),
	}

	compacted := Compact(zap.NewNop(), trades)
	require.Len(t, compacted, 2)

	buy := compacted[0]
	require.True(t, buy.IsBuyer)
	require.True(t, buy.Qty.Equal(decimal.NewFromInt(4)))
	require.True(t, buy.QuoteQty.Equal(decimal.NewFromInt(404)))
	// the BNB-denominated commission is not summed into the USDT total
	require.True(t, buy.Commission.Equal(decimal.NewFromInt(2)))
	// first price, last timestamp
	require.True(t, buy.Price.Equal(decimal.NewFromInt(100)))
	require.Equal(t, base.Add(2*time.Minute), buy.Time)

	sell := compacted[1]
	require.False(t, sell.IsBuyer)
	require.True(t, sell.Qty.Equal(decimal.NewFromInt(4)))
	require.True(t, sell.QuoteQty.Equal(decimal.NewFromInt(442)))
}

func TestCompactEmpty(t *testing.T) {
	require.Nil(t, Compact(zap.NewNop(), nil))
}

func TestCompactSingleTrade(t *testing.T) {
	base := time.Now()
	compacted := Compact(zap.NewNop(), []domain.Trade{trade(true, 100, 1, 100, 0, "USDT", base)})
	require.Len(t, compacted, 1)
}

func TestRealizedROI(t *testing.T) {
	base := time.Now()

	// buy 1 @ 100, sell 1 @ 110: quote delta +10
	trades := []domain.Trade{
		trade(true, 100, 1, 100, 0, "USDT", base),
		trade(false, 110, 1, 110, 0, "USDT", base.Add(time.Minute)),
	}
	qtyDelta, quoteDelta := RealizedROI(trades)
	require.True(t, qtyDelta.IsZero())
	require.True(t, quoteDelta.Equal(decimal.NewFromInt(10)))
}

func TestRealizedROIDegenerate(t *testing.T) {
	base := time.Now()

	// fewer than two trades
	qtyDelta, quoteDelta := RealizedROI([]domain.Trade{trade(true, 100, 1, 100, 0, "USDT", base)})
	require.True(t, qtyDelta.IsZero())
	require.True(t, quoteDelta.IsZero())

	// no opposite-direction match for the last unmatched entry
	qtyDelta, quoteDelta = RealizedROI([]domain.Trade{
		trade(true, 100, 1, 100, 0, "USDT", base),
		trade(false, 110, 1, 110, 0, "USDT", base.Add(time.Minute)),
		trade(false, 111, 1, 111, 0, "USDT", base.Add(2*time.Minute)),
	})
	require.True(t, qtyDelta.IsZero())
	require.True(t, quoteDelta.IsZero())
}
