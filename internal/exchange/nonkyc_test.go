package exchange

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridbot/internal/domain"
	"gridbot/internal/services/orderbook"
)

func mkTestBook(bid, ask int64) *Book {
	return &Book{
		Bids: []orderbook.Level{{Price: decimal.NewFromInt(bid), Qty: decimal.NewFromInt(1)}},
		Asks: []orderbook.Level{{Price: decimal.NewFromInt(ask), Qty: decimal.NewFromInt(1)}},
	}
}

func TestOrderReportNormalize(t *testing.T) {
	report := orderReport{
		ID:        "abc123",
		Symbol:    "BTC/USDT",
		Side:      "BUY",
		Quantity:  "0.5",
		Price:     "50000",
		CreatedAt: 1717243200000,
		Status:    "partiallyFilled",
	}

	order := report.normalize(domain.OrderStatusNew)

	require.Equal(t, "abc123", order.ID)
	require.Equal(t, domain.SideBuy, order.Side)
	require.True(t, order.Qty.Equal(decimal.NewFromFloat(0.5)))
	require.True(t, order.Price.Equal(decimal.NewFromInt(50000)))
	// quote quantity is synthesized, the backend does not report it
	require.True(t, order.QuoteQty.Equal(decimal.NewFromInt(25000)))
	require.Equal(t, time.UnixMilli(1717243200000), order.Time)
	require.Equal(t, domain.OrderStatusPartiallyFilled, order.Status)
}

func TestOrderReportNormalizeStatusVariants(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"new":              domain.OrderStatusNew,
		"NEW":              domain.OrderStatusNew,
		"Filled":           domain.OrderStatusFilled,
		"canceled":         domain.OrderStatusCanceled,
		"cancelled":        domain.OrderStatusCanceled,
		"partially_filled": domain.OrderStatusPartiallyFilled,
		"expired":          domain.OrderStatusExpired,
		"rejected":         domain.OrderStatusRejected,
	}

	for raw, want := range cases {
		order := orderReport{Status: raw}.normalize(domain.OrderStatusDoesNotExist)
		require.Equal(t, want, order.Status, "status %q", raw)
	}
}

func TestOrderReportNormalizeFallback(t *testing.T) {
	// report without a status field takes the fallback implied by the list
	// it came from
	order := orderReport{ID: "x"}.normalize(domain.OrderStatusFilled)
	require.Equal(t, domain.OrderStatusFilled, order.Status)
}

func TestStatusFallbackFor(t *testing.T) {
	require.Equal(t, domain.OrderStatusNew, statusFallbackFor("getOrders"))
	require.Equal(t, domain.OrderStatusFilled, statusFallbackFor("getFilledOrders"))
	require.Equal(t, domain.OrderStatusCanceled, statusFallbackFor("getCancelledOrders"))
}

func TestPlatformHelpers(t *testing.T) {
	require.True(t, PlatformBinance.Valid())
	require.True(t, PlatformNonKYC.Valid())
	require.False(t, Platform("kraken").Valid())

	require.False(t, PlatformBinance.WebsocketRPC())
	require.True(t, PlatformXeggex.WebsocketRPC())

	require.Equal(t, 30*time.Second, PlatformNonKYC.OrderPollInterval())
	require.Equal(t, 1500*time.Millisecond, PlatformBybit.OrderPollInterval())
}

func TestBookMidPrice(t *testing.T) {
	book := &Book{}
	_, ok := book.MidPrice()
	require.False(t, ok)

	book = mkTestBook(99, 101)
	mid, ok := book.MidPrice()
	require.True(t, ok)
	require.True(t, mid.Equal(decimal.NewFromInt(100)))
}
