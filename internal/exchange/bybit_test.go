package exchange

import (
	"testing"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridbot/internal/domain"
)

func TestBybitStatusMapping(t *testing.T) {
	cases := map[string]domain.OrderStatus{
		"New":                     domain.OrderStatusNew,
		"Created":                 domain.OrderStatusNew,
		"PartiallyFilled":         domain.OrderStatusPartiallyFilled,
		"Filled":                  domain.OrderStatusFilled,
		"PartiallyFilledCanceled": domain.OrderStatusFilled,
		"Cancelled":               domain.OrderStatusCanceled,
		"Rejected":                domain.OrderStatusRejected,
		"Deactivated":             domain.OrderStatusExpired,
		"Bogus":                   domain.OrderStatusDoesNotExist,
	}
	for raw, want := range cases {
		require.Equal(t, want, bybitStatus(raw), "status %s", raw)
	}
}

func TestBybitSideMapping(t *testing.T) {
	require.Equal(t, bybit.SideBuy, bybitSide(domain.SideBuy))
	require.Equal(t, bybit.SideSell, bybitSide(domain.SideSell))
}

func TestBybitOrderConversion(t *testing.T) {
	order := bybitOrder(
		domain.Pair{From: "BTC", To: "USDT"},
		"uuid-1", "Sell", "50000", "0.5", "1717243200000", "PartiallyFilled",
	)

	require.Equal(t, "BTCUSDT", order.Symbol)
	require.Equal(t, "uuid-1", order.ID)
	require.Equal(t, domain.SideSell, order.Side)
	require.True(t, order.QuoteQty.Equal(decimal.NewFromInt(25000)))
	require.Equal(t, time.UnixMilli(1717243200000), order.Time)
	require.Equal(t, domain.OrderStatusPartiallyFilled, order.Status)
}
