package exchange

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridbot/internal/domain"
)

func TestValuateDirect(t *testing.T) {
	prices := map[string]decimal.Decimal{
		"ETHUSDT": decimal.NewFromInt(3000),
	}
	balances := Valuate([]domain.Balance{
		{Asset: "ETH", Free: decimal.NewFromInt(2)},
	}, prices)

	require.Len(t, balances, 1)
	require.True(t, balances[0].FiatValue.Equal(decimal.NewFromInt(6000)))
}

func TestValuateFiatPassthrough(t *testing.T) {
	balances := Valuate([]domain.Balance{
		{Asset: "USDT", Free: decimal.NewFromInt(150)},
	}, nil)

	require.True(t, balances[0].FiatValue.Equal(decimal.NewFromInt(150)))
}

func TestValuateBridgedThroughBTC(t *testing.T) {
	prices := map[string]decimal.Decimal{
		"XMRBTC":  decimal.NewFromFloat(0.004),
		"BTCUSDT": decimal.NewFromInt(50000),
	}
	balances := Valuate([]domain.Balance{
		{Asset: "XMR", Free: decimal.NewFromInt(10)},
	}, prices)

	// 10 * 0.004 * 50000 = 2000
	require.True(t, balances[0].FiatValue.Equal(decimal.NewFromInt(2000)))
}

func TestValuateNoPricePath(t *testing.T) {
	balances := Valuate([]domain.Balance{
		{Asset: "OBSCURE", Free: decimal.NewFromInt(100)},
	}, map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(50000)})

	require.True(t, balances[0].FiatValue.IsZero())
}

func TestValuateBridgeWithoutBTCPrice(t *testing.T) {
	// an ASSETBTC price alone is useless without BTCUSDT
	balances := Valuate([]domain.Balance{
		{Asset: "XMR", Free: decimal.NewFromInt(10)},
	}, map[string]decimal.Decimal{"XMRBTC": decimal.NewFromFloat(0.004)})

	require.True(t, balances[0].FiatValue.IsZero())
}
