package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"gridbot/internal/exchange"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestGetYaml(t *testing.T) {
	path := writeConfig(t, `
platform: binance
pairs:
  - pair: BTC_USDT
    order_size: "0.001"
    grid_levels: 6
    upper_range_pct: "5"
    lower_range_pct: "5"
    fee_pct: "0.1"
    min_profit_buy: "0.3"
    min_profit_sell: "0.4"
    cycle_interval: 1m
    max_order_age: 48h
    risk_cancel: true
    close_threshold_pct: "-3"
    max_order_polls: "200"
  - pair: ETH_USDT
    order_size: "0.01"
    grid_levels: 4
    upper_range_pct: "10"
    lower_range_pct: "10"
telegram:
  enabled: true
  chat_id: 12345
`)

	conf, err := getYaml(path)
	require.NoError(t, err)

	require.Equal(t, exchange.PlatformBinance, conf.Platform)
	require.True(t, conf.Telegram.Enabled)
	require.Equal(t, int64(12345), conf.Telegram.ChatID)
	require.Len(t, conf.Pairs, 2)

	btc := conf.Pairs[0]
	require.Equal(t, "BTC_USDT", btc.Pair.String())
	require.True(t, btc.OrderSize.Equal(decimal.NewFromFloat(0.001)))
	require.Equal(t, 6, btc.GridLevels)
	require.Equal(t, time.Minute, btc.CycleInterval)
	require.Equal(t, 48*time.Hour, btc.MaxOrderAge)
	require.True(t, btc.RiskCancel)
	require.True(t, btc.CloseThresholdPct.Equal(decimal.NewFromInt(-3)))
	require.Equal(t, 200, btc.MaxOrderPolls)

	// omitted params fall back to defaults
	eth := conf.Pairs[1]
	require.Equal(t, 30*time.Second, eth.CycleInterval)
	require.Equal(t, 24*time.Hour, eth.MaxOrderAge)
	require.True(t, eth.FeePct.Equal(decimal.NewFromFloat(0.1)))
	require.True(t, eth.MinProfitBuy.Equal(decimal.NewFromFloat(0.2)))
	require.Equal(t, 0, eth.MaxOrderPolls)
	require.False(t, eth.RiskCancel)
}

func TestGetYamlExplicitZeroMaxOrderAge(t *testing.T) {
	path := writeConfig(t, `
platform: binance
pairs:
  - pair: BTC_USDT
    order_size: "0.001"
    grid_levels: 4
    upper_range_pct: "5"
    lower_range_pct: "5"
    max_order_age: 0
`)
	conf, err := getYaml(path)
	require.NoError(t, err)

	// zero turns age-based cancellation off; only an absent key gets the default
	require.Equal(t, time.Duration(0), conf.Pairs[0].MaxOrderAge)
}

func TestGetYamlRejectsUnknownPlatform(t *testing.T) {
	path := writeConfig(t, `
platform: kraken
pairs:
  - pair: BTC_USDT
    order_size: "0.001"
    grid_levels: 4
    upper_range_pct: "5"
    lower_range_pct: "5"
`)
	_, err := getYaml(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "platform")
}

func TestGetYamlRejectsBadPair(t *testing.T) {
	path := writeConfig(t, `
platform: binance
pairs:
  - pair: BTCUSDT
    order_size: "0.001"
    grid_levels: 4
    upper_range_pct: "5"
    lower_range_pct: "5"
`)
	_, err := getYaml(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "pair")
}

func TestGetYamlRejectsTooFewLevels(t *testing.T) {
	path := writeConfig(t, `
platform: binance
pairs:
  - pair: BTC_USDT
    order_size: "0.001"
    grid_levels: 1
    upper_range_pct: "5"
    lower_range_pct: "5"
`)
	_, err := getYaml(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "grid_levels")
}

func TestGetYamlRejectsEmptyPairs(t *testing.T) {
	path := writeConfig(t, `
platform: binance
pairs: []
`)
	_, err := getYaml(path)
	require.Error(t, err)
}
