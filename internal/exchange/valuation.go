package exchange

import (
	"github.com/shopspring/decimal"

	"gridbot/internal/domain"
)

const (
	fiatAsset   = "USDT"
	bridgeAsset = "BTC"
)

// Valuate attaches a fiat valuation to every balance using the given
// last-price table (concatenated symbol → price). Pricing is direct
// (ASSETUSDT) when available, BTC-bridged (ASSETBTC × BTCUSDT) otherwise,
// and zero when no path exists.
func Valuate(balances []domain.Balance, prices map[string]decimal.Decimal) []domain.Balance {
	btcFiat := prices[bridgeAsset+fiatAsset]

	out := make([]domain.Balance, 0, len(balances))
	for _, b := range balances {
		switch {
		case b.Asset == fiatAsset:
			b.FiatValue = b.Free
		default:
			if direct, ok := prices[b.Asset+fiatAsset]; ok {
				b.FiatValue = b.Free.Mul(direct)
			} else if viaBTC, ok := prices[b.Asset+bridgeAsset]; ok && !btcFiat.IsZero() {
				b.FiatValue = b.Free.Mul(viaBTC).Mul(btcFiat)
			}
		}
		out = append(out, b)
	}
	return out
}
