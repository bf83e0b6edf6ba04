package internal

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"gridbot/internal/domain"
	"gridbot/internal/exchange"
)

// NewExchangeClient builds the platform client and, for websocket
// platforms, connects and subscribes to market data for every configured
// pair. This is the single point of dispatch to platform-specific code.
func NewExchangeClient(ctx context.Context, platform exchange.Platform, pairs []domain.Pair, logger *zap.Logger) (exchange.Client, error) {
	apiKey, apiSecret, err := credentialsFromEnv(platform)
	if err != nil {
		return nil, err
	}

	switch platform {
	case exchange.PlatformBinance:
		return exchange.NewBinanceClient(apiKey, apiSecret, logger), nil
	case exchange.PlatformBybit:
		return exchange.NewBybitClient(apiKey, apiSecret, logger), nil
	case exchange.PlatformNonKYC, exchange.PlatformXeggex, exchange.PlatformMexc:
		client, err := exchange.NewNonKYCClient(platform, apiKey, apiSecret, logger)
		if err != nil {
			return nil, err
		}
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		for _, pair := range pairs {
			if err := client.SubscribeMarket(ctx, pair); err != nil {
				client.Close()
				return nil, err
			}
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unsupported platform: %s", platform)
	}
}

func credentialsFromEnv(platform exchange.Platform) (string, string, error) {
	prefix := strings.ToUpper(string(platform))
	apiKey := os.Getenv(prefix + "_API_KEY")
	apiSecret := os.Getenv(prefix + "_API_SECRET")
	if apiKey == "" || apiSecret == "" {
		return "", "", fmt.Errorf("%s_API_KEY and %s_API_SECRET environment variables must be set", prefix, prefix)
	}
	return apiKey, apiSecret, nil
}
