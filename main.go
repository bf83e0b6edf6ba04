// Command gridbot runs a multi-pair grid trading bot. It supports
// Binance and Bybit over REST and NonKYC-style exchanges (NonKYC,
// Xeggex, MEXC) over websocket JSON-RPC.
//
// Usage:
//
//	gridbot --config config.yaml
//
// Required environment variables (per platform):
//
//	BINANCE_API_KEY, BINANCE_API_SECRET
//	BYBIT_API_KEY, BYBIT_API_SECRET
//	NONKYC_API_KEY, NONKYC_API_SECRET
//	TELEGRAM_BOT_TOKEN (when telegram notifications are enabled)
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gridbot/config"
	"gridbot/internal"
	"gridbot/internal/domain"
	"gridbot/internal/notify"
	"gridbot/internal/services/guard"
	signalprovider "gridbot/internal/services/signal"
)

func main() {
	_ = godotenv.Load()

	conf, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notifier := buildNotifier(conf, logger)

	pairs := make([]domain.Pair, 0, len(conf.Pairs))
	for _, pc := range conf.Pairs {
		pairs = append(pairs, pc.Pair)
	}

	client, err := internal.NewExchangeClient(ctx, conf.Platform, pairs, logger)
	if err != nil {
		logger.Fatal("failed to create exchange client", zap.Error(err))
	}
	defer client.Close()

	symbolGuard := guard.New()
	signals := signalprovider.NewStatic(domain.SignalHold)

	g, ctx := errgroup.WithContext(ctx)
	for _, pc := range conf.Pairs {
		bot, err := internal.NewTradingBot(conf.Platform, pc, client, symbolGuard, notifier, signals, logger)
		if err != nil {
			logger.Fatal("failed to create trading bot",
				zap.String("pair", pc.Pair.String()), zap.Error(err))
		}

		g.Go(func() error {
			defer bot.Close()
			return bot.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !isShutdown(err) {
		logger.Fatal("trading bot stopped", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildNotifier(conf config.Config, logger *zap.Logger) notify.Notifier {
	if !conf.Telegram.Enabled {
		return notify.Nop{}
	}

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		logger.Warn("telegram enabled but TELEGRAM_BOT_TOKEN is not set, notifications disabled")
		return notify.Nop{}
	}

	tg, err := notify.NewTelegram(token, conf.Telegram.ChatID, logger)
	if err != nil {
		logger.Warn("failed to create telegram notifier, notifications disabled", zap.Error(err))
		return notify.Nop{}
	}
	return tg
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled)
}
