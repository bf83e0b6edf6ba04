package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/config"
	"gridbot/internal/domain"
	"gridbot/internal/exchange"
	"gridbot/internal/notify"
	"gridbot/internal/services/guard"
	"gridbot/internal/services/journal"
	"gridbot/internal/services/lifecycle"
	"gridbot/internal/services/pnl"
	"gridbot/internal/services/signal"
	"gridbot/internal/services/strategy/grid"
)

// TradingBot runs the grid strategy for a single pair.
type TradingBot struct {
	pair    domain.Pair
	client  exchange.Client
	engine  *grid.Engine
	signals signal.Provider
	journal *journal.Journal
	cycle   time.Duration
	l       *zap.Logger
}

// NewTradingBot wires the per-pair services: fill journal, order lifecycle
// tracking and the grid engine. The exchange client and symbol guard are
// shared between bots.
func NewTradingBot(platform exchange.Platform, pc config.PairConfig, client exchange.Client,
	g *guard.SymbolGuard, notifier notify.Notifier, signals signal.Provider, logger *zap.Logger) (*TradingBot, error) {

	l := logger.With(zap.String("pair", pc.Pair.String()))

	fillJournal, err := journal.New(pc.Pair, l)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open fill journal")
	}

	tracker := lifecycle.New(client, notifier, lifecycle.Config{
		PollInterval:   platform.OrderPollInterval(),
		MaxOrderAge:    pc.MaxOrderAge,
		RiskCancel:     pc.RiskCancel,
		CloseThreshold: pc.CloseThresholdPct,
		MaxPolls:       pc.MaxOrderPolls,
	}, l)

	engine, err := grid.NewEngine(grid.Config{
		Pair:          pc.Pair,
		Levels:        pc.GridLevels,
		UpperRangePct: pc.UpperRangePct,
		LowerRangePct: pc.LowerRangePct,
		OrderSize:     pc.OrderSize,
		FeePct:        pc.FeePct,
		MinProfitBuy:  pc.MinProfitBuy,
		MinProfitSell: pc.MinProfitSell,
	}, client, g, tracker, notifier, fillJournal, l)
	if err != nil {
		fillJournal.Close()
		return nil, errors.Wrap(err, "failed to create grid engine")
	}

	return &TradingBot{
		pair:    pc.Pair,
		client:  client,
		engine:  engine,
		signals: signals,
		journal: fillJournal,
		cycle:   pc.CycleInterval,
		l:       l,
	}, nil
}

// Run executes grid cycles until the context is cancelled.
func (b *TradingBot) Run(ctx context.Context) error {
	b.logStartupStats(ctx)

	if err := b.engine.Initialize(ctx); err != nil {
		if !errors.Is(err, domain.ErrNotReady) {
			return errors.Wrap(err, "failed to initialize grid")
		}
		b.l.Debug("market data not ready yet, grid init deferred")
	}

	ticker := time.NewTicker(b.cycle)
	defer ticker.Stop()

	b.l.Info("starting trading loop", zap.Duration("cycle_interval", b.cycle))

	for {
		select {
		case <-ctx.Done():
			b.l.Info("context done, stopping trading bot run loop")
			return ctx.Err()
		case <-ticker.C:
			sig, err := b.signals.Signal(ctx, b.pair)
			if err != nil {
				b.l.Error("signal provider failed", zap.Error(err))
				continue
			}
			if sig == domain.SignalSkip {
				b.l.Debug("skip signal, cycle suppressed")
				continue
			}

			summary, err := b.engine.Cycle(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrNotReady) {
					b.l.Debug("market data not ready, continuing")
				} else {
					b.l.Error("grid cycle failed", zap.Error(err))
				}
				continue
			}

			b.l.Debug("grid cycle complete",
				zap.Int("executed_buy", summary.ExecutedBuy),
				zap.Int("executed_sell", summary.ExecutedSell),
				zap.Int("pending_buy", summary.PendingBuy),
				zap.Int("pending_sell", summary.PendingSell))
		}
	}
}

// logStartupStats reports realized performance and account value before
// trading starts. Failures are logged and ignored, stats are informational.
func (b *TradingBot) logStartupStats(ctx context.Context) {
	trades, err := b.client.GetTradeHistory(ctx, b.pair)
	if err != nil {
		b.l.Debug("trade history unavailable at startup", zap.Error(err))
	} else if len(trades) > 0 {
		compacted := pnl.Compact(b.l, trades)
		qtyDelta, quoteDelta := pnl.RealizedROI(compacted)
		b.l.Info("realized performance",
			zap.Int("trades", len(trades)),
			zap.Int("round_trips", len(compacted)/2),
			zap.String("base_delta", qtyDelta.String()),
			zap.String("quote_delta", quoteDelta.String()))
	}

	balances, err := b.client.GetBalances(ctx)
	if err != nil {
		b.l.Debug("balances unavailable at startup", zap.Error(err))
		return
	}
	total := decimal.Zero
	for _, bal := range balances {
		total = total.Add(bal.FiatValue)
	}
	b.l.Info("account value", zap.String("fiat_total", total.String()), zap.Int("assets", len(balances)))

	if replayed := b.journal.Records(); len(replayed) > 0 {
		b.l.Info("journaled order outcomes", zap.Int("records", len(replayed)))
	}
}

// Close releases per-pair resources.
func (b *TradingBot) Close() {
	b.engine.Close()
	if err := b.journal.Close(); err != nil {
		b.l.Warn("failed to close fill journal", zap.Error(err))
	}
}
