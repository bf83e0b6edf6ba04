package grid

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/domain"
)

// Summary per-cycle outcome counts.
type Summary struct {
	ExecutedBuy  int
	ExecutedSell int
	PendingBuy   int
	PendingSell  int
}

// Cycle runs one grid evaluation: recover/build if needed, rebalance when the
// price escaped the ladder, detect fills, and place profit-gated
// replacements. Market data not being ready short-circuits with
// domain.ErrNotReady.
func (e *Engine) Cycle(ctx context.Context) (*Summary, error) {
	book, err := e.client.GetOrderbook(ctx, e.cfg.Pair)
	if err != nil {
		return nil, err
	}
	price, ok := book.MidPrice()
	if !ok {
		return nil, domain.ErrNotReady
	}

	if len(e.levels) == 0 {
		if err := e.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	open, err := e.client.GetOpenOrders(ctx, e.cfg.Pair)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list open orders for %s", e.cfg.Pair.String())
	}

	if e.shouldRebalance(price, len(open)) {
		if err := e.rebalance(ctx, price, open); err != nil {
			return nil, err
		}
		return e.summarize(0, 0), nil
	}

	summary := e.detectFills(ctx, open)

	// levels that lost their order without filling, or never got one,
	// are retried here
	e.placeMissing(ctx)

	return summary, nil
}

// shouldRebalance triggers when the price left the ladder entirely while the
// grid is still dense with resting orders.
func (e *Engine) shouldRebalance(price decimal.Decimal, openCount int) bool {
	if len(e.levels) == 0 || openCount < e.cfg.Levels {
		return false
	}

	lowest := e.levels[0].Price
	highest := e.levels[len(e.levels)-1].Price
	return price.LessThan(lowest) || price.GreaterThan(highest)
}

// rebalance cancels every open order and rebuilds the ladder around the new
// price. Full replacement keeps the logic simple at the cost of extra fees.
func (e *Engine) rebalance(ctx context.Context, price decimal.Decimal, open []domain.Order) error {
	e.l.Info("rebalancing grid",
		zap.String("pair", e.cfg.Pair.String()),
		zap.String("price", price.String()),
		zap.Int("open_orders", len(open)))

	for _, o := range open {
		if err := e.client.CancelOrder(ctx, e.cfg.Pair, o.ID); err != nil &&
			!errors.Is(err, domain.ErrOrderNotFound) {
			return errors.Wrapf(err, "failed to cancel order %s during rebalance", o.ID)
		}
	}

	e.levels, e.step = buildLevels(e.cfg, price)
	e.placeMissing(ctx)

	e.notifier.Notify(ctx, fmt.Sprintf("grid %s rebalanced around %s", e.cfg.Pair.String(), price))
	return nil
}

// detectFills finds levels whose order vanished from the open-orders
// snapshot, resolves their terminal state, and replaces filled ones when the
// round trip clears the profit gate.
func (e *Engine) detectFills(ctx context.Context, open []domain.Order) *Summary {
	openIDs := make(map[string]struct{}, len(open))
	for _, o := range open {
		openIDs[o.ID] = struct{}{}
	}

	executedBuy, executedSell := 0, 0
	kept := e.levels[:0]

	for i := range e.levels {
		lvl := e.levels[i]

		if lvl.OrderID == "" {
			kept = append(kept, lvl)
			continue
		}
		if _, stillOpen := openIDs[lvl.OrderID]; stillOpen {
			kept = append(kept, lvl)
			continue
		}

		order, err := e.client.GetOrderStatus(ctx, e.cfg.Pair, lvl.OrderID)
		if err != nil {
			e.l.Warn("failed to resolve missing grid order, keeping level",
				zap.String("order", lvl.OrderID),
				zap.Error(err))
			kept = append(kept, lvl)
			continue
		}

		switch order.Status {
		case domain.OrderStatusFilled:
			if lvl.Side == domain.SideBuy {
				executedBuy++
			} else {
				executedSell++
			}
			e.notifier.Notify(ctx, fmt.Sprintf("grid %s: %s level at %s filled",
				e.cfg.Pair.String(), lvl.Side, lvl.Price))

			if replacement, ok := e.replaceLevel(ctx, lvl); ok {
				kept = append(kept, replacement)
			}
			// gate miss drops the level with no tracked retry

		case domain.OrderStatusNew, domain.OrderStatusPartiallyFilled:
			// report lag: the order is alive but missed the snapshot
			kept = append(kept, lvl)

		default:
			// cancelled/expired/rejected/unknown: executed, no replacement
			e.l.Info("grid level resolved without fill",
				zap.String("pair", e.cfg.Pair.String()),
				zap.String("order", lvl.OrderID),
				zap.String("status", string(order.Status)))
		}
	}

	e.levels = kept
	return e.summarize(executedBuy, executedSell)
}

// replaceLevel places the opposite-side order one step away from the filled
// price, but only when the round trip nets at least the configured minimum
// profit after fees on both legs.
func (e *Engine) replaceLevel(ctx context.Context, filled Level) (Level, bool) {
	newSide := filled.Side.Opposite()

	var newPrice, buyPrice, sellPrice decimal.Decimal
	if filled.Side == domain.SideBuy {
		newPrice = filled.Price.Add(e.step)
		buyPrice, sellPrice = filled.Price, newPrice
	} else {
		newPrice = filled.Price.Sub(e.step)
		buyPrice, sellPrice = newPrice, filled.Price
	}

	if !buyPrice.IsPositive() {
		return Level{}, false
	}

	hundred := decimal.NewFromInt(100)
	grossPct := sellPrice.Sub(buyPrice).Div(buyPrice).Mul(hundred)
	netPct := grossPct.Sub(e.cfg.FeePct.Mul(decimal.NewFromInt(2)))

	minProfit := e.cfg.MinProfitBuy
	if newSide == domain.SideSell {
		minProfit = e.cfg.MinProfitSell
	}

	if netPct.LessThan(minProfit) {
		e.l.Info("replacement skipped, net profit below minimum",
			zap.String("pair", e.cfg.Pair.String()),
			zap.String("net_pct", netPct.String()),
			zap.String("min_pct", minProfit.String()))
		return Level{}, false
	}

	order, err := e.placeOrder(ctx, newSide, filled.Size, newPrice)
	if err != nil {
		e.l.Warn("replacement placement failed, level dropped",
			zap.String("pair", e.cfg.Pair.String()),
			zap.String("price", newPrice.String()),
			zap.Error(err))
		return Level{}, false
	}

	e.notifier.Notify(ctx, fmt.Sprintf("grid %s: placed %s replacement at %s (net %s%%)",
		e.cfg.Pair.String(), newSide, newPrice, netPct.StringFixed(2)))

	return Level{
		Price:   newPrice,
		Side:    newSide,
		Size:    filled.Size,
		OrderID: order.ID,
	}, true
}

func (e *Engine) summarize(executedBuy, executedSell int) *Summary {
	s := &Summary{ExecutedBuy: executedBuy, ExecutedSell: executedSell}
	for _, lvl := range e.levels {
		if lvl.Side == domain.SideBuy {
			s.PendingBuy++
		} else {
			s.PendingSell++
		}
	}
	return s
}
