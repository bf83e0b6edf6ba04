// Package lifecycle drives a placed order to a terminal state: it polls the
// exchange, emits notifications on transitions, and applies age- and
// risk-based cancellation to resting orders.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/domain"
	"gridbot/internal/exchange"
	"gridbot/internal/services/pnl"
)

// ErrPollLimit is returned when the configured poll bound is reached before
// the order settles.
var ErrPollLimit = errors.New("order poll limit reached")

type notifier interface {
	Notify(ctx context.Context, message string)
}

// Config tunes the tracking loop.
type Config struct {
	// PollInterval delay between status polls.
	PollInterval time.Duration
	// MaxOrderAge cancels resting orders older than this. Zero disables.
	MaxOrderAge time.Duration
	// RiskCancel enables unrealized-PNL based cancellation of resting orders.
	RiskCancel bool
	// CloseThreshold percentage below which a resting order is cancelled.
	CloseThreshold decimal.Decimal
	// MaxPolls bounds the loop. Zero means unbounded; age-based cancellation
	// is then the only way out of a stuck order.
	MaxPolls int
}

// Manager owns in-flight orders from placement until a terminal state.
type Manager struct {
	client   exchange.Client
	notifier notifier
	cfg      Config
	l        *zap.Logger
}

func New(client exchange.Client, n notifier, cfg Config, l *zap.Logger) *Manager {
	return &Manager{client: client, notifier: n, cfg: cfg, l: l}
}

// Track polls the order until it reaches a terminal state and returns that
// state. Network errors are logged and retried on the next poll. The order is
// dropped from tracking the moment a terminal state is returned.
func (m *Manager) Track(ctx context.Context, pair domain.Pair, order *domain.Order) (domain.OrderStatus, error) {
	partialNotified := false
	polls := 0

	timer := time.NewTimer(m.cfg.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return order.Status, ctx.Err()
		case <-timer.C:
		}

		polls++
		if m.cfg.MaxPolls > 0 && polls > m.cfg.MaxPolls {
			return order.Status, errors.Wrapf(ErrPollLimit, "order %s after %d polls", order.ID, m.cfg.MaxPolls)
		}

		current, err := m.client.GetOrderStatus(ctx, pair, order.ID)
		if err != nil {
			m.l.Warn("order status poll failed, will retry",
				zap.String("order", order.ID),
				zap.String("pair", pair.String()),
				zap.Error(err))
			timer.Reset(m.cfg.PollInterval)
			continue
		}

		switch current.Status {
		case domain.OrderStatusFilled:
			m.notifier.Notify(ctx, fmt.Sprintf("order %s %s %s filled at %s", order.ID, pair.String(), order.Side, order.Price))
			return domain.OrderStatusFilled, nil

		case domain.OrderStatusCanceled, domain.OrderStatusExpired,
			domain.OrderStatusRejected, domain.OrderStatusDoesNotExist:
			m.notifier.Notify(ctx, fmt.Sprintf("order %s %s %s: %s", order.ID, pair.String(), order.Side, current.Status))
			return current.Status, nil

		case domain.OrderStatusPartiallyFilled:
			if !partialNotified {
				m.notifier.Notify(ctx, fmt.Sprintf("order %s %s partially filled", order.ID, pair.String()))
				partialNotified = true
			}
		}

		// NEW and PARTIALLY_FILLED are eligible for cancellation checks.
		if status, done := m.checkCancellation(ctx, pair, order); done {
			return status, nil
		}

		timer.Reset(m.cfg.PollInterval)
	}
}

// checkCancellation applies the age and risk rules to a resting order.
// Returns done=true with the resulting terminal status when the order was
// cancelled (or found already resolved).
func (m *Manager) checkCancellation(ctx context.Context, pair domain.Pair, order *domain.Order) (domain.OrderStatus, bool) {
	if m.cfg.MaxOrderAge > 0 && order.Age(time.Now()) > m.cfg.MaxOrderAge {
		m.l.Info("cancelling order past max age",
			zap.String("order", order.ID),
			zap.String("pair", pair.String()),
			zap.Duration("age", order.Age(time.Now())))
		return m.cancel(ctx, pair, order)
	}

	if !m.cfg.RiskCancel {
		return "", false
	}

	book, err := m.client.GetOrderbook(ctx, pair)
	if err != nil {
		m.l.Warn("orderbook unavailable for risk check", zap.String("pair", pair.String()), zap.Error(err))
		return "", false
	}

	var unrealized decimal.Decimal
	if order.Side == domain.SideBuy {
		ask, ok := book.BestAsk()
		if !ok {
			return "", false
		}
		unrealized = pnl.UnrealizedShort(order.Qty, order.Price, ask)
	} else {
		bid, ok := book.BestBid()
		if !ok {
			return "", false
		}
		unrealized = pnl.UnrealizedLong(order.Qty, order.Price, bid)
	}

	if unrealized.LessThan(m.cfg.CloseThreshold) {
		m.l.Info("cancelling order below close threshold",
			zap.String("order", order.ID),
			zap.String("pair", pair.String()),
			zap.String("unrealized_pct", unrealized.String()),
			zap.String("threshold_pct", m.cfg.CloseThreshold.String()))
		return m.cancel(ctx, pair, order)
	}

	return "", false
}

// cancel cancels the order and reports the terminal outcome. An order the
// exchange no longer knows is treated as already resolved: its real terminal
// state is fetched and returned instead of an error.
func (m *Manager) cancel(ctx context.Context, pair domain.Pair, order *domain.Order) (domain.OrderStatus, bool) {
	err := m.client.CancelOrder(ctx, pair, order.ID)
	if err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
		m.l.Warn("order cancel failed, will retry next poll",
			zap.String("order", order.ID),
			zap.Error(err))
		return "", false
	}

	if errors.Is(err, domain.ErrOrderNotFound) {
		if current, statusErr := m.client.GetOrderStatus(ctx, pair, order.ID); statusErr == nil && current.Status.Terminal() {
			m.notifier.Notify(ctx, fmt.Sprintf("order %s %s resolved as %s", order.ID, pair.String(), current.Status))
			return current.Status, true
		}
	}

	m.notifier.Notify(ctx, fmt.Sprintf("order %s %s cancelled", order.ID, pair.String()))
	return domain.OrderStatusCanceled, true
}
