// Package grid implements the grid trading strategy: a ladder of resting
// limit orders around a reference price, refilled on fills when the round
// trip clears the configured minimum profit.
package grid

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/domain"
	"gridbot/internal/exchange"
	"gridbot/internal/services/guard"
)

// Level one rung of the grid ladder. Filled or otherwise resolved levels are
// removed from the ladder rather than flagged.
type Level struct {
	Price   decimal.Decimal
	Side    domain.Side
	Size    decimal.Decimal
	OrderID string
}

// Config static grid parameters for one pair.
type Config struct {
	Pair          domain.Pair
	Levels        int
	UpperRangePct decimal.Decimal
	LowerRangePct decimal.Decimal
	OrderSize     decimal.Decimal
	FeePct        decimal.Decimal
	MinProfitBuy  decimal.Decimal
	MinProfitSell decimal.Decimal
}

type orderTracker interface {
	Track(ctx context.Context, pair domain.Pair, order *domain.Order) (domain.OrderStatus, error)
}

type fillJournal interface {
	RecordFill(order *domain.Order, status domain.OrderStatus) error
}

type notifier interface {
	Notify(ctx context.Context, message string)
}

// Engine runs the grid strategy for a single pair. It owns the level array
// and the per-symbol placement lock; in-flight orders belong to the tracker
// until terminal.
type Engine struct {
	cfg      Config
	client   exchange.Client
	guard    *guard.SymbolGuard
	tracker  orderTracker
	notifier notifier
	journal  fillJournal
	l        *zap.Logger

	wg     sync.WaitGroup
	levels []Level
	step   decimal.Decimal
}

func NewEngine(cfg Config, client exchange.Client, g *guard.SymbolGuard, tracker orderTracker,
	n notifier, j fillJournal, l *zap.Logger) (*Engine, error) {

	if cfg.Levels < 2 {
		return nil, errors.Errorf("grid needs at least 2 levels, got %d", cfg.Levels)
	}
	if !cfg.OrderSize.IsPositive() {
		return nil, errors.New("grid order size must be positive")
	}

	return &Engine{
		cfg:      cfg,
		client:   client,
		guard:    g,
		tracker:  tracker,
		notifier: n,
		journal:  j,
		l:        l,
	}, nil
}

// Levels exposes a copy of the active grid.
func (e *Engine) Levels() []Level {
	out := make([]Level, len(e.levels))
	copy(out, e.levels)
	return out
}

// buildLevels computes a fresh ladder around the reference price. Levels
// below the price buy, the rest sell.
func buildLevels(cfg Config, price decimal.Decimal) (levels []Level, step decimal.Decimal) {
	hundred := decimal.NewFromInt(100)
	upper := price.Mul(decimal.NewFromInt(1).Add(cfg.UpperRangePct.Div(hundred)))
	lower := price.Mul(decimal.NewFromInt(1).Sub(cfg.LowerRangePct.Div(hundred)))
	step = upper.Sub(lower).Div(decimal.NewFromInt(int64(cfg.Levels)))

	levels = make([]Level, 0, cfg.Levels)
	for i := 0; i < cfg.Levels; i++ {
		lvlPrice := lower.Add(step.Mul(decimal.NewFromInt(int64(i))))
		side := domain.SideSell
		if lvlPrice.LessThan(price) {
			side = domain.SideBuy
		}
		levels = append(levels, Level{
			Price: lvlPrice,
			Side:  side,
			Size:  cfg.OrderSize,
		})
	}
	return levels, step
}

// buildFromExistingOrders rebuilds the ladder from live open orders, sorted
// ascending by price. This makes restarts idempotent: whatever the exchange
// still holds becomes the grid, and no duplicate orders are created.
func buildFromExistingOrders(cfg Config, orders []domain.Order) (levels []Level, step decimal.Decimal) {
	levels = make([]Level, 0, len(orders))
	for _, o := range orders {
		levels = append(levels, Level{
			Price:   o.Price,
			Side:    o.Side,
			Size:    o.Qty,
			OrderID: o.ID,
		})
	}

	sort.Slice(levels, func(i, j int) bool { return levels[i].Price.LessThan(levels[j].Price) })

	if len(levels) >= 2 {
		step = levels[1].Price.Sub(levels[0].Price)
	}
	return levels, step
}

// Initialize recovers the grid from live exchange state, or builds and places
// a fresh ladder when no open orders exist.
func (e *Engine) Initialize(ctx context.Context) error {
	open, err := e.client.GetOpenOrders(ctx, e.cfg.Pair)
	if err != nil {
		return errors.Wrapf(err, "failed to list open orders for %s", e.cfg.Pair.String())
	}

	if len(open) > 0 {
		e.levels, e.step = buildFromExistingOrders(e.cfg, open)
		if e.step.IsZero() {
			e.step = e.fallbackStep(ctx)
		}
		e.l.Info("recovered grid from open orders",
			zap.String("pair", e.cfg.Pair.String()),
			zap.Int("levels", len(e.levels)))
		return nil
	}

	book, err := e.client.GetOrderbook(ctx, e.cfg.Pair)
	if err != nil {
		return err
	}
	price, ok := book.MidPrice()
	if !ok {
		return domain.ErrNotReady
	}

	e.levels, e.step = buildLevels(e.cfg, price)
	e.l.Info("built fresh grid",
		zap.String("pair", e.cfg.Pair.String()),
		zap.String("price", price.String()),
		zap.Int("levels", len(e.levels)),
		zap.String("step", e.step.String()))

	e.placeMissing(ctx)
	return nil
}

// fallbackStep recomputes the step from config when it cannot be derived
// from recovered levels.
func (e *Engine) fallbackStep(ctx context.Context) decimal.Decimal {
	book, err := e.client.GetOrderbook(ctx, e.cfg.Pair)
	if err != nil {
		return decimal.Zero
	}
	price, ok := book.MidPrice()
	if !ok {
		return decimal.Zero
	}
	_, step := buildLevels(e.cfg, price)
	return step
}

// placeMissing submits orders for levels without one. Failures (guard
// contention, filter violations, transient errors) leave the level without
// an order id; it is retried on the next cycle.
func (e *Engine) placeMissing(ctx context.Context) {
	for i := range e.levels {
		lvl := &e.levels[i]
		if lvl.OrderID != "" {
			continue
		}

		order, err := e.placeOrder(ctx, lvl.Side, lvl.Size, lvl.Price)
		if err != nil {
			if errors.Is(err, guard.ErrSymbolLocked) {
				e.l.Debug("placement blocked by symbol guard, retrying next cycle",
					zap.String("pair", e.cfg.Pair.String()))
			} else {
				e.l.Warn("grid order placement failed, retrying next cycle",
					zap.String("pair", e.cfg.Pair.String()),
					zap.String("price", lvl.Price.String()),
					zap.Error(err))
			}
			continue
		}
		lvl.OrderID = order.ID
	}
}

// placeOrder places one order under the symbol guard and hands it to the
// lifecycle tracker. The guard is released on every exit path.
func (e *Engine) placeOrder(ctx context.Context, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error) {
	symbol := e.cfg.Pair.String()
	if !e.guard.TryAcquire(symbol) {
		return nil, guard.ErrSymbolLocked
	}
	defer e.guard.Release(symbol)

	order, err := e.client.PlaceOrder(ctx, e.cfg.Pair, side, qty, price)
	if err != nil {
		return nil, err
	}

	e.wg.Add(1)
	go e.trackOrder(ctx, order)
	return order, nil
}

// trackOrder follows the order to a terminal state in the background and
// journals the outcome. Fill handling itself happens in the cycle's
// detection pass against the open-orders snapshot. Cancelling the run
// context stops the tracker.
func (e *Engine) trackOrder(ctx context.Context, order *domain.Order) {
	defer e.wg.Done()

	status, err := e.tracker.Track(ctx, e.cfg.Pair, order)
	if err != nil {
		e.l.Warn("order tracking ended without terminal state",
			zap.String("order", order.ID),
			zap.Error(err))
		return
	}

	if status == domain.OrderStatusFilled {
		e.reportBalances(ctx)
	}

	if e.journal != nil {
		if err := e.journal.RecordFill(order, status); err != nil {
			e.l.Error("failed to journal order outcome",
				zap.String("order", order.ID),
				zap.Error(err))
		}
	}
}

// reportBalances refreshes account balances after a fill and reports the new
// fiat total. Informational only, failures do not affect trading.
func (e *Engine) reportBalances(ctx context.Context) {
	balances, err := e.client.GetBalances(ctx)
	if err != nil {
		e.l.Warn("failed to refresh balances after fill",
			zap.String("pair", e.cfg.Pair.String()),
			zap.Error(err))
		return
	}

	total := decimal.Zero
	for _, b := range balances {
		total = total.Add(b.FiatValue)
	}
	e.l.Info("account value after fill",
		zap.String("pair", e.cfg.Pair.String()),
		zap.String("fiat_total", total.String()))
	e.notifier.Notify(ctx, fmt.Sprintf("account value after %s fill: %s", e.cfg.Pair.String(), total))
}

// Close waits for in-flight order trackers to finish. Callers cancel the run
// context first so waiting cannot hang on a live order.
func (e *Engine) Close() {
	e.wg.Wait()
}
