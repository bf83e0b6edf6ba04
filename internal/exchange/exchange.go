// Package exchange normalizes heterogeneous exchange backends behind one
// capability interface. Dispatch is always by explicit platform tag.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"gridbot/internal/domain"
	"gridbot/internal/services/orderbook"
)

// Platform tags a configured exchange backend.
type Platform string

const (
	PlatformBinance Platform = "binance"
	PlatformBybit   Platform = "bybit"
	PlatformNonKYC  Platform = "nonkyc"
	PlatformXeggex  Platform = "xeggex"
	PlatformMexc    Platform = "mexc"
)

// Valid reports whether the tag names a supported backend.
func (p Platform) Valid() bool {
	switch p {
	case PlatformBinance, PlatformBybit, PlatformNonKYC, PlatformXeggex, PlatformMexc:
		return true
	}
	return false
}

// WebsocketRPC reports whether the backend speaks the NonKYC-style
// JSON-RPC-over-WebSocket protocol.
func (p Platform) WebsocketRPC() bool {
	switch p {
	case PlatformNonKYC, PlatformXeggex, PlatformMexc:
		return true
	}
	return false
}

// OrderPollInterval returns the lifecycle polling cadence for the backend:
// REST-poll backends answer fast, report-poll backends only refresh their
// order reports every so often.
func (p Platform) OrderPollInterval() time.Duration {
	if p.WebsocketRPC() {
		return 30 * time.Second
	}
	return 1500 * time.Millisecond
}

// Book is a point-in-time orderbook view: bids sorted descending, asks
// ascending.
type Book struct {
	Bids []orderbook.Level
	Asks []orderbook.Level
}

// BestBid returns the highest bid, or false when the side is empty.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	if len(b.Bids) == 0 {
		return decimal.Zero, false
	}
	return b.Bids[0].Price, true
}

// BestAsk returns the lowest ask, or false when the side is empty.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	if len(b.Asks) == 0 {
		return decimal.Zero, false
	}
	return b.Asks[0].Price, true
}

// MidPrice returns the bid/ask midpoint, falling back to whichever side
// exists.
func (b *Book) MidPrice() (decimal.Decimal, bool) {
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	switch {
	case hasBid && hasAsk:
		return bid.Add(ask).Div(decimal.NewFromInt(2)), true
	case hasBid:
		return bid, true
	case hasAsk:
		return ask, true
	}
	return decimal.Zero, false
}

// Client is the uniform capability contract every backend implements.
type Client interface {
	// PlaceOrder submits a limit order and returns it in the common schema.
	PlaceOrder(ctx context.Context, pair domain.Pair, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error)
	// CancelOrder cancels a resting order. Cancelling an order the exchange
	// no longer knows returns domain.ErrOrderNotFound.
	CancelOrder(ctx context.Context, pair domain.Pair, orderID string) error
	// GetOrderStatus fetches the current state of an order. Unknown orders
	// come back with status DOES_NOT_EXIST and no error.
	GetOrderStatus(ctx context.Context, pair domain.Pair, orderID string) (*domain.Order, error)
	// GetOpenOrders lists resting orders for the pair.
	GetOpenOrders(ctx context.Context, pair domain.Pair) ([]domain.Order, error)
	// GetTradeHistory returns normalized fills for the pair, oldest first.
	GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.Trade, error)
	// GetOrderbook returns the current book view for the pair.
	GetOrderbook(ctx context.Context, pair domain.Pair) (*Book, error)
	// GetBalances returns account balances with fiat valuations attached.
	GetBalances(ctx context.Context) ([]domain.Balance, error)
	// Close releases backend connections.
	Close() error
}
