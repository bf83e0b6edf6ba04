package exchange

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/domain"
	"gridbot/internal/services/orderbook"
	"gridbot/internal/wsrpc"
)

// wsEndpoints maps the WebSocket-RPC platforms to their endpoints. They all
// speak the same protocol.
var wsEndpoints = map[Platform]string{
	PlatformNonKYC: "wss://api.nonkyc.io/ws",
	PlatformXeggex: "wss://api.xeggex.com/ws",
	PlatformMexc:   "wss://wbs.mexc.com/ws",
}

// NonKYCClient implements the capability interface for NonKYC-style
// exchanges over the wsrpc transport. Order and trade reports arrive as
// {id, side, quantity, price, createdAt} objects and are renamed into the
// common schema; commission fields are absent and stay empty.
type NonKYCClient struct {
	platform Platform
	rpc      *wsrpc.Client
	books    *orderbook.Store
	l        *zap.Logger

	mu      sync.Mutex
	tickers map[string]decimal.Decimal // concatenated symbol -> last price
	subs    []domain.Pair
}

// NewNonKYCClient builds a client for any of the WebSocket-RPC platforms.
func NewNonKYCClient(platform Platform, apiKey, apiSecret string, l *zap.Logger) (*NonKYCClient, error) {
	url, ok := wsEndpoints[platform]
	if !ok {
		return nil, errors.Errorf("platform %s does not speak the WebSocket-RPC protocol", platform)
	}

	c := &NonKYCClient{
		platform: platform,
		rpc:      wsrpc.New(url, apiKey, apiSecret, l),
		books:    orderbook.NewStore(),
		l:        l,
		tickers:  make(map[string]decimal.Decimal),
	}
	c.rpc.OnReconnect = c.resubscribe
	return c, nil
}

// Connect establishes the WebSocket session and logs in.
func (c *NonKYCClient) Connect(ctx context.Context) error {
	return c.rpc.Connect(ctx)
}

// SubscribeMarket subscribes the pair's orderbook and ticker streams.
// Subscriptions survive reconnects.
func (c *NonKYCClient) SubscribeMarket(ctx context.Context, pair domain.Pair) error {
	symbol := pair.SlashSymbol()

	c.rpc.Handle("snapshotOrderbook", symbol, func(params json.RawMessage) {
		c.applyBookMessage(symbol, params, true)
	})
	c.rpc.Handle("updateOrderbook", symbol, func(params json.RawMessage) {
		c.applyBookMessage(symbol, params, false)
	})
	c.rpc.Handle("ticker", symbol, func(params json.RawMessage) {
		c.applyTicker(pair, params)
	})

	if _, err := c.rpc.Call(ctx, "subscribeOrderbook", map[string]string{"symbol": symbol}); err != nil {
		return errors.Wrapf(err, "failed to subscribe orderbook for %s", symbol)
	}
	if _, err := c.rpc.Call(ctx, "subscribeTicker", map[string]string{"symbol": symbol}); err != nil {
		return errors.Wrapf(err, "failed to subscribe ticker for %s", symbol)
	}

	c.mu.Lock()
	c.subs = append(c.subs, pair)
	c.mu.Unlock()
	return nil
}

// resubscribe replays market subscriptions after a reconnect. Books are
// dropped first so stale state is replaced wholesale by the next snapshot.
func (c *NonKYCClient) resubscribe() {
	c.mu.Lock()
	subs := make([]domain.Pair, len(c.subs))
	copy(subs, c.subs)
	c.subs = c.subs[:0]
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, pair := range subs {
		c.books.Drop(pair.SlashSymbol())
		if err := c.SubscribeMarket(ctx, pair); err != nil {
			c.l.Error("failed to resubscribe market data",
				zap.String("pair", pair.String()),
				zap.Error(err))
		}
	}
}

type bookEntry struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type bookMessage struct {
	Symbol string      `json:"symbol"`
	Ask    []bookEntry `json:"ask"`
	Bid    []bookEntry `json:"bid"`
}

func (c *NonKYCClient) applyBookMessage(symbol string, params json.RawMessage, snapshot bool) {
	var msg bookMessage
	if err := json.Unmarshal(params, &msg); err != nil {
		c.l.Warn("malformed orderbook message", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	bids := make([]orderbook.Level, 0, len(msg.Bid))
	for _, e := range msg.Bid {
		bids = append(bids, orderbook.Level{Price: mustDecimal(e.Price), Qty: mustDecimal(e.Quantity)})
	}
	asks := make([]orderbook.Level, 0, len(msg.Ask))
	for _, e := range msg.Ask {
		asks = append(asks, orderbook.Level{Price: mustDecimal(e.Price), Qty: mustDecimal(e.Quantity)})
	}

	if snapshot {
		c.books.ApplySnapshot(symbol, bids, asks)
		return
	}
	c.books.ApplyDelta(symbol, bids, asks)
}

func (c *NonKYCClient) applyTicker(pair domain.Pair, params json.RawMessage) {
	var msg struct {
		LastPrice string `json:"lastPrice"`
		Last      string `json:"last"`
	}
	if err := json.Unmarshal(params, &msg); err != nil {
		return
	}

	raw := msg.LastPrice
	if raw == "" {
		raw = msg.Last
	}
	price := mustDecimal(raw)
	if price.IsZero() {
		return
	}

	c.mu.Lock()
	c.tickers[pair.Symbol()] = price
	c.mu.Unlock()
}

// orderReport is the exchange-native order/trade schema.
type orderReport struct {
	ID        string `json:"id"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Quantity  string `json:"quantity"`
	Price     string `json:"price"`
	CreatedAt int64  `json:"createdAt"`
	Status    string `json:"status"`
}

// normalize renames the report fields into the common schema and synthesizes
// quoteQty = qty*price. Commission data is not reported by these backends.
func (r orderReport) normalize(fallback domain.OrderStatus) domain.Order {
	price := mustDecimal(r.Price)
	qty := mustDecimal(r.Quantity)

	status := fallback
	switch strings.ToLower(r.Status) {
	case "new":
		status = domain.OrderStatusNew
	case "partiallyfilled", "partially_filled":
		status = domain.OrderStatusPartiallyFilled
	case "filled":
		status = domain.OrderStatusFilled
	case "canceled", "cancelled":
		status = domain.OrderStatusCanceled
	case "expired":
		status = domain.OrderStatusExpired
	case "rejected":
		status = domain.OrderStatusRejected
	}

	return domain.Order{
		Symbol:   r.Symbol,
		ID:       r.ID,
		Side:     domain.Side(strings.ToLower(r.Side)),
		Price:    price,
		Qty:      qty,
		QuoteQty: qty.Mul(price),
		Time:     time.UnixMilli(r.CreatedAt),
		Status:   status,
	}
}

func (c *NonKYCClient) PlaceOrder(ctx context.Context, pair domain.Pair, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error) {
	res, err := c.rpc.Call(ctx, "newOrder", map[string]string{
		"symbol":         pair.SlashSymbol(),
		"side":           string(side),
		"type":           "limit",
		"quantity":       qty.String(),
		"price":          price.String(),
		"userProvidedId": uuid.NewString(),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to place %s %s order", pair.SlashSymbol(), side)
	}

	var report orderReport
	if err := json.Unmarshal(res, &report); err != nil {
		return nil, errors.Wrap(err, "malformed newOrder response")
	}

	order := report.normalize(domain.OrderStatusNew)
	if order.Time.IsZero() || report.CreatedAt == 0 {
		order.Time = time.Now()
	}
	return &order, nil
}

func (c *NonKYCClient) CancelOrder(ctx context.Context, pair domain.Pair, orderID string) error {
	_, err := c.rpc.Call(ctx, "cancelOrder", map[string]string{"id": orderID})
	if err != nil {
		var rpcErr *wsrpc.RPCError
		if errors.As(err, &rpcErr) && strings.Contains(strings.ToLower(rpcErr.Message), "not found") {
			return domain.ErrOrderNotFound
		}
		return errors.Wrapf(err, "failed to cancel order %s", orderID)
	}
	return nil
}

// GetOrderStatus scans the active, filled, and cancelled report lists for the
// tracked id; an order in none of them does not exist.
func (c *NonKYCClient) GetOrderStatus(ctx context.Context, pair domain.Pair, orderID string) (*domain.Order, error) {
	for _, method := range []string{"getOrders", "getFilledOrders", "getCancelledOrders"} {
		reports, err := c.fetchReports(ctx, method, pair)
		if err != nil {
			return nil, err
		}
		for _, r := range reports {
			if r.ID == orderID {
				order := r.normalize(statusFallbackFor(method))
				return &order, nil
			}
		}
	}

	return &domain.Order{
		Symbol: pair.SlashSymbol(),
		ID:     orderID,
		Status: domain.OrderStatusDoesNotExist,
	}, nil
}

// statusFallbackFor covers reports that omit the status field: the list the
// report came from implies it.
func statusFallbackFor(method string) domain.OrderStatus {
	switch method {
	case "getFilledOrders":
		return domain.OrderStatusFilled
	case "getCancelledOrders":
		return domain.OrderStatusCanceled
	default:
		return domain.OrderStatusNew
	}
}

func (c *NonKYCClient) fetchReports(ctx context.Context, method string, pair domain.Pair) ([]orderReport, error) {
	res, err := c.rpc.Call(ctx, method, map[string]string{"symbol": pair.SlashSymbol()})
	if err != nil {
		return nil, errors.Wrapf(err, "%s failed for %s", method, pair.SlashSymbol())
	}

	var reports []orderReport
	if err := json.Unmarshal(res, &reports); err != nil {
		return nil, errors.Wrapf(err, "malformed %s response", method)
	}
	return reports, nil
}

func (c *NonKYCClient) GetOpenOrders(ctx context.Context, pair domain.Pair) ([]domain.Order, error) {
	reports, err := c.fetchReports(ctx, "getOrders", pair)
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(reports))
	for _, r := range reports {
		orders = append(orders, r.normalize(domain.OrderStatusNew))
	}
	return orders, nil
}

// GetTradeHistory derives trades from the filled-order reports, oldest first.
func (c *NonKYCClient) GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.Trade, error) {
	reports, err := c.fetchReports(ctx, "getFilledOrders", pair)
	if err != nil {
		return nil, err
	}

	trades := make([]domain.Trade, 0, len(reports))
	for _, r := range reports {
		o := r.normalize(domain.OrderStatusFilled)
		trades = append(trades, domain.Trade{
			Symbol:   o.Symbol,
			Price:    o.Price,
			Qty:      o.Qty,
			QuoteQty: o.QuoteQty,
			Time:     o.Time,
			IsBuyer:  o.Side == domain.SideBuy,
		})
	}

	sort.Slice(trades, func(i, j int) bool { return trades[i].Time.Before(trades[j].Time) })
	return trades, nil
}

// GetOrderbook reads the locally maintained book. ErrNotReady until the first
// snapshot for the pair arrives.
func (c *NonKYCClient) GetOrderbook(ctx context.Context, pair domain.Pair) (*Book, error) {
	symbol := pair.SlashSymbol()
	if !c.books.Ready(symbol) {
		return nil, domain.ErrNotReady
	}

	bids, asks := c.books.Levels(symbol)
	return &Book{Bids: bids, Asks: asks}, nil
}

func (c *NonKYCClient) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	res, err := c.rpc.Call(ctx, "getTradingBalance", nil)
	if err != nil {
		return nil, errors.Wrap(err, "getTradingBalance failed")
	}

	var raw []struct {
		Asset     string `json:"asset"`
		Available string `json:"available"`
	}
	if err := json.Unmarshal(res, &raw); err != nil {
		return nil, errors.Wrap(err, "malformed getTradingBalance response")
	}

	balances := make([]domain.Balance, 0, len(raw))
	for _, b := range raw {
		free := mustDecimal(b.Available)
		if free.IsZero() {
			continue
		}
		balances = append(balances, domain.Balance{Asset: b.Asset, Free: free})
	}

	c.mu.Lock()
	prices := make(map[string]decimal.Decimal, len(c.tickers))
	for k, v := range c.tickers {
		prices[k] = v
	}
	c.mu.Unlock()

	return Valuate(balances, prices), nil
}

func (c *NonKYCClient) Close() error {
	return c.rpc.Close()
}
