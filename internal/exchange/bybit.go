package exchange

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/domain"
	"gridbot/internal/services/orderbook"
)

// BybitClient implements the capability interface on top of the Bybit V5
// spot API.
type BybitClient struct {
	client *bybit.Client
	l      *zap.Logger
}

func NewBybitClient(apiKey, apiSecret string, l *zap.Logger) *BybitClient {
	return &BybitClient{
		client: bybit.NewClient().WithAuth(apiKey, apiSecret),
		l:      l,
	}
}

func (c *BybitClient) PlaceOrder(ctx context.Context, pair domain.Pair, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error) {
	priceStr := price.String()
	res, err := c.client.V5().Order().CreateOrder(bybit.V5CreateOrderParam{
		Category:  "spot",
		Symbol:    bybit.SymbolV5(pair.Symbol()),
		Side:      bybitSide(side),
		OrderType: bybit.OrderTypeLimit,
		Qty:       qty.String(),
		Price:     &priceStr,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to place bybit %s order for %s", side, pair.Symbol())
	}

	return &domain.Order{
		Symbol:   pair.Symbol(),
		ID:       res.Result.OrderID,
		Side:     side,
		Price:    price,
		Qty:      qty,
		QuoteQty: qty.Mul(price),
		Time:     time.Now(),
		Status:   domain.OrderStatusNew,
	}, nil
}

func (c *BybitClient) CancelOrder(ctx context.Context, pair domain.Pair, orderID string) error {
	_, err := c.client.V5().Order().CancelOrder(bybit.V5CancelOrderParam{
		Category: "spot",
		Symbol:   bybit.SymbolV5(pair.Symbol()),
		OrderID:  &orderID,
	})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not exist") ||
			strings.Contains(strings.ToLower(err.Error()), "not found") {
			return domain.ErrOrderNotFound
		}
		return errors.Wrapf(err, "failed to cancel bybit order %s", orderID)
	}
	return nil
}

func (c *BybitClient) GetOrderStatus(ctx context.Context, pair domain.Pair, orderID string) (*domain.Order, error) {
	symbol := bybit.SymbolV5(pair.Symbol())

	open, err := c.client.V5().Order().GetOpenOrders(bybit.V5GetOpenOrdersParam{
		Category: "spot",
		Symbol:   &symbol,
		OrderID:  &orderID,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query bybit open orders for %s", orderID)
	}
	for _, o := range open.Result.List {
		if o.OrderID == orderID {
			return bybitOrder(pair, o.OrderID, string(o.Side), o.Price, o.Qty, o.CreatedTime, string(o.OrderStatus)), nil
		}
	}

	hist, err := c.client.V5().Order().GetHistoryOrders(bybit.V5GetHistoryOrdersParam{
		Category: "spot",
		Symbol:   &symbol,
		OrderID:  &orderID,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to query bybit order history for %s", orderID)
	}
	for _, o := range hist.Result.List {
		if o.OrderID == orderID {
			return bybitOrder(pair, o.OrderID, string(o.Side), o.Price, o.Qty, o.CreatedTime, string(o.OrderStatus)), nil
		}
	}

	return &domain.Order{
		Symbol: pair.Symbol(),
		ID:     orderID,
		Status: domain.OrderStatusDoesNotExist,
	}, nil
}

func (c *BybitClient) GetOpenOrders(ctx context.Context, pair domain.Pair) ([]domain.Order, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	res, err := c.client.V5().Order().GetOpenOrders(bybit.V5GetOpenOrdersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list bybit open orders for %s", pair.Symbol())
	}

	orders := make([]domain.Order, 0, len(res.Result.List))
	for _, o := range res.Result.List {
		orders = append(orders, *bybitOrder(pair, o.OrderID, string(o.Side), o.Price, o.Qty, o.CreatedTime, string(o.OrderStatus)))
	}
	return orders, nil
}

func (c *BybitClient) GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.Trade, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	res, err := c.client.V5().Execution().GetExecutionList(bybit.V5GetExecutionParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list bybit executions for %s", pair.Symbol())
	}

	trades := make([]domain.Trade, 0, len(res.Result.List))
	for _, e := range res.Result.List {
		ms, _ := strconv.ParseInt(e.ExecTime, 10, 64)
		trades = append(trades, domain.Trade{
			Symbol:          pair.Symbol(),
			Price:           mustDecimal(e.ExecPrice),
			Qty:             mustDecimal(e.ExecQty),
			QuoteQty:        mustDecimal(e.ExecValue),
			Commission:      mustDecimal(e.ExecFee),
			CommissionAsset: pair.To,
			Time:            time.UnixMilli(ms),
			IsBuyer:         strings.EqualFold(string(e.Side), "buy"),
		})
	}

	sort.Slice(trades, func(i, j int) bool { return trades[i].Time.Before(trades[j].Time) })
	return trades, nil
}

// GetOrderbook builds a one-level book from the spot ticker's best bid/ask.
// Grid decisions only consume the top of book, deeper levels are not needed
// for this backend.
func (c *BybitClient) GetOrderbook(ctx context.Context, pair domain.Pair) (*Book, error) {
	symbol := bybit.SymbolV5(pair.Symbol())
	res, err := c.client.V5().Market().GetTickers(bybit.V5GetTickersParam{
		Category: "spot",
		Symbol:   &symbol,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch bybit ticker for %s", pair.Symbol())
	}
	if len(res.Result.Spot.List) == 0 {
		return nil, domain.ErrNotReady
	}

	t := res.Result.Spot.List[0]
	book := &Book{}
	if bid := mustDecimal(t.Bid1Price); !bid.IsZero() {
		book.Bids = append(book.Bids, orderbook.Level{Price: bid, Qty: mustDecimal(t.Bid1Size)})
	}
	if ask := mustDecimal(t.Ask1Price); !ask.IsZero() {
		book.Asks = append(book.Asks, orderbook.Level{Price: ask, Qty: mustDecimal(t.Ask1Size)})
	}
	return book, nil
}

func (c *BybitClient) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	res, err := c.client.V5().Account().GetWalletBalance(bybit.AccountTypeV5("UNIFIED"), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get bybit wallet balance")
	}

	var balances []domain.Balance
	for _, acct := range res.Result.List {
		for _, coin := range acct.Coin {
			free := mustDecimal(coin.WalletBalance)
			if free.IsZero() {
				continue
			}
			balances = append(balances, domain.Balance{Asset: string(coin.Coin), Free: free})
		}
	}

	tickers, err := c.client.V5().Market().GetTickers(bybit.V5GetTickersParam{Category: "spot"})
	if err != nil {
		c.l.Warn("failed to fetch bybit tickers for valuation", zap.Error(err))
		return balances, nil
	}

	prices := make(map[string]decimal.Decimal, len(tickers.Result.Spot.List))
	for _, t := range tickers.Result.Spot.List {
		prices[string(t.Symbol)] = mustDecimal(t.LastPrice)
	}

	return Valuate(balances, prices), nil
}

func (c *BybitClient) Close() error { return nil }

func bybitSide(side domain.Side) bybit.Side {
	if side == domain.SideBuy {
		return bybit.SideBuy
	}
	return bybit.SideSell
}

func bybitOrder(pair domain.Pair, id, side, price, qty, createdTime, status string) *domain.Order {
	p := mustDecimal(price)
	q := mustDecimal(qty)
	ms, _ := strconv.ParseInt(createdTime, 10, 64)

	s := domain.SideSell
	if strings.EqualFold(side, "buy") {
		s = domain.SideBuy
	}

	return &domain.Order{
		Symbol:   pair.Symbol(),
		ID:       id,
		Side:     s,
		Price:    p,
		Qty:      q,
		QuoteQty: q.Mul(p),
		Time:     time.UnixMilli(ms),
		Status:   bybitStatus(status),
	}
}

func bybitStatus(s string) domain.OrderStatus {
	switch strings.ToLower(s) {
	case "new", "created", "untriggered", "active":
		return domain.OrderStatusNew
	case "partiallyfilled":
		return domain.OrderStatusPartiallyFilled
	case "filled", "partiallyfilledcanceled":
		return domain.OrderStatusFilled
	case "cancelled", "canceled":
		return domain.OrderStatusCanceled
	case "rejected":
		return domain.OrderStatusRejected
	case "deactivated":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusDoesNotExist
	}
}
