package exchange

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"gridbot/internal/domain"
	"gridbot/internal/services/orderbook"
)

const (
	binanceCodeUnknownOrder  = -2011
	binanceCodeOrderNotExist = -2013
)

// BinanceClient implements the capability interface on top of the Binance
// spot REST API.
type BinanceClient struct {
	client *binance.Client
	l      *zap.Logger
}

func NewBinanceClient(apiKey, apiSecret string, l *zap.Logger) *BinanceClient {
	return &BinanceClient{
		client: binance.NewClient(apiKey, apiSecret),
		l:      l,
	}
}

func (c *BinanceClient) PlaceOrder(ctx context.Context, pair domain.Pair, side domain.Side, qty, price decimal.Decimal) (*domain.Order, error) {
	res, err := c.client.NewCreateOrderService().
		Symbol(pair.Symbol()).
		Side(binanceSide(side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(qty.String()).
		Price(price.String()).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to place binance %s order for %s", side, pair.Symbol())
	}

	return &domain.Order{
		Symbol:   pair.Symbol(),
		ID:       strconv.FormatInt(res.OrderID, 10),
		Side:     side,
		Price:    price,
		Qty:      qty,
		QuoteQty: qty.Mul(price),
		Time:     time.UnixMilli(res.TransactTime),
		Status:   binanceStatus(res.Status),
	}, nil
}

func (c *BinanceClient) CancelOrder(ctx context.Context, pair domain.Pair, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid binance order id %q", orderID)
	}

	_, err = c.client.NewCancelOrderService().
		Symbol(pair.Symbol()).
		OrderID(id).
		Do(ctx)
	if err != nil {
		if apiErr, ok := err.(*common.APIError); ok &&
			(apiErr.Code == binanceCodeUnknownOrder || apiErr.Code == binanceCodeOrderNotExist) {
			return domain.ErrOrderNotFound
		}
		return errors.Wrapf(err, "failed to cancel binance order %s", orderID)
	}
	return nil
}

func (c *BinanceClient) GetOrderStatus(ctx context.Context, pair domain.Pair, orderID string) (*domain.Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid binance order id %q", orderID)
	}

	res, err := c.client.NewGetOrderService().
		Symbol(pair.Symbol()).
		OrderID(id).
		Do(ctx)
	if err != nil {
		if apiErr, ok := err.(*common.APIError); ok && apiErr.Code == binanceCodeOrderNotExist {
			return &domain.Order{
				Symbol: pair.Symbol(),
				ID:     orderID,
				Status: domain.OrderStatusDoesNotExist,
			}, nil
		}
		return nil, errors.Wrapf(err, "failed to query binance order %s", orderID)
	}

	return binanceOrder(res), nil
}

func (c *BinanceClient) GetOpenOrders(ctx context.Context, pair domain.Pair) ([]domain.Order, error) {
	res, err := c.client.NewListOpenOrdersService().
		Symbol(pair.Symbol()).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list binance open orders for %s", pair.Symbol())
	}

	orders := make([]domain.Order, 0, len(res))
	for _, o := range res {
		orders = append(orders, *binanceOrder(o))
	}
	return orders, nil
}

func (c *BinanceClient) GetTradeHistory(ctx context.Context, pair domain.Pair) ([]domain.Trade, error) {
	res, err := c.client.NewListTradesService().
		Symbol(pair.Symbol()).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list binance trades for %s", pair.Symbol())
	}

	trades := make([]domain.Trade, 0, len(res))
	for _, t := range res {
		price := mustDecimal(t.Price)
		qty := mustDecimal(t.Quantity)
		trades = append(trades, domain.Trade{
			Symbol:          pair.Symbol(),
			Price:           price,
			Qty:             qty,
			QuoteQty:        mustDecimal(t.QuoteQuantity),
			Commission:      mustDecimal(t.Commission),
			CommissionAsset: t.CommissionAsset,
			Time:            time.UnixMilli(t.Time),
			IsBuyer:         t.IsBuyer,
		})
	}

	sort.Slice(trades, func(i, j int) bool { return trades[i].Time.Before(trades[j].Time) })
	return trades, nil
}

func (c *BinanceClient) GetOrderbook(ctx context.Context, pair domain.Pair) (*Book, error) {
	res, err := c.client.NewDepthService().
		Symbol(pair.Symbol()).
		Limit(100).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch binance depth for %s", pair.Symbol())
	}

	book := &Book{}
	for _, b := range res.Bids {
		book.Bids = append(book.Bids, orderbook.Level{
			Price: mustDecimal(b.Price),
			Qty:   mustDecimal(b.Quantity),
		})
	}
	for _, a := range res.Asks {
		book.Asks = append(book.Asks, orderbook.Level{
			Price: mustDecimal(a.Price),
			Qty:   mustDecimal(a.Quantity),
		})
	}

	sort.Slice(book.Bids, func(i, j int) bool { return book.Bids[i].Price.GreaterThan(book.Bids[j].Price) })
	sort.Slice(book.Asks, func(i, j int) bool { return book.Asks[i].Price.LessThan(book.Asks[j].Price) })
	return book, nil
}

func (c *BinanceClient) GetBalances(ctx context.Context) ([]domain.Balance, error) {
	account, err := c.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get binance account")
	}

	balances := make([]domain.Balance, 0, len(account.Balances))
	for _, b := range account.Balances {
		free := mustDecimal(b.Free)
		if free.IsZero() {
			continue
		}
		balances = append(balances, domain.Balance{Asset: b.Asset, Free: free})
	}

	pricesRes, err := c.client.NewListPricesService().Do(ctx)
	if err != nil {
		// balances are still usable without valuations
		c.l.Warn("failed to fetch binance prices for valuation", zap.Error(err))
		return balances, nil
	}

	prices := make(map[string]decimal.Decimal, len(pricesRes))
	for _, p := range pricesRes {
		prices[p.Symbol] = mustDecimal(p.Price)
	}

	return Valuate(balances, prices), nil
}

func (c *BinanceClient) Close() error { return nil }

func binanceSide(side domain.Side) binance.SideType {
	if side == domain.SideBuy {
		return binance.SideTypeBuy
	}
	return binance.SideTypeSell
}

func binanceOrder(o *binance.Order) *domain.Order {
	price := mustDecimal(o.Price)
	qty := mustDecimal(o.OrigQuantity)
	side := domain.SideSell
	if o.Side == binance.SideTypeBuy {
		side = domain.SideBuy
	}

	return &domain.Order{
		Symbol:   o.Symbol,
		ID:       strconv.FormatInt(o.OrderID, 10),
		Side:     side,
		Price:    price,
		Qty:      qty,
		QuoteQty: qty.Mul(price),
		Time:     time.UnixMilli(o.Time),
		Status:   binanceStatus(o.Status),
	}
}

func binanceStatus(s binance.OrderStatusType) domain.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew:
		return domain.OrderStatusNew
	case binance.OrderStatusTypePartiallyFilled:
		return domain.OrderStatusPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return domain.OrderStatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypePendingCancel:
		return domain.OrderStatusCanceled
	case binance.OrderStatusTypeRejected:
		return domain.OrderStatusRejected
	case binance.OrderStatusTypeExpired:
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusDoesNotExist
	}
}

// mustDecimal parses exchange-reported numeric strings; exchanges send valid
// numbers, a parse failure yields zero rather than a crash mid-cycle.
func mustDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
