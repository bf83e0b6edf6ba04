package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the opposing side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus mirrors the exchange-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusDoesNotExist    OrderStatus = "DOES_NOT_EXIST"
)

// Terminal reports whether the status ends the order lifecycle.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired,
		OrderStatusRejected, OrderStatusDoesNotExist:
		return true
	}
	return false
}

// Order common order schema shared by all exchange backends.
type Order struct {
	Symbol          string
	ID              string
	Side            Side
	Price           decimal.Decimal
	Qty             decimal.Decimal
	QuoteQty        decimal.Decimal
	Commission      decimal.Decimal
	CommissionAsset string
	Time            time.Time
	Status          OrderStatus
}

// Age returns the time elapsed since the order was created.
func (o *Order) Age(now time.Time) time.Duration {
	return now.Sub(o.Time)
}
