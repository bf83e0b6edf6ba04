package domain

import "github.com/pkg/errors"

var (
	// ErrNotReady market data (orderbook, trade history) is not available yet.
	ErrNotReady = errors.New("market data not ready")
	// ErrOrderNotFound the exchange does not know the requested order.
	ErrOrderNotFound = errors.New("order not found")
)
