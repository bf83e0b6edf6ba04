// Package signal produces trade signals consumed by the bot run loop.
package signal

import (
	"context"

	"gridbot/internal/domain"
)

// Provider yields a signal for a pair. A SKIP signal tells the bot to
// skip the current cycle entirely.
type Provider interface {
	Signal(ctx context.Context, pair domain.Pair) (domain.Signal, error)
}

// Static always returns the same signal. Useful as a default provider
// when no external signal source is configured.
type Static struct {
	signal domain.Signal
}

func NewStatic(s domain.Signal) *Static {
	return &Static{signal: s}
}

func (s *Static) Signal(_ context.Context, _ domain.Pair) (domain.Signal, error) {
	return s.signal, nil
}
