// Package domain defines core data structures shared by the trading engine.
package domain

import (
	"fmt"
	"strings"
)

// Pair cryptocurrency trading pair.
type Pair struct {
	// From base currency symbol.
	From string
	// To quote currency symbol.
	To string
}

// ParsePair parses a "BTC_USDT" formatted pair.
func ParsePair(s string) (Pair, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Pair{}, fmt.Errorf("invalid pair format %q, expected BASE_QUOTE", s)
	}
	return Pair{From: parts[0], To: parts[1]}, nil
}

// String returns the string representation.
func (p Pair) String() string {
	return fmt.Sprintf("%s_%s", p.From, p.To)
}

// Symbol returns the concatenated symbol used by Binance-style APIs.
func (p Pair) Symbol() string {
	return fmt.Sprintf("%s%s", p.From, p.To)
}

// SlashSymbol returns the slash-separated symbol used by NonKYC-style APIs.
func (p Pair) SlashSymbol() string {
	return fmt.Sprintf("%s/%s", p.From, p.To)
}
