// Package orderbook maintains per-symbol bid/ask books reconstructed from
// exchange snapshot and delta messages.
package orderbook

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"gridbot/internal/domain"
)

// Level one price level of a book side.
type Level struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// book holds both sides of a symbol's orderbook. Levels are stored unordered,
// keyed by normalized price; reads that need best prices scan the key set.
// O(n) per read is acceptable for bounded depth of a few hundred levels.
type book struct {
	bids map[string]Level
	asks map[string]Level
}

func newBook() *book {
	return &book{
		bids: make(map[string]Level),
		asks: make(map[string]Level),
	}
}

// Store owns orderbooks for all subscribed symbols.
type Store struct {
	mu    sync.RWMutex
	books map[string]*book
}

func NewStore() *Store {
	return &Store{books: make(map[string]*book)}
}

// ApplySnapshot replaces both sides of the symbol's book wholesale.
func (s *Store) ApplySnapshot(symbol string, bids, asks []Level) {
	b := newBook()
	for _, lvl := range bids {
		if lvl.Qty.IsPositive() {
			b.bids[lvl.Price.String()] = lvl
		}
	}
	for _, lvl := range asks {
		if lvl.Qty.IsPositive() {
			b.asks[lvl.Price.String()] = lvl
		}
	}

	s.mu.Lock()
	s.books[symbol] = b
	s.mu.Unlock()
}

// ApplyDelta applies incremental updates: zero quantity removes the level,
// anything else inserts or replaces it. Deltas for symbols without a prior
// snapshot are dropped.
func (s *Store) ApplyDelta(symbol string, bids, asks []Level) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[symbol]
	if !ok {
		return
	}
	applySide(b.bids, bids)
	applySide(b.asks, asks)
}

func applySide(side map[string]Level, deltas []Level) {
	for _, lvl := range deltas {
		key := lvl.Price.String()
		if lvl.Qty.IsZero() {
			delete(side, key)
			continue
		}
		side[key] = lvl
	}
}

// Drop removes the symbol's book entirely, forcing re-sync from the next snapshot.
func (s *Store) Drop(symbol string) {
	s.mu.Lock()
	delete(s.books, symbol)
	s.mu.Unlock()
}

// Ready reports whether a usable book exists for the symbol.
func (s *Store) Ready(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[symbol]
	return ok && (len(b.bids) > 0 || len(b.asks) > 0)
}

// BestBid returns the highest bid price.
func (s *Store) BestBid(symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[symbol]
	if !ok || len(b.bids) == 0 {
		return decimal.Zero, domain.ErrNotReady
	}

	best := decimal.Zero
	for _, lvl := range b.bids {
		if lvl.Price.GreaterThan(best) {
			best = lvl.Price
		}
	}
	return best, nil
}

// BestAsk returns the lowest ask price.
func (s *Store) BestAsk(symbol string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[symbol]
	if !ok || len(b.asks) == 0 {
		return decimal.Zero, domain.ErrNotReady
	}

	var best decimal.Decimal
	first := true
	for _, lvl := range b.asks {
		if first || lvl.Price.LessThan(best) {
			best = lvl.Price
			first = false
		}
	}
	return best, nil
}

// Levels returns sorted copies of both sides: bids descending, asks ascending.
func (s *Store) Levels(symbol string) (bids, asks []Level) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[symbol]
	if !ok {
		return nil, nil
	}

	bids = make([]Level, 0, len(b.bids))
	for _, lvl := range b.bids {
		bids = append(bids, lvl)
	}
	asks = make([]Level, 0, len(b.asks))
	for _, lvl := range b.asks {
		asks = append(asks, lvl)
	}

	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	return bids, asks
}

// Depth returns the number of levels on each side.
func (s *Store) Depth(symbol string) (bids, asks int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[symbol]
	if !ok {
		return 0, 0
	}
	return len(b.bids), len(b.asks)
}
