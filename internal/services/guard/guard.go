// Package guard serializes order placement per symbol.
package guard

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrSymbolLocked placement was not attempted because another placement for
// the symbol is in flight. Not a failure: the caller retries next cycle.
var ErrSymbolLocked = errors.New("symbol locked by concurrent placement")

// SymbolGuard tracks symbols with an order placement in flight. At most one
// holder per symbol; contention is not an error, the caller simply skips the
// cycle and retries on the next one.
type SymbolGuard struct {
	mu      sync.Mutex
	blocked map[string]struct{}
}

func New() *SymbolGuard {
	return &SymbolGuard{blocked: make(map[string]struct{})}
}

// TryAcquire marks the symbol busy. Returns false when another placement
// already holds it.
func (g *SymbolGuard) TryAcquire(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.blocked[symbol]; held {
		return false
	}
	g.blocked[symbol] = struct{}{}
	return true
}

// Release frees the symbol. Callers must release on every exit path,
// including errors: defer it right after a successful TryAcquire.
func (g *SymbolGuard) Release(symbol string) {
	g.mu.Lock()
	delete(g.blocked, symbol)
	g.mu.Unlock()
}

// Held reports whether the symbol is currently locked.
func (g *SymbolGuard) Held(symbol string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	_, held := g.blocked[symbol]
	return held
}
