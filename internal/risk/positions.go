package risk

import (
	"sync"

	"github.com/shopspring/decimal"
)

// PositionBook tracks per-symbol signed notional exposure. It is owned by the
// safety gate: only decisions that passed the gate mutate it, and mutations
// for a symbol happen in that symbol's strict arrival order. The lock exists
// for readers on other lanes (metrics, reporting), not for write contention.
type PositionBook struct {
	mu       sync.RWMutex
	notional map[string]decimal.Decimal
}

// NewPositionBook returns an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{notional: map[string]decimal.Decimal{}}
}

// Exposure returns the current signed notional for a symbol.
func (b *PositionBook) Exposure(symbol string) decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.notional[symbol]
}

// Snapshot returns a copy of all positions.
func (b *PositionBook) Snapshot() map[string]decimal.Decimal {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(b.notional))
	for sym, n := range b.notional {
		out[sym] = n
	}
	return out
}

// apply adds notional to a symbol's exposure. Gate-internal.
func (b *PositionBook) apply(symbol string, notional decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notional[symbol] = b.notional[symbol].Add(notional)
}
