package risk

import (
	"github.com/shopspring/decimal"

	"github.com/quantloop/qloop/internal/decision"
	"github.com/quantloop/qloop/internal/observ"
)

// Reason is a gate rejection reason. The set is closed: a blocked decision
// always carries exactly one of these, never free text.
type Reason string

const (
	// ReasonExposureCap means applying the decision would push the symbol's
	// absolute notional beyond its cap. An expected safety outcome.
	ReasonExposureCap Reason = "exposure_cap"
	// ReasonIdempotency means the same (event, decision) pair reached the
	// gate twice. Expected count is zero; nonzero signals a pipeline bug.
	ReasonIdempotency Reason = "idempotency_violation"
)

// Config sets the exposure limits the gate enforces.
type Config struct {
	ExposureCapUSD decimal.Decimal            // default per-symbol cap on |notional|
	SymbolCaps     map[string]decimal.Decimal // optional per-symbol overrides
}

// Verdict is the gate's total outcome for one decision: either applied, or
// blocked with a specific reason. Never silent.
type Verdict struct {
	Applied bool
	Reason  Reason
}

// Gate validates decisions before they count as executed. It owns the
// position book and the set of order ids it has already accepted.
type Gate struct {
	cfg        Config
	book       *PositionBook
	seen       map[string]struct{}
	violations uint64
}

// NewGate returns a gate with a fresh position book and idempotency set.
func NewGate(cfg Config) *Gate {
	return &Gate{cfg: cfg, book: NewPositionBook(), seen: map[string]struct{}{}}
}

// Apply checks a decision against the idempotency set and the exposure cap.
// On acceptance the position book is updated before returning, so the next
// decision for the symbol sees the new exposure.
func (g *Gate) Apply(rec decision.Record) Verdict {
	if _, dup := g.seen[rec.OrderID]; dup {
		g.violations++
		observ.IncCounter("gate_idempotency_violations_total", map[string]string{"symbol": rec.Event.Symbol})
		return Verdict{Applied: false, Reason: ReasonIdempotency}
	}
	g.seen[rec.OrderID] = struct{}{}

	if !rec.Act {
		return Verdict{Applied: true}
	}

	cap := g.capFor(rec.Event.Symbol)
	next := g.book.Exposure(rec.Event.Symbol).Add(rec.Notional)
	if next.Abs().GreaterThan(cap) {
		observ.IncCounter("gate_exposure_blocks_total", map[string]string{
			"symbol": rec.Event.Symbol,
			"reason": string(ReasonExposureCap),
		})
		return Verdict{Applied: false, Reason: ReasonExposureCap}
	}

	g.book.apply(rec.Event.Symbol, rec.Notional)
	return Verdict{Applied: true}
}

func (g *Gate) capFor(symbol string) decimal.Decimal {
	if cap, ok := g.cfg.SymbolCaps[symbol]; ok {
		return cap
	}
	return g.cfg.ExposureCapUSD
}

// Positions exposes the book for read-only consumers.
func (g *Gate) Positions() *PositionBook { return g.book }

// IdempotencyViolations returns how many duplicate decisions were detected.
func (g *Gate) IdempotencyViolations() uint64 { return g.violations }
