package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantloop/qloop/internal/feed"
	"github.com/quantloop/qloop/internal/sim"
)

// Side is the direction of an acting decision.
type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Config tunes the stand-in strategy. The strategy carries no alpha; its only
// contract is determinism given (seed, event, running state).
type Config struct {
	WindowBars   int             // rolling mean window length
	MinBars      int             // bars needed before the signal can fire
	NotionalUSD  decimal.Decimal // constant notional per acting decision
	CostBaseNs   int64           // fixed component of simulated service time
	CostJitterNs int64           // jittered component, one RandomSource draw per decision
}

// DefaultConfig mirrors the demo strategy parameters.
func DefaultConfig() Config {
	return Config{
		WindowBars:   10,
		MinBars:      5,
		NotionalUSD:  decimal.NewFromInt(1000),
		CostBaseNs:   250_000,
		CostJitterNs: 200_000,
	}
}

// Record is the immutable outcome of one decision. Created here, read by the
// safety gate and the metrics collector, never mutated afterwards.
type Record struct {
	Event      feed.Event
	Act        bool
	Side       Side
	Notional   decimal.Decimal // signed; zero for no-act
	OrderID    string
	DequeuedAt int64
	DecidedAt  int64
	LatencyNs  int64 // virtual-clock delta dequeue -> decide return
}

// Engine computes decisions from queued events. Mean reversion against a
// rolling close average: price above the mean sells, below buys. Decide is a
// pure function of (event, window state, RandomSource cursor); the one draw
// it consumes per decision is the service-time jitter, taken for every event
// including no-acts so the draw sequence stays aligned across runs.
type Engine struct {
	cfg     Config
	seed    int64
	clock   *sim.Clock
	rnd     *sim.Rand
	windows map[string]*window
}

// NewEngine returns a fresh engine with empty per-symbol state.
func NewEngine(cfg Config, seed int64, clock *sim.Clock, rnd *sim.Rand) *Engine {
	if cfg.WindowBars <= 0 {
		cfg.WindowBars = 10
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = 5
	}
	return &Engine{cfg: cfg, seed: seed, clock: clock, rnd: rnd, windows: map[string]*window{}}
}

// Decide consumes one dequeued event and returns its decision record,
// advancing the virtual clock by the decision's simulated service time.
func (e *Engine) Decide(ev feed.Event) Record {
	dequeuedAt := e.clock.Now()

	px, _ := ev.Price.Float64()
	w, ok := e.windows[ev.Symbol]
	if !ok {
		w = newWindow(e.cfg.WindowBars)
		e.windows[ev.Symbol] = w
	}
	ma := w.push(px)

	var diff float64
	if w.size() >= e.cfg.MinBars {
		diff = px - ma
	}
	signal := 0
	switch {
	case diff > 0:
		signal = -1
	case diff < 0:
		signal = 1
	}

	cost := e.cfg.CostBaseNs + int64(e.rnd.NextFloat()*float64(e.cfg.CostJitterNs))
	e.clock.Advance(cost)

	rec := Record{
		Event:      ev,
		OrderID:    orderID(e.seed, ev.Symbol, ev.Seq, signal),
		DequeuedAt: dequeuedAt,
		DecidedAt:  e.clock.Now(),
		LatencyNs:  e.clock.Now() - dequeuedAt,
	}
	switch signal {
	case 1:
		rec.Act = true
		rec.Side = SideBuy
		rec.Notional = e.cfg.NotionalUSD
	case -1:
		rec.Act = true
		rec.Side = SideSell
		rec.Notional = e.cfg.NotionalUSD.Neg()
	default:
		rec.Notional = decimal.Zero
	}
	return rec
}

// orderID derives the deterministic idempotency key for a decision. Two runs
// with the same seed produce the same id for the same (event, decision) pair.
func orderID(seed int64, symbol string, seq uint64, signal int) string {
	src := fmt.Sprintf("%d:%s:%d:%d", seed, symbol, seq, signal)
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])[:16]
}

// window is a fixed-size ring of recent closes with a running sum.
type window struct {
	vals []float64
	head int
	n    int
	sum  float64
}

func newWindow(cap int) *window {
	return &window{vals: make([]float64, cap)}
}

// push appends px, evicting the oldest value once full, and returns the mean.
func (w *window) push(px float64) float64 {
	if w.n == len(w.vals) {
		w.sum -= w.vals[w.head]
	} else {
		w.n++
	}
	w.vals[w.head] = px
	w.head = (w.head + 1) % len(w.vals)
	w.sum += px
	return w.sum / float64(w.n)
}

func (w *window) size() int { return w.n }
