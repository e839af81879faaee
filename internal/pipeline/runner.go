package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/quantloop/qloop/internal/config"
	"github.com/quantloop/qloop/internal/decision"
	"github.com/quantloop/qloop/internal/feed"
	"github.com/quantloop/qloop/internal/metrics"
	"github.com/quantloop/qloop/internal/queue"
	"github.com/quantloop/qloop/internal/risk"
	"github.com/quantloop/qloop/internal/sim"
)

// depth-sampling cadence on the virtual clock
const sampleEveryNs = 50_000_000

// Runner executes the full pipeline for one run: event source -> bounded
// queue -> decision engine -> safety gate -> metrics. Every Run builds all
// stages fresh, so repeated runs share no mutable state.
type Runner struct {
	cfg      config.Root
	fixtures *feed.FixtureSet
	log      zerolog.Logger
	pacer    *rate.Limiter
}

// NewRunner returns a runner over pre-loaded fixtures.
func NewRunner(cfg config.Root, fixtures *feed.FixtureSet, log zerolog.Logger) *Runner {
	return &Runner{cfg: cfg, fixtures: fixtures, log: log}
}

// WithPace throttles the processing loop to roughly eventsPerSec on the wall
// clock, for watching a run live. Pacing only sleeps between events; all
// measured quantities still come from the virtual clock, so a paced run
// produces the same metrics as an unpaced one.
func (r *Runner) WithPace(eventsPerSec float64) *Runner {
	if eventsPerSec > 0 {
		r.pacer = rate.NewLimiter(rate.Limit(eventsPerSec), 1)
	}
	return r
}

// Run executes one full pipeline run. Cancelling ctx aborts the run; the
// returned metrics then cover only decisions finalized before the cutoff.
func (r *Runner) Run(ctx context.Context) (metrics.RunMetrics, error) {
	if err := r.cfg.Validate(); err != nil {
		return metrics.RunMetrics{}, fmt.Errorf("invalid run config: %w", err)
	}
	pol, err := queue.ParsePolicy(r.cfg.Queue.Policy)
	if err != nil {
		return metrics.RunMetrics{}, err
	}

	durationNs := int64(r.cfg.DurationS) * 1_000_000_000
	intervalNs := int64(r.cfg.Engine.EventIntervalUs) * 1_000

	clock := sim.NewClock()
	rnd := sim.NewRand(r.cfg.Seed)
	collector := metrics.NewCollector()
	collector.RecordErrors(uint64(r.fixtures.Rejected))

	src := feed.NewSource(r.fixtures, feed.SourceConfig{
		IntervalNs:      intervalNs,
		DurationNs:      durationNs,
		BurstStartNs:    int64(r.cfg.Burst.StartS) * 1_000_000_000,
		BurstLenNs:      int64(r.cfg.Burst.LenS) * 1_000_000_000,
		BurstMultiplier: r.cfg.Burst.Multiplier,
	}, rnd)

	q, err := queue.New(r.cfg.Queue.Capacity, pol, collector.ObserveDepth)
	if err != nil {
		return metrics.RunMetrics{}, err
	}

	engine := decision.NewEngine(decision.Config{
		WindowBars:   r.cfg.Engine.WindowBars,
		MinBars:      r.cfg.Engine.MinBars,
		NotionalUSD:  decimal.NewFromFloat(r.cfg.Engine.NotionalUSD),
		CostBaseNs:   int64(r.cfg.Engine.CostBaseUs) * 1_000,
		CostJitterNs: int64(r.cfg.Engine.CostJitterUs) * 1_000,
	}, r.cfg.Seed, clock, rnd)

	gate := risk.NewGate(riskConfig(r.cfg.Risk))

	nextSample := int64(sampleEveryNs)
	aborted := false

	for clock.Now() < durationNs {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		// pump every arrival due at or before now
		for {
			ev, ok := src.Peek()
			if !ok || ev.At > clock.Now() {
				break
			}
			src.Next()
			collector.RecordIngested()
			wasFull := q.Depth() == r.cfg.Queue.Capacity
			q.Enqueue(ev, clock.Now())
			if wasFull {
				collector.RecordBackpressure()
				collector.RecordDrop()
			}
		}

		ev, ok := q.Dequeue(clock.Now())
		if !ok {
			// idle: jump the clock to the next arrival, or finish
			next, more := src.Peek()
			if !more {
				break
			}
			clock.AdvanceTo(min(next.At, durationNs))
			continue
		}

		rec := engine.Decide(ev)
		if rec.DecidedAt > durationNs {
			// decision completed past the cutoff; not counted
			aborted = true
			break
		}

		verdict := gate.Apply(rec)
		switch {
		case verdict.Applied:
			// counted below
		case verdict.Reason == risk.ReasonIdempotency:
			collector.RecordIdempotencyViolation(ev.Symbol)
		default:
			collector.RecordBlock(ev.Symbol, string(verdict.Reason))
		}
		collector.RecordDecision(ev.Symbol, rec.LatencyNs, clock.Now()-ev.At, rec.Act && verdict.Applied)

		for nextSample <= clock.Now() && nextSample <= durationNs {
			collector.SampleDepthSeries(nextSample, q.Depth())
			nextSample += sampleEveryNs
		}

		if r.pacer != nil {
			if err := r.pacer.Wait(ctx); err != nil {
				aborted = true
				break
			}
		}
	}

	elapsed := min(clock.Now(), durationNs)
	m := collector.Finalize(elapsed, metrics.BurstWindow{
		StartS: float64(r.cfg.Burst.StartS),
		EndS:   float64(r.cfg.Burst.StartS + r.cfg.Burst.LenS),
	}, metrics.TakeResourceSnapshot())

	r.log.Info().
		Bool("aborted", aborted).
		Uint64("processed", m.Processed).
		Uint64("drops", m.Reliability.Drops).
		Uint64("exposure_blocks", m.Reliability.ExposureBlocks).
		Int("queue_depth_max", m.Resources.QueueDepthMax).
		Float64("eps", m.Throughput.EventsPerSec).
		Msg("run complete")
	return m, nil
}

func riskConfig(rc config.Risk) risk.Config {
	cfg := risk.Config{ExposureCapUSD: decimal.NewFromFloat(rc.ExposureCapUSD)}
	if len(rc.SymbolCapsUSD) > 0 {
		cfg.SymbolCaps = make(map[string]decimal.Decimal, len(rc.SymbolCapsUSD))
		for sym, cap := range rc.SymbolCapsUSD {
			cfg.SymbolCaps[sym] = decimal.NewFromFloat(cap)
		}
	}
	return cfg
}
