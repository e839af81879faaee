package feed

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/quantloop/qloop/internal/sim"
)

// Event is one market event entering the pipeline. Immutable once created.
// At is the scheduled ingestion time on the virtual clock; Seq is unique and
// strictly increasing within a run.
type Event struct {
	Seq    uint64
	Symbol string
	At     int64
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// SourceConfig controls event scheduling. All times are virtual nanoseconds.
type SourceConfig struct {
	IntervalNs      int64 // base inter-arrival time between ticks
	DurationNs      int64 // events are scheduled up to (exclusive) this time
	BurstStartNs    int64
	BurstLenNs      int64
	BurstMultiplier int // events per tick inside the burst window, 1 = no burst
}

// Source replays fixture bars as a deterministic event schedule. Bars are
// cycled in file order at a fixed tick cadence; inside the burst window each
// tick emits BurstMultiplier events instead of one.
//
// Randomness: the injector consumes exactly BurstMultiplier-1 NextFloat draws
// per burst tick, one per extra event, before anything else draws for those
// events. That fixed order makes the burst shape a pure function of the
// RandomSource cursor at the start of the tick.
type Source struct {
	bars []Bar
	cfg  SourceConfig
	rnd  *sim.Rand

	pending  []Event
	nextTick int64
	barIdx   int
	seq      uint64
	done     bool
}

// NewSource builds the schedule iterator for one run.
func NewSource(fs *FixtureSet, cfg SourceConfig, rnd *sim.Rand) *Source {
	if cfg.BurstMultiplier < 1 {
		cfg.BurstMultiplier = 1
	}
	return &Source{bars: fs.Bars, cfg: cfg, rnd: rnd}
}

// Peek returns the next scheduled event without consuming it. The second
// return is false once the schedule is exhausted.
func (s *Source) Peek() (Event, bool) {
	if !s.fill() {
		return Event{}, false
	}
	return s.pending[0], true
}

// Next consumes and returns the next scheduled event in arrival order.
func (s *Source) Next() (Event, bool) {
	if !s.fill() {
		return Event{}, false
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, true
}

// fill generates the next tick's batch when the pending buffer is empty.
func (s *Source) fill() bool {
	if len(s.pending) > 0 {
		return true
	}
	if s.done || len(s.bars) == 0 {
		return false
	}
	tick := s.nextTick
	if tick >= s.cfg.DurationNs {
		s.done = true
		return false
	}
	s.nextTick += s.cfg.IntervalNs

	offsets := []int64{0}
	if s.inBurst(tick) && s.cfg.BurstMultiplier > 1 {
		offsets = append(offsets, burstOffsets(s.rnd, s.cfg.BurstMultiplier-1, s.cfg.IntervalNs)...)
	}
	for _, off := range offsets {
		bar := s.bars[s.barIdx%len(s.bars)]
		s.barIdx++
		s.pending = append(s.pending, Event{
			Seq:    s.seq,
			Symbol: bar.Symbol,
			At:     tick + off,
			Price:  bar.Close,
			Volume: bar.Volume,
		})
		s.seq++
	}
	return true
}

func (s *Source) inBurst(t int64) bool {
	return s.cfg.BurstLenNs > 0 &&
		t >= s.cfg.BurstStartNs && t < s.cfg.BurstStartNs+s.cfg.BurstLenNs
}

// burstOffsets draws n intra-tick offsets in [0, intervalNs) and returns them
// sorted ascending so the batch stays in arrival order. Consumes exactly n
// draws, in order, from rnd.
func burstOffsets(rnd *sim.Rand, n int, intervalNs int64) []int64 {
	offs := make([]int64, n)
	for i := range offs {
		offs[i] = int64(rnd.NextFloat() * float64(intervalNs))
	}
	sort.Slice(offs, func(i, j int) bool { return offs[i] < offs[j] })
	return offs
}

// TotalScheduled reports how many events the source has emitted so far.
func (s *Source) TotalScheduled() uint64 {
	return s.seq
}
