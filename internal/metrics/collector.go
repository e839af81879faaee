package metrics

import (
	"sort"
	"sync"

	"github.com/quantloop/qloop/internal/queue"
)

// maxSeriesPoints caps the queue-depth series embedded in reports; beyond it
// the oldest points are dropped.
const maxSeriesPoints = 200

// Collector accumulates one run's samples and counters. Safe for concurrent
// contribution from multiple symbol lanes; percentiles are computed once, in
// Finalize, after all samples are in. No sample recorded after Finalize is
// counted, so an aborted run reflects only completed decisions.
type Collector struct {
	mu sync.Mutex

	decisionNs []int64
	e2eNs      []int64
	perSym     map[string]*symbolAgg

	ingested     uint64
	processed    uint64
	drops        uint64
	errors       uint64
	backpressure uint64
	idempotency  uint64
	blocks       uint64
	blockReasons map[string]uint64

	queueDepthMax int
	series        []QueuePoint
}

type symbolAgg struct {
	decisionNs []int64
	processed  uint64
	trades     uint64
	blocks     uint64
	lastReason string
}

// NewCollector returns an empty collector for one run.
func NewCollector() *Collector {
	return &Collector{
		perSym:       map[string]*symbolAgg{},
		blockReasons: map[string]uint64{},
	}
}

func (c *Collector) sym(symbol string) *symbolAgg {
	a, ok := c.perSym[symbol]
	if !ok {
		a = &symbolAgg{}
		c.perSym[symbol] = a
	}
	return a
}

// RecordIngested counts one event arriving at a queue, accepted or not.
func (c *Collector) RecordIngested() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ingested++
}

// RecordDrop counts one event lost to backpressure.
func (c *Collector) RecordDrop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drops++
}

// RecordBackpressure counts one enqueue that hit the drop branch.
func (c *Collector) RecordBackpressure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backpressure++
}

// RecordErrors adds n pipeline errors (e.g. rejected fixture rows).
func (c *Collector) RecordErrors(n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors += n
}

// RecordDecision records the latency samples for one fully processed event.
// traded marks decisions that acted and were applied.
func (c *Collector) RecordDecision(symbol string, decisionNs, e2eNs int64, traded bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed++
	c.decisionNs = append(c.decisionNs, decisionNs)
	c.e2eNs = append(c.e2eNs, e2eNs)
	a := c.sym(symbol)
	a.processed++
	a.decisionNs = append(a.decisionNs, decisionNs)
	if traded {
		a.trades++
	}
}

// RecordBlock counts one exposure-style gate rejection.
func (c *Collector) RecordBlock(symbol, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blocks++
	c.blockReasons[reason]++
	a := c.sym(symbol)
	a.blocks++
	a.lastReason = reason
}

// RecordIdempotencyViolation counts a duplicate (event, decision) pair.
// Tracked apart from exposure blocks: it indicates a pipeline bug, not a
// market condition.
func (c *Collector) RecordIdempotencyViolation(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idempotency++
}

// ObserveDepth ingests a queue transition sample, tracking the max depth.
func (c *Collector) ObserveDepth(s queue.Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.Depth > c.queueDepthMax {
		c.queueDepthMax = s.Depth
	}
}

// SampleDepthSeries appends one cadence point to the report series, dropping
// the oldest past the cap.
func (c *Collector) SampleDepthSeries(atNs int64, depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if depth > c.queueDepthMax {
		c.queueDepthMax = depth
	}
	c.series = append(c.series, QueuePoint{AtS: float64(atNs) / 1e9, Depth: depth})
	if len(c.series) > maxSeriesPoints {
		c.series = c.series[1:]
	}
}

// Finalize computes the run aggregate from everything recorded so far.
// elapsedNs is the simulated run length; snap is the one-shot host resource
// snapshot taken by the caller at run end.
func (c *Collector) Finalize(elapsedNs int64, burst BurstWindow, snap ResourceSnapshot) RunMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	dec := append([]int64(nil), c.decisionNs...)
	e2e := append([]int64(nil), c.e2eNs...)
	sort.Slice(dec, func(i, j int) bool { return dec[i] < dec[j] })
	sort.Slice(e2e, func(i, j int) bool { return e2e[i] < e2e[j] })

	decQ := quartet(dec)
	jitter := 0.0 // undefined jitter is reported as 0, not an error
	if decQ.P50 > 0 {
		jitter = decQ.P99 / decQ.P50
	}

	elapsedS := float64(elapsedNs) / 1e9
	eps := 0.0
	if elapsedS > 0 {
		eps = float64(c.processed) / elapsedS
	}

	rel := Reliability{
		Ingested:                c.ingested,
		Drops:                   c.drops,
		Errors:                  c.errors,
		IdempotencyViolations:   c.idempotency,
		ExposureBlocks:          c.blocks,
		ExposureBlockReasons:    copyCounts(c.blockReasons),
		BackpressureActivations: c.backpressure,
	}
	if c.ingested > 0 {
		rel.DropRate = float64(c.drops) / float64(c.ingested)
		rel.ErrorRate = float64(c.errors) / float64(c.ingested)
	}

	perSym := make(map[string]SymbolMetrics, len(c.perSym))
	for symbol, a := range c.perSym {
		s := append([]int64(nil), a.decisionNs...)
		sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
		perSym[symbol] = SymbolMetrics{
			Processed:      a.processed,
			LatencyP95Ms:   percentile(s, 0.95) / 1e6,
			Trades:         a.trades,
			ExposureBlocks: a.blocks,
			LastReason:     a.lastReason,
		}
	}

	series := c.series
	if series == nil {
		series = []QueuePoint{}
	}

	return RunMetrics{
		Latency: Latency{
			DecisionMs:  decQ,
			E2EMs:       quartet(e2e),
			JitterRatio: jitter,
			Histogram:   histogram(dec),
		},
		Throughput:  Throughput{EventsPerSec: eps},
		Reliability: rel,
		Resources: Resources{
			CPUPercent:       snap.CPUPercent,
			RSSMB:            snap.RSSMB,
			QueueDepthMax:    c.queueDepthMax,
			QueueDepthSeries: series,
		},
		BurstWindow: burst,
		Processed:   c.processed,
		ElapsedS:    elapsedS,
		PerSymbol:   perSym,
	}
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
