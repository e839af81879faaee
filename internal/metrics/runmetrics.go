package metrics

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// RunMetrics is the final aggregate for one pipeline run. Field names are a
// stable contract consumed by external report tooling and the baseline store.
// Every field except Resources.CPUPercent and Resources.RSSMB is a
// deterministic function of (seed, fixture, code) and participates in the
// determinism comparison.
type RunMetrics struct {
	Latency     Latency                  `json:"latency"`
	Throughput  Throughput               `json:"throughput"`
	Reliability Reliability              `json:"reliability"`
	Resources   Resources                `json:"resources"`
	BurstWindow BurstWindow              `json:"burst_window"`
	Processed   uint64                   `json:"processed"`
	ElapsedS    float64                  `json:"elapsed_s"`
	PerSymbol   map[string]SymbolMetrics `json:"per_symbol"`
}

// Quartet holds the exact sort-based percentiles of one latency population,
// in milliseconds.
type Quartet struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

// Latency aggregates decision and end-to-end latency. JitterRatio is
// decision p99/p50, reported as 0 when p50 is 0.
type Latency struct {
	DecisionMs  Quartet   `json:"decision_ms"`
	E2EMs       Quartet   `json:"e2e_ms"`
	JitterRatio float64   `json:"jitter_ratio"`
	Histogram   Histogram `json:"histogram"`
}

// Histogram is a 20-bin decision-latency histogram with bins up to p99.
type Histogram struct {
	BinsMs []float64 `json:"bins_ms"`
	Counts []int     `json:"counts"`
}

// Throughput is decided events per simulated second.
type Throughput struct {
	EventsPerSec float64 `json:"eps"`
}

// Reliability carries the run's counted outcomes and their rates. Rates are
// over total ingested events.
type Reliability struct {
	Ingested                uint64            `json:"ingested"`
	Drops                   uint64            `json:"drops"`
	DropRate                float64           `json:"drop_rate"`
	Errors                  uint64            `json:"errors"`
	ErrorRate               float64           `json:"error_rate"`
	IdempotencyViolations   uint64            `json:"idempotency_violations"`
	ExposureBlocks          uint64            `json:"exposure_blocks"`
	ExposureBlockReasons    map[string]uint64 `json:"exposure_block_reasons"`
	BackpressureActivations uint64            `json:"backpressure_activations"`
}

// Resources is the end-of-run diagnostic snapshot. CPUPercent and RSSMB come
// from the host process and are excluded from determinism comparison; the
// queue depth fields are virtual-clock driven and deterministic.
type Resources struct {
	CPUPercent       float64      `json:"cpu_percent"`
	RSSMB            float64      `json:"rss_mb"`
	QueueDepthMax    int          `json:"queue_depth_max"`
	QueueDepthSeries []QueuePoint `json:"queue_depth_series"`
}

// QueuePoint is one cadence-sampled queue depth observation.
type QueuePoint struct {
	AtS   float64 `json:"t_s"`
	Depth int     `json:"depth"`
}

// BurstWindow echoes the synthetic burst configuration for the report.
type BurstWindow struct {
	StartS float64 `json:"start_s"`
	EndS   float64 `json:"end_s"`
}

// SymbolMetrics is the per-symbol summary.
type SymbolMetrics struct {
	Processed      uint64  `json:"processed"`
	LatencyP95Ms   float64 `json:"latency_p95_ms"`
	Trades         uint64  `json:"trades"`
	ExposureBlocks uint64  `json:"exposure_blocks"`
	LastReason     string  `json:"last_reason"`
}

// Comparable returns a copy with the host-dependent resource fields zeroed.
// Two runs of the same experiment must be equal under this view.
func (m RunMetrics) Comparable() RunMetrics {
	c := m
	c.Resources.CPUPercent = 0
	c.Resources.RSSMB = 0
	return c
}

// Digest is the canonical sha256 over the comparable view, used as the
// baseline store value. JSON marshaling sorts map keys, so the byte stream
// is stable for equal metrics.
func (m RunMetrics) Digest() string {
	b, err := json.Marshal(m.Comparable())
	if err != nil {
		// RunMetrics contains only marshalable types; this cannot happen.
		panic(err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
