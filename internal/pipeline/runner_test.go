package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/qloop/internal/config"
	"github.com/quantloop/qloop/internal/determinism"
	"github.com/quantloop/qloop/internal/feed"
	"github.com/quantloop/qloop/internal/metrics"
)

// demoFixtures builds a small four-symbol bar set with enough price movement
// for the mean-reversion signal to fire.
func demoFixtures(t *testing.T) *feed.FixtureSet {
	t.Helper()
	symbols := []string{"CRUS", "DDOG", "QRVO", "COP"}
	base := []float64{84.10, 121.00, 98.50, 112.30}
	var b strings.Builder
	b.WriteString("ts,symbol,open,high,low,close,volume\n")
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		for j, sym := range symbols {
			px := base[j] + float64(i%5) - 2 // oscillate around the base
			fmt.Fprintf(&b, "%s,%s,%.2f,%.2f,%.2f,%.2f,%d\n",
				start.Add(time.Duration(i)*time.Minute).Format(time.RFC3339),
				sym, px, px+0.4, px-0.4, px+0.1, 10000+i*100)
		}
	}
	fs, err := feed.ParseBars([]byte(b.String()))
	require.NoError(t, err)
	require.Equal(t, []string{"COP", "CRUS", "DDOG", "QRVO"}, fs.Symbols)
	return fs
}

func scenarioConfig() config.Root {
	c := config.Default()
	c.Seed = 7
	c.DurationS = 30
	c.Queue.Capacity = 64
	c.Risk.ExposureCapUSD = 1000
	return c
}

func runOnce(t *testing.T, cfg config.Root, fs *feed.FixtureSet) metrics.RunMetrics {
	t.Helper()
	m, err := NewRunner(cfg, fs, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	return m
}

func TestEndToEndScenario(t *testing.T) {
	fs := demoFixtures(t)
	m := runOnce(t, scenarioConfig(), fs)

	require.Positive(t, m.Processed)
	require.GreaterOrEqual(t, m.Reliability.DropRate, 0.0)
	require.LessOrEqual(t, m.Reliability.DropRate, 1.0)
	require.Zero(t, m.Reliability.IdempotencyViolations, "regression property: duplicates must never occur")

	q := m.Latency.DecisionMs
	require.LessOrEqual(t, q.P50, q.P95)
	require.LessOrEqual(t, q.P95, q.P99)
	require.LessOrEqual(t, q.P99, q.Max)
	require.LessOrEqual(t, m.Resources.QueueDepthMax, 64)

	require.Positive(t, m.Reliability.ExposureBlocks, "1000 cap with 1000 notional decisions must block repeats")
	for reason := range m.Reliability.ExposureBlockReasons {
		require.Equal(t, "exposure_cap", reason, "block reasons come from the closed enum")
	}
	require.InDelta(t, 30.0, m.ElapsedS, 0.001)
	require.Positive(t, m.Throughput.EventsPerSec)
}

func TestBurstCausesBackpressureUnderSmallQueue(t *testing.T) {
	fs := demoFixtures(t)
	cfg := scenarioConfig()
	cfg.Queue.Capacity = 8
	m := runOnce(t, cfg, fs)

	require.Positive(t, m.Reliability.Drops, "sustained burst must overflow a small queue")
	require.Equal(t, m.Reliability.Drops, m.Reliability.BackpressureActivations)
	require.LessOrEqual(t, m.Resources.QueueDepthMax, 8)
}

func TestRepeatedRunsBitIdentical(t *testing.T) {
	fs := demoFixtures(t)
	cfg := scenarioConfig()
	cfg.DurationS = 10

	a := runOnce(t, cfg, fs)
	b := runOnce(t, cfg, fs)
	c := runOnce(t, cfg, fs)

	require.Equal(t, a.Comparable(), b.Comparable())
	require.Equal(t, a.Comparable(), c.Comparable())
	require.Equal(t, a.Digest(), b.Digest())
	require.Equal(t, a.Digest(), c.Digest())
}

func TestDifferentSeedDifferentMetrics(t *testing.T) {
	fs := demoFixtures(t)
	cfg := scenarioConfig()
	cfg.DurationS = 10

	a := runOnce(t, cfg, fs)
	cfg.Seed = 8
	b := runOnce(t, cfg, fs)
	require.NotEqual(t, a.Digest(), b.Digest(), "the seed must reach the rand-driven stages")
}

func TestDropOldestPolicyRuns(t *testing.T) {
	fs := demoFixtures(t)
	cfg := scenarioConfig()
	cfg.DurationS = 15
	cfg.Queue.Capacity = 8
	cfg.Queue.Policy = "drop_oldest"
	m := runOnce(t, cfg, fs)
	require.Positive(t, m.Reliability.Drops)
	require.LessOrEqual(t, m.Resources.QueueDepthMax, 8)
}

func TestInvalidConfigIsFatal(t *testing.T) {
	fs := demoFixtures(t)
	cfg := scenarioConfig()
	cfg.Queue.Capacity = -1
	_, err := NewRunner(cfg, fs, zerolog.Nop()).Run(context.Background())
	require.Error(t, err)
}

func TestIngestionErrorsCountedNotFatal(t *testing.T) {
	csv := `ts,symbol,open,high,low,close,volume
2024-01-02T09:30:00Z,CRUS,84.10,84.50,84.00,84.35,12000
garbage row
2024-01-02T09:31:00Z,CRUS,84.35,84.60,84.20,84.55,9000
`
	fs, err := feed.ParseBars([]byte(csv))
	require.NoError(t, err)
	require.Equal(t, 1, fs.Rejected)

	cfg := scenarioConfig()
	cfg.DurationS = 2
	m := runOnce(t, cfg, fs)
	require.EqualValues(t, 1, m.Reliability.Errors)
	require.Positive(t, m.Reliability.ErrorRate)
}

func TestVerifierOverPipelinePassesAfterSave(t *testing.T) {
	fs := demoFixtures(t)
	cfg := scenarioConfig()
	cfg.DurationS = 5

	store := determinism.NewStore(filepath.Join(t.TempDir(), "baseline.json"))
	v := determinism.NewVerifier(store, 3, zerolog.Nop())
	run := func(i int) (metrics.RunMetrics, error) {
		// fresh runner per iteration: no shared queue, positions, or windows
		return NewRunner(cfg, fs, zerolog.Nop()).Run(context.Background())
	}

	res, err := v.Verify(cfg.Seed, fs.Hash, run)
	require.NoError(t, err)
	require.Equal(t, determinism.VerdictNoBaseline, res.Verdict, "first check has nothing to compare against")

	require.NoError(t, v.SaveBaseline(res.Key(), res.Runs[0]))

	res, err = v.Verify(cfg.Seed, fs.Hash, run)
	require.NoError(t, err)
	require.Equal(t, determinism.VerdictPass, res.Verdict)
	require.Empty(t, res.Drift)
}

func TestAbortViaContextKeepsRecordedSamples(t *testing.T) {
	fs := demoFixtures(t)
	cfg := scenarioConfig()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m, err := NewRunner(cfg, fs, zerolog.Nop()).Run(ctx)
	require.NoError(t, err)
	require.Zero(t, m.Processed, "nothing was finalized before the cutoff")
}
