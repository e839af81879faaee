package determinism

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/quantloop/qloop/internal/metrics"
)

func sampleMetrics(drops int) metrics.RunMetrics {
	c := metrics.NewCollector()
	for i := int64(1); i <= 100; i++ {
		c.RecordIngested()
		c.RecordDecision("CRUS", i*1000, i*3000, i%2 == 0)
	}
	for i := 0; i < drops; i++ {
		c.RecordDrop()
	}
	return c.Finalize(1_000_000_000, metrics.BurstWindow{StartS: 8, EndS: 12}, metrics.ResourceSnapshot{CPUPercent: 42})
}

func stableRun(i int) (metrics.RunMetrics, error) {
	return sampleMetrics(0), nil
}

func newTestVerifier(t *testing.T) (*Verifier, *Store) {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "baseline.json"))
	return NewVerifier(store, 3, zerolog.Nop()), store
}

func TestKeyString(t *testing.T) {
	k := Key{Seed: 7, FixtureHash: "abc123def456", CodeHash: "fedcba654321"}
	require.Equal(t, "7:abc123def456:fedcba654321", k.String())
}

func TestHashBytesStable(t *testing.T) {
	a := HashBytes([]byte("hello"))
	require.Len(t, a, 12)
	require.Equal(t, a, HashBytes([]byte("hello")))
	require.NotEqual(t, a, HashBytes([]byte("hello!")))
}

func TestStoreMissingIsNotFoundNotError(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "baseline.json"))
	_, found, err := store.Lookup(Key{Seed: 7})
	require.NoError(t, err)
	require.False(t, found)
}

func TestStoreSaveLookupOverwrite(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "baseline.json"))
	key := Key{Seed: 7, FixtureHash: "fix", CodeHash: "code"}

	require.NoError(t, store.Save(key, "digest-1"))
	b, found, err := store.Lookup(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "digest-1", b.MetricsDigest)

	require.NoError(t, store.Save(key, "digest-2"))
	b, found, err = store.Lookup(key)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "digest-2", b.MetricsDigest, "save overwrites unconditionally")

	// other keys untouched
	_, found, err = store.Lookup(Key{Seed: 8, FixtureHash: "fix", CodeHash: "code"})
	require.NoError(t, err)
	require.False(t, found)
}

func TestVerifyNoBaselineIsDistinct(t *testing.T) {
	v, _ := newTestVerifier(t)
	res, err := v.Verify(7, "fix", stableRun)
	require.NoError(t, err)
	require.Equal(t, VerdictNoBaseline, res.Verdict)
	require.Equal(t, StateNoBaseline, v.State())
	require.False(t, res.BaselineFound)
	require.Empty(t, res.Drift)
	require.Len(t, res.Runs, 3)
}

func TestSaveThenVerifyPasses(t *testing.T) {
	v, _ := newTestVerifier(t)
	key := Key{Seed: 7, FixtureHash: "fix", CodeHash: CodeHash()}
	require.NoError(t, v.SaveBaseline(key, sampleMetrics(0)))

	res, err := v.Verify(7, "fix", stableRun)
	require.NoError(t, err)
	require.Equal(t, VerdictPass, res.Verdict)
	require.Equal(t, StatePass, v.State())
	require.True(t, res.BaselineFound)
	require.True(t, res.BaselineMatch)
	require.Empty(t, res.Drift, "pass must come with zero drift")
}

func TestVerifyFailsOnIntraRunDrift(t *testing.T) {
	v, _ := newTestVerifier(t)
	res, err := v.Verify(7, "fix", func(i int) (metrics.RunMetrics, error) {
		if i == 3 {
			return sampleMetrics(5), nil // third run diverges
		}
		return sampleMetrics(0), nil
	})
	require.NoError(t, err, "a mismatch is a verdict, not an error")
	require.Equal(t, VerdictFail, res.Verdict)
	require.Equal(t, StateFail, v.State())

	fields := map[string]bool{}
	for _, d := range res.Drift {
		require.Equal(t, 3, d.Run)
		fields[d.Field] = true
	}
	require.True(t, fields["reliability.drops"], "drift must name the differing field, got %v", fields)
}

func TestVerifyFailsOnBaselineMismatch(t *testing.T) {
	v, store := newTestVerifier(t)
	key := Key{Seed: 7, FixtureHash: "fix", CodeHash: CodeHash()}
	require.NoError(t, store.Save(key, "stale-digest"))

	res, err := v.Verify(7, "fix", stableRun)
	require.NoError(t, err)
	require.Equal(t, VerdictFail, res.Verdict)
	require.True(t, res.BaselineFound)
	require.False(t, res.BaselineMatch)
	require.Len(t, res.Drift, 1)
	require.Equal(t, "metrics_digest", res.Drift[0].Field)
}

func TestMutatedFixtureNeverPassesAgainstStaleBaseline(t *testing.T) {
	v, _ := newTestVerifier(t)
	key := Key{Seed: 7, FixtureHash: "original-fix", CodeHash: CodeHash()}
	require.NoError(t, v.SaveBaseline(key, sampleMetrics(0)))

	// changed fixture content -> changed hash -> different key
	res, err := v.Verify(7, "mutated-fix", stableRun)
	require.NoError(t, err)
	require.Equal(t, VerdictNoBaseline, res.Verdict, "stale baseline for another key must not be compared")
}

func TestVerifyRunErrorPropagates(t *testing.T) {
	v, _ := newTestVerifier(t)
	_, err := v.Verify(7, "fix", func(i int) (metrics.RunMetrics, error) {
		return metrics.RunMetrics{}, fmt.Errorf("boom")
	})
	require.Error(t, err)
	require.Equal(t, StateFail, v.State())
}

func TestCodeHashStableWithinProcess(t *testing.T) {
	require.Equal(t, CodeHash(), CodeHash())
	require.NotEmpty(t, CodeHash())
}

func TestDiffMetricsIgnoresResources(t *testing.T) {
	a := sampleMetrics(0)
	b := sampleMetrics(0)
	b.Resources.CPUPercent = 99.9
	b.Resources.RSSMB = 1234
	require.Empty(t, diffMetrics(a, b, 2), "host resource fields are excluded from comparison")
}
