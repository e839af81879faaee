package determinism

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/quantloop/qloop/internal/metrics"
)

// State is the verifier's position in its run protocol.
type State string

const (
	StateIdle      State = "IDLE"
	StateHashing   State = "HASHING"
	StateRunning   State = "RUNNING"
	StateComparing State = "COMPARING"
	StatePass      State = "PASS"
	StateFail      State = "FAIL"
	// StateNoBaseline is terminal for a check whose runs agreed but had no
	// saved baseline to compare against. Never coerced into PASS or FAIL.
	StateNoBaseline State = "NO_BASELINE"
)

// Verdict is the check outcome surfaced to callers and reports.
type Verdict string

const (
	VerdictPass       Verdict = "PASS"
	VerdictFail       Verdict = "FAIL"
	VerdictNoBaseline Verdict = "NO_BASELINE"
)

// DefaultRuns is the standard repetition count for a determinism check.
const DefaultRuns = 3

// RunFunc executes one full, independent pipeline run. Implementations must
// build every stage fresh; the verifier relies on runs sharing no mutable
// state.
type RunFunc func(i int) (metrics.RunMetrics, error)

// Drift names one metric that differed between runs, or between the current
// run and the baseline.
type Drift struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"`
	Observed any    `json:"observed"`
	Run      int    `json:"run"`
}

// Result is the determinism artifact payload: the full check outcome with
// every field external tooling depends on.
type Result struct {
	Seed          int64                `json:"seed"`
	FixtureHash   string               `json:"fixture_hash"`
	CodeHash      string               `json:"code_hash"`
	Verdict       Verdict              `json:"verdict"`
	Runs          []metrics.RunMetrics `json:"runs"`
	BaselineFound bool                 `json:"baseline_found"`
	BaselineMatch bool                 `json:"baseline_match"`
	Drift         []Drift              `json:"drift,omitempty"`
}

// Key reassembles the result's determinism key.
func (r Result) Key() Key {
	return Key{Seed: r.Seed, FixtureHash: r.FixtureHash, CodeHash: r.CodeHash}
}

// Verifier runs the pipeline repeatedly and checks that identical inputs
// yield identical metrics, against each other and against a saved baseline.
type Verifier struct {
	store *Store
	runs  int
	state State
	log   zerolog.Logger
}

// NewVerifier returns an idle verifier. runs <= 0 selects DefaultRuns.
func NewVerifier(store *Store, runs int, log zerolog.Logger) *Verifier {
	if runs <= 0 {
		runs = DefaultRuns
	}
	return &Verifier{store: store, runs: runs, state: StateIdle, log: log}
}

// State reports the verifier's current protocol state.
func (v *Verifier) State() State { return v.state }

// Verify executes the check protocol: hash inputs, run the pipeline N times,
// compare. The returned error covers operational failures (a run or the
// store erroring); a determinism mismatch is not an error, it is a FAIL
// verdict with drift detail.
func (v *Verifier) Verify(seed int64, fixtureHash string, run RunFunc) (Result, error) {
	v.state = StateHashing
	key := Key{Seed: seed, FixtureHash: fixtureHash, CodeHash: CodeHash()}
	res := Result{Seed: key.Seed, FixtureHash: key.FixtureHash, CodeHash: key.CodeHash}

	v.state = StateRunning
	for i := 1; i <= v.runs; i++ {
		v.log.Info().Int("run", i).Int("of", v.runs).Str("key", key.String()).Msg("determinism run")
		m, err := run(i)
		if err != nil {
			v.state = StateFail
			return res, fmt.Errorf("determinism run %d/%d: %w", i, v.runs, err)
		}
		res.Runs = append(res.Runs, m)
	}

	v.state = StateComparing
	for i := 1; i < len(res.Runs); i++ {
		res.Drift = append(res.Drift, diffMetrics(res.Runs[0], res.Runs[i], i+1)...)
	}
	intraOK := len(res.Drift) == 0

	baseline, found, err := v.store.Lookup(key)
	if err != nil {
		v.state = StateFail
		return res, err
	}
	res.BaselineFound = found
	if found {
		res.BaselineMatch = baseline.MetricsDigest == res.Runs[0].Digest()
		if !res.BaselineMatch {
			res.Drift = append(res.Drift, Drift{
				Field:    "metrics_digest",
				Expected: baseline.MetricsDigest,
				Observed: res.Runs[0].Digest(),
				Run:      1,
			})
		}
	}

	switch {
	case !intraOK || (found && !res.BaselineMatch):
		res.Verdict = VerdictFail
		v.state = StateFail
	case !found:
		res.Verdict = VerdictNoBaseline
		v.state = StateNoBaseline
	default:
		res.Verdict = VerdictPass
		v.state = StatePass
	}
	return res, nil
}

// SaveBaseline persists the digest of m for key, overwriting any prior
// baseline for that key.
func (v *Verifier) SaveBaseline(key Key, m metrics.RunMetrics) error {
	return v.store.Save(key, m.Digest())
}

// diffMetrics compares the comparable views of two RunMetrics leaf by leaf.
// Field paths are dotted JSON paths, sorted for stable drift reports.
func diffMetrics(want, got metrics.RunMetrics, run int) []Drift {
	wf := flatten(want.Comparable())
	gf := flatten(got.Comparable())

	paths := map[string]bool{}
	for p := range wf {
		paths[p] = true
	}
	for p := range gf {
		paths[p] = true
	}
	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	var drift []Drift
	for _, p := range sorted {
		w, g := wf[p], gf[p]
		if w != g {
			drift = append(drift, Drift{Field: p, Expected: w, Observed: g, Run: run})
		}
	}
	return drift
}

// flatten reduces a RunMetrics to dotted-path leaves via its JSON form, so
// the drift report names fields exactly as the artifact does.
func flatten(m metrics.RunMetrics) map[string]any {
	raw, _ := json.Marshal(m)
	var tree map[string]any
	_ = json.Unmarshal(raw, &tree)
	out := map[string]any{}
	flattenInto("", tree, out)
	return out
}

func flattenInto(prefix string, v any, out map[string]any) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flattenInto(p, child, out)
		}
	case []any:
		for i, child := range t {
			flattenInto(fmt.Sprintf("%s[%d]", prefix, i), child, out)
		}
	default:
		out[prefix] = v
	}
}
