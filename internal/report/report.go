package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quantloop/qloop/internal/determinism"
	"github.com/quantloop/qloop/internal/metrics"
)

// RunArtifact is the per-run record written for external report tooling.
// Field names are part of the interface; renderers key on them.
type RunArtifact struct {
	Seed        int64              `json:"seed"`
	FixtureHash string             `json:"fixture_hash"`
	CodeHash    string             `json:"code_hash"`
	Fingerprint string             `json:"fingerprint"`
	Metrics     metrics.RunMetrics `json:"metrics"`
}

// NewRunArtifact assembles the artifact for one finished run.
func NewRunArtifact(key determinism.Key, m metrics.RunMetrics) RunArtifact {
	return RunArtifact{
		Seed:        key.Seed,
		FixtureHash: key.FixtureHash,
		CodeHash:    key.CodeHash,
		Fingerprint: key.String(),
		Metrics:     m,
	}
}

// WriteRun persists metrics.json, a flattened metrics.csv, and
// run_fingerprint.txt under dir.
func WriteRun(dir string, a RunArtifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run artifact: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metrics.json"), data, 0o644); err != nil {
		return fmt.Errorf("write metrics.json: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "metrics.csv"), []byte(flattenCSV(a)), 0o644); err != nil {
		return fmt.Errorf("write metrics.csv: %w", err)
	}

	fp := a.Fingerprint + "\n"
	if err := os.WriteFile(filepath.Join(dir, "run_fingerprint.txt"), []byte(fp), 0o644); err != nil {
		return fmt.Errorf("write run_fingerprint.txt: %w", err)
	}
	return nil
}

// WriteDeterminism persists the determinism check result under dir.
func WriteDeterminism(dir string, res determinism.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal determinism result: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "determinism_result.json"), data, 0o644); err != nil {
		return fmt.Errorf("write determinism_result.json: %w", err)
	}
	return nil
}

// flattenCSV renders the artifact as sorted "metric,value" lines for quick
// spreadsheet inspection.
func flattenCSV(a RunArtifact) string {
	raw, _ := json.Marshal(a)
	var tree map[string]any
	_ = json.Unmarshal(raw, &tree)

	flat := map[string]any{}
	flattenInto("", tree, flat)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("metric,value\n")
	for _, k := range keys {
		v := fmt.Sprintf("%v", flat[k])
		b.WriteString(k)
		b.WriteString(",")
		b.WriteString(strings.ReplaceAll(v, ",", ""))
		b.WriteString("\n")
	}
	return b.String()
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
