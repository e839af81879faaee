package observ

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCountersLabelOrderStable(t *testing.T) {
	ResetCounters()
	IncCounter("gate_exposure_blocks_total", map[string]string{"symbol": "CRUS", "reason": "exposure_cap"})
	IncCounter("gate_exposure_blocks_total", map[string]string{"reason": "exposure_cap", "symbol": "CRUS"})

	got := Counters()
	require.Len(t, got["gate_exposure_blocks_total"], 1, "label order must not split series")
	require.EqualValues(t, 2, got["gate_exposure_blocks_total"]["reason=exposure_cap,symbol=CRUS"])
}

func TestResetCounters(t *testing.T) {
	IncCounter("x_total", nil)
	ResetCounters()
	require.Empty(t, Counters())
}
