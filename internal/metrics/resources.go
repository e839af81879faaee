package metrics

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceSnapshot is the process-level usage captured once at run end. A
// diagnostic, not a measured quantity: it is excluded from the determinism
// comparison and never feeds another metric.
type ResourceSnapshot struct {
	CPUPercent float64
	RSSMB      float64
}

// TakeResourceSnapshot reads the current process's CPU share and resident
// set. Failures degrade to a zero snapshot; resource stats must never fail a
// run.
func TakeResourceSnapshot() ResourceSnapshot {
	var snap ResourceSnapshot
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return snap
	}
	if cpu, err := p.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		snap.RSSMB = float64(mem.RSS) / (1024 * 1024)
	}
	return snap
}
