package observ

import (
	"sort"
	"strings"
	"sync"
)

// Lightweight in-process counter registry for operational visibility. These
// counters are diagnostic only; the run's RunMetrics are accumulated by the
// metrics collector and never read from here.

type registry struct {
	mu       sync.Mutex
	counters map[string]map[string]int64 // name -> labelsKey -> count
}

var reg = &registry{counters: map[string]map[string]int64{}}

// canonicalize label map so key order is stable
func canonLabels(lbl map[string]string) string {
	if len(lbl) == 0 {
		return ""
	}
	keys := make([]string, 0, len(lbl))
	for k := range lbl {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(lbl[k])
	}
	return b.String()
}

// IncCounter increments a labeled counter by one.
func IncCounter(name string, labels map[string]string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	m, ok := reg.counters[name]
	if !ok {
		m = map[string]int64{}
		reg.counters[name] = m
	}
	m[canonLabels(labels)]++
}

// Counters returns a copy of all counters, for end-of-run log lines.
func Counters() map[string]map[string]int64 {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	out := make(map[string]map[string]int64, len(reg.counters))
	for name, byLabel := range reg.counters {
		cp := make(map[string]int64, len(byLabel))
		for k, v := range byLabel {
			cp[k] = v
		}
		out[name] = cp
	}
	return out
}

// ResetCounters clears the registry. Tests and repeated verifier runs use it
// so counters describe a single run.
func ResetCounters() {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.counters = map[string]map[string]int64{}
}
