package metrics

// percentile computes an exact linearly-interpolated percentile over a
// sorted sample set. Exactness matters: the determinism check compares these
// values with strict equality, so no streaming or approximate quantile
// structure may be substituted here.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	k := float64(len(sorted)-1) * pct
	f := int(k)
	c := f + 1
	if c > len(sorted)-1 {
		c = len(sorted) - 1
	}
	if f == c {
		return float64(sorted[f])
	}
	d0 := float64(sorted[f]) * (float64(c) - k)
	d1 := float64(sorted[c]) * (k - float64(f))
	return d0 + d1
}

// quartet converts a sorted nanosecond sample set into millisecond
// percentiles.
func quartet(sorted []int64) Quartet {
	if len(sorted) == 0 {
		return Quartet{}
	}
	return Quartet{
		P50: percentile(sorted, 0.50) / 1e6,
		P95: percentile(sorted, 0.95) / 1e6,
		P99: percentile(sorted, 0.99) / 1e6,
		Max: float64(sorted[len(sorted)-1]) / 1e6,
	}
}

// histogram bins the sorted decision samples into 20 bins spanning [0, p99],
// with a 1ms floor on the upper edge so tiny runs still render.
func histogram(sorted []int64) Histogram {
	if len(sorted) == 0 {
		return Histogram{BinsMs: []float64{}, Counts: []int{}}
	}
	const bins = 20
	upper := percentile(sorted, 0.99) / 1e6
	if upper < 1.0 {
		upper = 1.0
	}
	width := upper / bins
	counts := make([]int, bins)
	for _, v := range sorted {
		idx := int(float64(v) / 1e6 / width)
		if idx > bins-1 {
			idx = bins - 1
		}
		counts[idx]++
	}
	edges := make([]float64, bins)
	for i := range edges {
		edges[i] = float64(i+1) * width
	}
	return Histogram{BinsMs: edges, Counts: counts}
}
