package arbitrage

import (
	"sort"
	"time"
)

const scanLatencyCapacity = 1000

// latencyRing keeps the most recent scan durations in a fixed ring for
// percentile reporting. Observability only, never on a correctness path.
type latencyRing struct {
	samples    []time.Duration
	writeIndex int
	filled     bool
}

func newLatencyRing(capacity int) *latencyRing {
	return &latencyRing{samples: make([]time.Duration, capacity)}
}

func (r *latencyRing) record(d time.Duration) {
	r.samples[r.writeIndex] = d
	r.writeIndex++
	if r.writeIndex == len(r.samples) {
		r.writeIndex = 0
		r.filled = true
	}
}

func (r *latencyRing) count() int {
	if r.filled {
		return len(r.samples)
	}
	return r.writeIndex
}

// snapshot returns the recorded samples sorted ascending.
func (r *latencyRing) snapshot() []time.Duration {
	n := r.count()
	out := make([]time.Duration, n)
	copy(out, r.samples[:n])
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ScanStats summarizes recent scan latencies.
type ScanStats struct {
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
	Max   time.Duration `json:"max"`
}

// ScanStats reports percentiles over the most recent scans (up to 1000).
func (e *Engine) ScanStats() ScanStats {
	sorted := e.scanLatencies.snapshot()
	n := len(sorted)
	if n == 0 {
		return ScanStats{}
	}
	pick := func(p float64) time.Duration {
		idx := int(p * float64(n-1))
		return sorted[idx]
	}
	return ScanStats{
		Count: n,
		P50:   pick(0.50),
		P95:   pick(0.95),
		P99:   pick(0.99),
		Max:   sorted[n-1],
	}
}
