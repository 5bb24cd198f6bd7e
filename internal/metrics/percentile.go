package metrics

import (
	"math"
	"time"
)

// Percentile returns the nearest-rank p-th percentile of an ascending slice:
// the element at index ceil(p/100*N)-1, clamped to [0, N-1]. An empty slice yields 0.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(n)/100 - 1e-9))
	idx := rank - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}
