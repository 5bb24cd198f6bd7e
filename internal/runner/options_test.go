package runner

import (
	"testing"
	"time"
)

func TestOptionsNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input Options
		want  Options
	}{
		{
			name:  "defaults",
			input: Options{},
			want:  Options{PreAllocated: 1, MaxWorkers: 1},
		},
		{
			name:  "negative values corrected",
			input: Options{Rate: -1, Duration: -time.Second, PreAllocated: -5, MaxWorkers: -1, GracePeriod: -time.Second},
			want:  Options{PreAllocated: 1, MaxWorkers: 1},
		},
		{
			name:  "max raised to preallocated",
			input: Options{Rate: 10, PreAllocated: 50, MaxWorkers: 10},
			want:  Options{Rate: 10, PreAllocated: 50, MaxWorkers: 50},
		},
		{
			name:  "preserve valid values",
			input: Options{Rate: 200, Duration: 10 * time.Second, PreAllocated: 50, MaxWorkers: 200, GracePeriod: 5 * time.Second},
			want:  Options{Rate: 200, Duration: 10 * time.Second, PreAllocated: 50, MaxWorkers: 200, GracePeriod: 5 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := tt.input
			opts.normalize()
			if opts.Rate != tt.want.Rate || opts.Duration != tt.want.Duration ||
				opts.PreAllocated != tt.want.PreAllocated || opts.MaxWorkers != tt.want.MaxWorkers ||
				opts.GracePeriod != tt.want.GracePeriod {
				t.Errorf("normalize() = %+v, want %+v", opts, tt.want)
			}
		})
	}
}

func TestIterationLag(t *testing.T) {
	due := time.Now()
	if lag := (Iteration{Due: due, Dispatched: due.Add(-time.Millisecond)}).Lag(); lag != 0 {
		t.Errorf("early dispatch lag = %s, want 0", lag)
	}
	if lag := (Iteration{Due: due, Dispatched: due.Add(3 * time.Millisecond)}).Lag(); lag != 3*time.Millisecond {
		t.Errorf("lag = %s, want 3ms", lag)
	}
}
