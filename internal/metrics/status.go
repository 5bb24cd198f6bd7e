package metrics

import (
	"sort"
	"strconv"
)

// StatusRow is one line of a count breakdown.
type StatusRow struct {
	Code  string
	Count int
}

// FlattenCounts converts a bucket->count map into rows sorted by descending count.
// Ties are broken numerically for status codes and lexically otherwise.
func FlattenCounts(counts map[string]int) []StatusRow {
	if len(counts) == 0 {
		return nil
	}
	rows := make([]StatusRow, 0, len(counts))
	for code, count := range counts {
		rows = append(rows, StatusRow{Code: code, Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		a, errA := strconv.Atoi(rows[i].Code)
		b, errB := strconv.Atoi(rows[j].Code)
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		}
		return rows[i].Code < rows[j].Code
	})
	return rows
}
