package estimator

import (
	"math"
	"sort"
)

// Median of values; NaN for an empty slice. Even-length inputs average the
// two middle values.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// WeightedMean of values; NaN when the weights sum to zero.
func WeightedMean(values, weights []float64) float64 {
	var sum, total float64
	for i, v := range values {
		sum += v * weights[i]
		total += weights[i]
	}
	if total == 0 {
		return math.NaN()
	}
	return sum / total
}

// WeightedMedian sorts by value and returns the first value whose cumulative
// weight reaches half the total. When the cumulative weight lands exactly on
// the half, the next value is averaged in so that equal weights reproduce
// Median. NaN for empty input or zero total weight.
func WeightedMedian(values, weights []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})

	var total float64
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return math.NaN()
	}

	half := total / 2
	eps := total * 1e-12
	var cum float64
	for pos, i := range idx {
		cum += weights[i]
		if cum < half-eps {
			continue
		}
		if math.Abs(cum-half) <= eps && pos+1 < len(idx) {
			return (values[i] + values[idx[pos+1]]) / 2
		}
		return values[i]
	}
	return values[idx[len(idx)-1]]
}
