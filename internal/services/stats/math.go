package stats

import (
	"math"
	"sort"
)

func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	return mean, math.Sqrt(std / float64(len(values)))
}

func minMax(values []float64) (min, max float64) {
	if len(values) == 0 {
		return 0, 0
	}
	min, max = values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// percentile uses nearest-rank interpolation on a sorted copy.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p * float64(len(sorted)-1)
	low := int(math.Floor(rank))
	high := int(math.Ceil(rank))
	if low == high {
		return sorted[low]
	}
	frac := rank - float64(low)
	return sorted[low]*(1-frac) + sorted[high]*frac
}

func skewness(values []float64, mean, std float64) float64 {
	if len(values) == 0 || std < 1e-12 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		d := (v - mean) / std
		sum += d * d * d
	}
	return sum / float64(len(values))
}

func histogram(values []float64, bins int) (edges []float64, counts []int) {
	min, max := minMax(values)
	if max == min {
		max = min + 1
	}
	width := (max - min) / float64(bins)

	edges = make([]float64, bins+1)
	for i := range edges {
		edges[i] = min + float64(i)*width
	}
	counts = make([]int, bins)
	for _, v := range values {
		bin := int((v - min) / width)
		if bin >= bins {
			bin = bins - 1
		}
		counts[bin]++
	}
	return edges, counts
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	meanA, stdA := meanStd(a)
	meanB, stdB := meanStd(b)
	if stdA < 1e-12 || stdB < 1e-12 {
		return 0
	}
	cov := 0.0
	for i := range a {
		cov += (a[i] - meanA) * (b[i] - meanB)
	}
	return cov / (float64(n) * stdA * stdB)
}

// populationStabilityIndex bins the expected sample into quantiles and
// measures how the actual sample redistributes across them. Empty bins
// are floored at 0.01% to keep the logs finite.
func populationStabilityIndex(expected, actual []float64, bins int) float64 {
	if len(expected) == 0 || len(actual) == 0 {
		return 0
	}
	edges := make([]float64, 0, bins-1)
	for b := 1; b < bins; b++ {
		edges = append(edges, percentile(expected, float64(b)/float64(bins)))
	}

	binOf := func(v float64) int {
		for i, edge := range edges {
			if v <= edge {
				return i
			}
		}
		return len(edges)
	}

	expCounts := make([]float64, bins)
	actCounts := make([]float64, bins)
	for _, v := range expected {
		expCounts[binOf(v)]++
	}
	for _, v := range actual {
		actCounts[binOf(v)]++
	}

	psi := 0.0
	for b := 0; b < bins; b++ {
		e := expCounts[b] / float64(len(expected))
		a := actCounts[b] / float64(len(actual))
		if e < 1e-4 {
			e = 1e-4
		}
		if a < 1e-4 {
			a = 1e-4
		}
		psi += (a - e) * math.Log(a/e)
	}
	return psi
}
