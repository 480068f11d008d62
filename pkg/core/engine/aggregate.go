package engine

import (
	"math"
	"sort"
)

// Stat summarizes a cross-run sample at a single timestep: mean, sample
// standard deviation (Bessel-corrected), median, bounds, and the requested
// percentiles via nearest-rank.
type Stat struct {
	Mean        float64
	Std         float64
	Median      float64
	Min         float64
	Max         float64
	Percentiles map[float64]float64
}

func computeStat(values []float64, percentiles []float64) Stat {
	n := len(values)
	if n == 0 {
		return Stat{Percentiles: map[float64]float64{}}
	}
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	var std float64
	if n > 1 {
		sq := 0.0
		for _, v := range sorted {
			d := v - mean
			sq += d * d
		}
		std = math.Sqrt(sq / float64(n-1))
	}

	pcts := make(map[float64]float64, len(percentiles))
	for _, p := range percentiles {
		pcts[p] = nearestRank(sorted, p)
	}

	return Stat{
		Mean:        mean,
		Std:         std,
		Median:      nearestRank(sorted, 50),
		Min:         sorted[0],
		Max:         sorted[n-1],
		Percentiles: pcts,
	}
}

// nearestRank returns the pth percentile of an already-sorted slice using
// the nearest-rank method.
func nearestRank(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	rank := int(math.Ceil(p / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// ConvergenceDiagnostic reports whether a variable's final-timestep mean is
// stable across the first and second half of the completed runs.
type ConvergenceDiagnostic struct {
	Converged  bool
	FirstHalf  float64
	SecondHalf float64
	Delta      float64
}

func checkConvergence(firstHalf, secondHalf []float64, threshold float64) ConvergenceDiagnostic {
	var sum1, sum2 float64
	for _, v := range firstHalf {
		sum1 += v
	}
	for _, v := range secondHalf {
		sum2 += v
	}
	mean1 := 0.0
	if len(firstHalf) > 0 {
		mean1 = sum1 / float64(len(firstHalf))
	}
	mean2 := 0.0
	if len(secondHalf) > 0 {
		mean2 = sum2 / float64(len(secondHalf))
	}
	denom := math.Abs(mean1)
	if denom == 0 {
		denom = 1
	}
	delta := math.Abs(mean2-mean1) / denom
	return ConvergenceDiagnostic{
		Converged:  delta <= threshold,
		FirstHalf:  mean1,
		SecondHalf: mean2,
		Delta:      delta,
	}
}
