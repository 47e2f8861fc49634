package oos

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats describes a distribution of Sharpe ratios.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	P25    float64 `json:"p25"`
	P75    float64 `json:"p75"`
}

// Describe computes Stats. An empty input yields zeros; a single value has
// zero deviation.
func Describe(values []float64) Stats {
	st := Stats{Count: len(values)}
	if len(values) == 0 {
		return st
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	st.Mean, st.Std = stat.MeanStdDev(sorted, nil)
	if len(sorted) < 2 {
		st.Std = 0
	}
	st.Min = floats.Min(sorted)
	st.Max = floats.Max(sorted)
	st.Median = percentile(sorted, 0.50)
	st.P25 = percentile(sorted, 0.25)
	st.P75 = percentile(sorted, 0.75)
	return st
}

// percentile interpolates linearly between the closest ranks, at rank
// p*(n-1), so P25 of [1 2 3 4] is 1.75. stat.Quantile's LinInterp
// interpolates the empirical CDF and disagrees on small samples. sorted must
// be ascending and non-empty.
func percentile(sorted []float64, p float64) float64 {
	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// Ratio is the share of a subset whose test Sharpe exceeds Threshold.
type Ratio struct {
	Threshold float64 `json:"threshold"`
	Ratio     float64 `json:"ratio"`
}

func ratiosAbove(values []float64, thresholds []float64) []Ratio {
	out := make([]Ratio, len(thresholds))
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	for i, thr := range thresholds {
		out[i].Threshold = thr
		if len(sorted) > 0 {
			out[i].Ratio = 1 - stat.CDF(thr, stat.Empirical, sorted, nil)
		}
	}
	return out
}
