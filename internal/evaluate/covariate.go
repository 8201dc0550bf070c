package evaluate

import (
	"fmt"
	"sort"
)

// AccuracyQuartiles builds a covariate function that places each student
// into a quartile (Q1 lowest .. Q4 highest) of the given per-student
// training accuracy. Students absent from the map fall into "unknown".
func AccuracyQuartiles(trainAccuracy map[string]float64) func(studentID string) string {
	values := make([]float64, 0, len(trainAccuracy))
	for _, v := range trainAccuracy {
		values = append(values, v)
	}
	sort.Float64s(values)

	cuts := [3]float64{
		quantile(values, 0.25),
		quantile(values, 0.50),
		quantile(values, 0.75),
	}

	return func(studentID string) string {
		acc, ok := trainAccuracy[studentID]
		if !ok {
			return "unknown"
		}
		for i, cut := range cuts {
			if acc <= cut {
				return fmt.Sprintf("Q%d", i+1)
			}
		}
		return "Q4"
	}
}

// quantile returns the q-th quantile of sorted values using linear
// interpolation.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
