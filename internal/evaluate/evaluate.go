// Package evaluate reduces recorded simulation outputs into per-mode
// accuracy and F1 metrics. Everything here is a pure function over
// immutable records; re-running over the same inputs yields identical
// values.
package evaluate

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/hanyuliu/simlearn/internal/simulate"
)

// Metric is a value together with the denominator it was computed over, so
// dropped failures can never silently inflate a score.
type Metric struct {
	Value float64
	N     int
}

// Report holds the metrics for one set of simulation outputs.
type Report struct {
	Task1Accuracy Metric // self-prediction vs actual correctness
	Task1F1       Metric // binary F1, "Yes" as the positive class
	Task2Accuracy Metric // concept identification
	Task4Accuracy Metric // final answer choice
	Task4MacroF1  Metric // macro F1 over the observed choice letters
}

// Evaluate computes the report over a set of outputs. Failed items never
// reach this function; the denominators reflect only resolved outputs.
func Evaluate(outputs []simulate.Output) Report {
	return Report{
		Task1Accuracy: accuracy(outputs, func(o simulate.Output) (string, string) { return o.Task1Pred, o.Task1True }),
		Task1F1:       binaryF1(outputs),
		Task2Accuracy: accuracy(outputs, func(o simulate.Output) (string, string) { return o.Task2Pred, o.Task2True }),
		Task4Accuracy: accuracy(outputs, func(o simulate.Output) (string, string) { return o.Task4Pred, o.Task4True }),
		Task4MacroF1:  macroF1(outputs),
	}
}

// EvaluateByMode groups outputs by ablation mode and reports each group.
func EvaluateByMode(outputs []simulate.Output) map[string]Report {
	groups := lo.GroupBy(outputs, func(o simulate.Output) string { return string(o.Mode) })
	reports := make(map[string]Report, len(groups))
	for mode, group := range groups {
		reports[mode] = Evaluate(group)
	}
	return reports
}

// EvaluateBy slices outputs by an arbitrary student-level covariate and
// reports each segment.
func EvaluateBy(outputs []simulate.Output, covariate func(studentID string) string) map[string]Report {
	groups := lo.GroupBy(outputs, func(o simulate.Output) string { return covariate(o.StudentID) })
	reports := make(map[string]Report, len(groups))
	for segment, group := range groups {
		reports[segment] = Evaluate(group)
	}
	return reports
}

// normalize prepares an answer for comparison: whitespace trimmed,
// case-folded, trailing punctuation and emphasis stripped.
func normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*")
	s = strings.TrimRight(s, ".!")
	return strings.ToLower(strings.TrimSpace(s))
}

func accuracy(outputs []simulate.Output, pick func(simulate.Output) (string, string)) Metric {
	if len(outputs) == 0 {
		return Metric{}
	}
	hits := lo.CountBy(outputs, func(o simulate.Output) bool {
		pred, truth := pick(o)
		return normalize(pred) == normalize(truth)
	})
	return Metric{Value: float64(hits) / float64(len(outputs)), N: len(outputs)}
}

// binaryF1 scores the Task 1 self-prediction with "Yes" as the positive
// class.
func binaryF1(outputs []simulate.Output) Metric {
	if len(outputs) == 0 {
		return Metric{}
	}
	var tp, fp, fn int
	for _, o := range outputs {
		predYes := normalize(o.Task1Pred) == "yes"
		trueYes := normalize(o.Task1True) == "yes"
		switch {
		case predYes && trueYes:
			tp++
		case predYes && !trueYes:
			fp++
		case !predYes && trueYes:
			fn++
		}
	}
	return Metric{Value: f1(tp, fp, fn), N: len(outputs)}
}

// macroF1 averages the per-class F1 over every choice letter observed in
// the ground truth.
func macroF1(outputs []simulate.Output) Metric {
	if len(outputs) == 0 {
		return Metric{}
	}

	classes := lo.Uniq(lo.Map(outputs, func(o simulate.Output, _ int) string {
		return normalize(o.Task4True)
	}))
	sort.Strings(classes)

	var sum float64
	for _, class := range classes {
		var tp, fp, fn int
		for _, o := range outputs {
			pred := normalize(o.Task4Pred) == class
			truth := normalize(o.Task4True) == class
			switch {
			case pred && truth:
				tp++
			case pred && !truth:
				fp++
			case !pred && truth:
				fn++
			}
		}
		sum += f1(tp, fp, fn)
	}
	return Metric{Value: sum / float64(len(classes)), N: len(outputs)}
}

func f1(tp, fp, fn int) float64 {
	if tp == 0 {
		return 0
	}
	precision := float64(tp) / float64(tp+fp)
	recall := float64(tp) / float64(tp+fn)
	return 2 * precision * recall / (precision + recall)
}
