package baseline

import (
	"math"
	"sort"

	"github.com/KaramelBytes/quickeda-cli/internal/problem"
)

// Metric names an evaluation metric.
type Metric string

const (
	MetricAccuracy         Metric = "accuracy"
	MetricBalancedAccuracy Metric = "balanced_accuracy"
	MetricRMSE             Metric = "rmse"
)

// HigherIsBetter reports the sort direction of the metric.
func (m Metric) HigherIsBetter() bool { return m != MetricRMSE }

// ChooseMetric picks the metric for a task. Classification switches to
// balanced accuracy when the rarest training class is smaller than
// imbalanceRatio times the most common one.
func ChooseMetric(task problem.Type, trainY []float64, imbalanceRatio float64) Metric {
	if task == problem.Regression {
		return MetricRMSE
	}
	counts := make(map[float64]int)
	for _, y := range trainY {
		counts[y]++
	}
	if len(counts) < 2 {
		return MetricAccuracy
	}
	lo, hi := math.MaxInt, 0
	for _, c := range counts {
		lo = min(lo, c)
		hi = max(hi, c)
	}
	if float64(lo)/float64(hi) < imbalanceRatio {
		return MetricBalancedAccuracy
	}
	return MetricAccuracy
}

// Score evaluates predictions with metric m. Empty inputs score NaN.
func Score(m Metric, yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 || len(yTrue) != len(yPred) {
		return math.NaN()
	}
	switch m {
	case MetricRMSE:
		return RMSE(yTrue, yPred)
	case MetricBalancedAccuracy:
		return BalancedAccuracy(yTrue, yPred)
	default:
		return Accuracy(yTrue, yPred)
	}
}

// Accuracy is the share of exact matches.
func Accuracy(yTrue, yPred []float64) float64 {
	c := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			c++
		}
	}
	return float64(c) / float64(len(yTrue))
}

// BalancedAccuracy averages per-class recall over the classes present in
// yTrue.
func BalancedAccuracy(yTrue, yPred []float64) float64 {
	total := make(map[float64]int)
	hit := make(map[float64]int)
	for i, y := range yTrue {
		total[y]++
		if yPred[i] == y {
			hit[y]++
		}
	}
	keys := make([]float64, 0, len(total))
	for k := range total {
		keys = append(keys, k)
	}
	sort.Float64s(keys)
	var sum float64
	for _, k := range keys {
		sum += float64(hit[k]) / float64(total[k])
	}
	return sum / float64(len(keys))
}

// RMSE is the root mean squared error.
func RMSE(yTrue, yPred []float64) float64 {
	var s float64
	for i := range yTrue {
		d := yPred[i] - yTrue[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(yTrue)))
}
