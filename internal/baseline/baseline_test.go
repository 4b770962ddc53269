package baseline

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/quickeda-cli/internal/problem"
)

func synthetic(n int, seed int64, classify bool) Data {
	rng := rand.New(rand.NewSource(seed))
	d := Data{X: make([][]float64, n), Y: make([]float64, n)}
	for i := 0; i < n; i++ {
		a, b, c := rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()
		d.X[i] = []float64{a, b, c}
		if classify {
			if a+0.5*b > 0 {
				d.Y[i] = 1
			}
		} else {
			d.Y[i] = 3*a - 2*b + 0.1*rng.NormFloat64()
		}
	}
	return d
}

func opts(task problem.Type) Options {
	o := DefaultOptions(task)
	o.Features = []string{"a", "b", "c"}
	o.Trees = 20
	if task == problem.Classification {
		o.NumClasses = 2
	}
	return o
}

func TestTrainClassification(t *testing.T) {
	train, eval := synthetic(400, 1, true), synthetic(100, 2, true)
	lb, err := Train(train, eval, opts(problem.Classification))
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2)
	assert.Empty(t, lb.Failures)
	assert.False(t, lb.NoBaseline)
	assert.Equal(t, MetricAccuracy, lb.Metric)
	assert.True(t, lb.HigherIsBetter)
	assert.GreaterOrEqual(t, lb.Entries[0].Value, lb.Entries[1].Value)
	for _, e := range lb.Entries {
		assert.Greater(t, e.Value, 0.8, e.Model)
		var sum float64
		for _, fi := range e.Importance {
			assert.GreaterOrEqual(t, fi.Importance, 0.0)
			sum += fi.Importance
		}
		assert.InDelta(t, 1, sum, 1e-9, e.Model)
		assert.Equal(t, "a", e.Top(1)[0].Feature, e.Model)
	}
}

func TestTrainRegression(t *testing.T) {
	train, eval := synthetic(400, 3, false), synthetic(100, 4, false)
	lb, err := Train(train, eval, opts(problem.Regression))
	require.NoError(t, err)
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, MetricRMSE, lb.Metric)
	assert.False(t, lb.HigherIsBetter)
	assert.LessOrEqual(t, lb.Entries[0].Value, lb.Entries[1].Value)
	assert.Equal(t, "linear_regression", lb.Entries[0].Model)
	assert.Less(t, lb.Entries[0].Value, 0.5)
	assert.Equal(t, "a", lb.Entries[0].Top(1)[0].Feature)
}

func TestSingleClassTrainingSplit(t *testing.T) {
	train := synthetic(50, 5, true)
	for i := range train.Y {
		train.Y[i] = 0
	}
	eval := synthetic(20, 6, true)
	lb, err := Train(train, eval, opts(problem.Classification))
	require.NoError(t, err)
	assert.Empty(t, lb.Entries)
	require.Len(t, lb.Failures, 2)
	assert.True(t, lb.NoBaseline)
	assert.NotEmpty(t, lb.Reason)
	for _, f := range lb.Failures {
		assert.Equal(t, ErrSingleClass.Error(), f.Reason)
	}
}

func TestDeterministic(t *testing.T) {
	train, eval := synthetic(300, 7, true), synthetic(80, 8, true)
	a, err := Train(train, eval, opts(problem.Classification))
	require.NoError(t, err)
	b, err := Train(train, eval, opts(problem.Classification))
	require.NoError(t, err)
	assert.Equal(t, a.Entries, b.Entries)
}

type panicky struct{}

func (panicky) Name() string             { return "panicky" }
func (panicky) Fit(Data) (Fitted, error) { panic("boom") }

type failing struct{}

func (failing) Name() string             { return "failing" }
func (failing) Fit(Data) (Fitted, error) { return nil, errors.New("cannot fit") }

type constant struct{ v float64 }

func (c constant) Name() string             { return "constant" }
func (c constant) Fit(Data) (Fitted, error) { return c, nil }
func (c constant) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i := range out {
		out[i] = c.v
	}
	return out
}
func (c constant) Importances() []float64 { return []float64{0, 0, 0} }

func TestFailuresRecovered(t *testing.T) {
	train, eval := synthetic(40, 9, false), synthetic(10, 10, false)
	o := opts(problem.Regression)
	o.Families = []Family{panicky{}, failing{}, constant{v: 0}}
	lb, err := Train(train, eval, o)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, "constant", lb.Entries[0].Model)
	assert.InDelta(t, 1.0/3, lb.Entries[0].Importance[0].Importance, 1e-12)
	require.Len(t, lb.Failures, 2)
	assert.Equal(t, "failing", lb.Failures[0].Model)
	assert.Contains(t, lb.Failures[1].Reason, "panic")

	o.Families = []Family{constant{v: math.NaN()}}
	lb, err = Train(train, eval, o)
	require.NoError(t, err)
	assert.True(t, lb.NoBaseline)
}

func TestTieBreakByName(t *testing.T) {
	es := []Entry{{Model: "zeta", Value: 0.5}, {Model: "alpha", Value: 0.5}, {Model: "mid", Value: 0.9}}
	sortEntries(es, true)
	assert.Equal(t, []string{"mid", "alpha", "zeta"}, []string{es[0].Model, es[1].Model, es[2].Model})
	sortEntries(es, false)
	assert.Equal(t, []string{"alpha", "zeta", "mid"}, []string{es[0].Model, es[1].Model, es[2].Model})
}

func TestMetrics(t *testing.T) {
	yt := []float64{0, 0, 0, 0, 1}
	yp := []float64{0, 0, 0, 0, 0}
	assert.InDelta(t, 0.8, Accuracy(yt, yp), 1e-12)
	assert.InDelta(t, 0.5, BalancedAccuracy(yt, yp), 1e-12)
	assert.InDelta(t, math.Sqrt(0.2), RMSE(yt, yp), 1e-12)
	assert.True(t, math.IsNaN(Score(MetricAccuracy, nil, nil)))

	assert.Equal(t, MetricBalancedAccuracy, ChooseMetric(problem.Classification, []float64{0, 0, 0, 0, 0, 0, 1}, 0.2))
	assert.Equal(t, MetricAccuracy, ChooseMetric(problem.Classification, []float64{0, 1, 0, 1}, 0.2))
	assert.Equal(t, MetricRMSE, ChooseMetric(problem.Regression, nil, 0.2))
}

func TestTrainRejectsMisuse(t *testing.T) {
	_, err := Train(Data{}, Data{}, Options{Task: problem.None})
	assert.Error(t, err)
	_, err = Train(Data{X: [][]float64{{1, 2}}, Y: []float64{1}}, Data{X: [][]float64{{1}}, Y: []float64{1}}, Options{Task: problem.Regression})
	assert.Error(t, err)
}
