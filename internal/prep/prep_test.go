package prep

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/errs"
	"github.com/KaramelBytes/quickeda-cli/internal/problem"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

func inferred(t *testing.T, target string, cols ...*dataset.Column) (*dataset.Dataset, *schema.Schema) {
	t.Helper()
	ds, err := dataset.New(cols...)
	require.NoError(t, err)
	opt := schema.DefaultOptions()
	opt.Target = target
	s, err := schema.Infer(ds, opt)
	require.NoError(t, err)
	return ds, s
}

func TestSplitDeterministicAndCovering(t *testing.T) {
	a, err := NewSplit(100, 0.8, 42)
	require.NoError(t, err)
	b, err := NewSplit(100, 0.8, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a.Train, 80)
	assert.Len(t, a.Eval, 20)

	seen := make(map[int]bool)
	for _, r := range append(append([]int(nil), a.Train...), a.Eval...) {
		assert.False(t, seen[r], "row %d appears twice", r)
		seen[r] = true
	}
	assert.Len(t, seen, 100)

	c, err := NewSplit(100, 0.8, 7)
	require.NoError(t, err)
	assert.NotEqual(t, a.Train, c.Train)
}

func TestSplitRatioValidation(t *testing.T) {
	for _, r := range []float64{0, 1, -0.5, 1.5, math.NaN()} {
		_, err := NewSplit(10, r, 1)
		assert.True(t, errs.IsConfig(err), "ratio %v", r)
	}
}

func TestStratifiedSplitKeepsClasses(t *testing.T) {
	labels := make([]string, 100)
	for i := range labels {
		labels[i] = "a"
		if i%10 == 0 {
			labels[i] = "b"
		}
	}
	s, err := NewStratifiedSplit(labels, 0.8, 42)
	require.NoError(t, err)
	assert.Len(t, s.Train, 80)
	countB := 0
	for _, r := range s.Train {
		if labels[r] == "b" {
			countB++
		}
	}
	assert.Equal(t, 8, countB)
}

func TestUnseenCategoryMapsToUnknown(t *testing.T) {
	color := []string{"red", "blue", "red", "blue", "green"}
	y := []float64{1.5, 2.5, 3.5, 4.5, 5.5}
	ds, s := inferred(t, "y", dataset.NewText("color", color, nil), dataset.NewNumeric("y", y))
	split := Split{Train: []int{0, 1, 2, 3}, Eval: []int{4}}

	res, err := FitTransform(ds, s, split, problem.Regression, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"color=blue", "color=red", "color=" + UnknownLevel}, res.Transform.Features)
	assert.Equal(t, []float64{0, 0, 1}, res.Eval.X[0])
	assert.Equal(t, []float64{0, 1, 0}, res.Train.X[0])
}

func TestNoLeakageFromEvalSplit(t *testing.T) {
	x := []float64{1, 2, 3, math.NaN(), 1000, 2000}
	y := []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	ds, s := inferred(t, "y", dataset.NewNumeric("x", x), dataset.NewNumeric("y", y))
	split := Split{Train: []int{0, 1, 2, 3}, Eval: []int{4, 5}}

	res, err := FitTransform(ds, s, split, problem.Regression, DefaultOptions())
	require.NoError(t, err)
	ct := res.Transform.Columns[0]
	assert.Equal(t, 2.0, ct.Median)
	assert.InDelta(t, 2.0, ct.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), ct.Std, 1e-12)
	// the imputed row sits exactly on the training mean
	assert.InDelta(t, 0, res.Train.X[3][0], 1e-12)
	assert.InDelta(t, (1000-2.0)/math.Sqrt(0.5), res.Eval.X[0][0], 1e-9)
}

func TestConstantColumnUsesStdFloor(t *testing.T) {
	x := []float64{5, 5, 5, 5}
	y := []float64{1.1, 2.2, 3.3, 4.4}
	ds, s := inferred(t, "y", dataset.NewNumeric("x", x), dataset.NewNumeric("y", y))
	res, err := FitTransform(ds, s, Split{Train: []int{0, 1, 2}, Eval: []int{3}}, problem.Regression, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, StdFloor, res.Transform.Columns[0].Std)
	for _, row := range res.Train.X {
		assert.False(t, math.IsNaN(row[0]) || math.IsInf(row[0], 0))
	}
}

func TestMissingTargetRowsDropped(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := []string{"a", "b", "", "a", "b", ""}
	valid := []bool{true, true, false, true, true, false}
	ds, s := inferred(t, "y", dataset.NewNumeric("x", x), dataset.NewText("y", y, valid))
	res, err := FitTransform(ds, s, Split{Train: []int{0, 1, 2, 3}, Eval: []int{4, 5}}, problem.Classification, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, []int{0, 1, 3}, res.Train.Rows)
	assert.Equal(t, []string{"a", "b"}, res.Transform.Classes)
	assert.Equal(t, []float64{0, 1, 0}, res.Train.Y)
}

func TestUnseenEvalClass(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []string{"a", "b", "a", "c"}
	ds, s := inferred(t, "y", dataset.NewNumeric("x", x), dataset.NewText("y", y, nil))
	res, err := FitTransform(ds, s, Split{Train: []int{0, 1, 2}, Eval: []int{3}}, problem.Classification, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, res.Eval.Y)
}

func TestOrdinalAboveCap(t *testing.T) {
	n := 30
	code := make([]string, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		code[i] = string(rune('A'+i%26)) + string(rune('a'+i/26))
		y[i] = float64(i) + 0.5
	}
	ds, _ := inferred(t, "y", dataset.NewText("code", code, nil), dataset.NewNumeric("y", y))
	// 30 distinct of 30 would be an identifier; force categorical
	opt := schema.DefaultOptions()
	opt.Target = "y"
	opt.Overrides = map[string]schema.Role{"code": schema.Categorical}
	s, err := schema.Infer(ds, opt)
	require.NoError(t, err)

	o := DefaultOptions()
	o.MaxOneHot = 5
	res, err := FitTransform(ds, s, Split{Train: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, Eval: []int{10, 11}}, problem.Regression, o)
	require.NoError(t, err)
	assert.Equal(t, EncodeOrdinal, res.Transform.Columns[0].Encoding)
	assert.Equal(t, []string{"code"}, res.Transform.Features)
	for _, row := range res.Train.X {
		assert.GreaterOrEqual(t, row[0], 0.0)
		assert.Less(t, row[0], 1.0)
	}
	assert.Equal(t, 1.0, res.Eval.X[0][0])
}

func TestNoFeatureColumns(t *testing.T) {
	ids := []string{"r1", "r2", "r3", "r4"}
	y := []float64{1.5, 2.5, 3.5, 4.5}
	ds, s := inferred(t, "y", dataset.NewText("id", ids, nil), dataset.NewNumeric("y", y))
	_, err := FitTransform(ds, s, Split{Train: []int{0, 1, 2}, Eval: []int{3}}, problem.Regression, DefaultOptions())
	assert.True(t, errs.IsData(err))
}

func TestMissingCellsDoNotShareLiteralMissingLevel(t *testing.T) {
	status := []string{"missing", "", "active", "missing", "", "active"}
	valid := []bool{true, false, true, true, false, true}
	y := []float64{1, 2, 3, 4, 5, 6}
	ds, s := inferred(t, "y", dataset.NewText("status", status, valid), dataset.NewNumeric("y", y))
	split := Split{Train: []int{0, 1, 2, 3, 4, 5}}

	res, err := FitTransform(ds, s, split, problem.Regression, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"status=" + MissingLevel, "status=active", "status=missing", "status=" + UnknownLevel}, res.Transform.Features)
	assert.NotEqual(t, res.Train.X[0], res.Train.X[1])
}

func TestDecodedTransformAppliesWithoutIndex(t *testing.T) {
	color := []string{"red", "blue", "red", "blue"}
	label := []string{"yes", "no", "yes", "no"}
	ds, s := inferred(t, "label", dataset.NewText("color", color, nil), dataset.NewText("label", label, nil))
	split := Split{Train: []int{0, 1, 2, 3}}

	res, err := FitTransform(ds, s, split, problem.Classification, DefaultOptions())
	require.NoError(t, err)
	decoded := &Transform{
		Columns:  append([]ColumnTransform(nil), res.Transform.Columns...),
		Features: res.Transform.Features,
		Target:   res.Transform.Target,
		Task:     res.Transform.Task,
		Classes:  res.Transform.Classes,
	}
	for i := range decoded.Columns {
		decoded.Columns[i].index = nil
	}
	got, err := decoded.Apply(ds, []int{0, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, res.Train.X, got.X)
	assert.Equal(t, res.Train.Y, got.Y)
	assert.Equal(t, len(decoded.Classes), decoded.ClassIndex("maybe"))
}
