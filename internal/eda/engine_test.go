package eda

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/errs"
	"github.com/KaramelBytes/quickeda-cli/internal/problem"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

// mixed builds rows×(5 numeric + 1 categorical + binary target).
func mixed(t *testing.T, rows int) *dataset.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	num := make([][]float64, 5)
	for j := range num {
		num[j] = make([]float64, rows)
	}
	segment := make([]string, rows)
	target := make([]float64, rows)
	levels := []string{"north", "south", "east", "west"}
	for i := 0; i < rows; i++ {
		for j := range num {
			num[j][i] = rng.NormFloat64()*float64(j+1) + float64(j)
		}
		segment[i] = levels[rng.Intn(len(levels))]
		score := num[0][i] - 0.5*num[1][i]
		if segment[i] == "north" {
			score += 1
		}
		if score+0.3*rng.NormFloat64() > 0 {
			target[i] = 1
		}
	}
	cols := make([]*dataset.Column, 0, 7)
	for j := range num {
		cols = append(cols, dataset.NewNumeric(fmt.Sprintf("x%d", j+1), num[j]))
	}
	cols = append(cols, dataset.NewText("segment", segment, nil), dataset.NewNumeric("churn", target))
	ds, err := dataset.New(cols...)
	require.NoError(t, err)
	return ds
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Target = "churn"
	return cfg
}

func TestEndToEndDeterministic(t *testing.T) {
	ds := mixed(t, 1000)
	run := func() []float64 {
		eng, err := New(ds, testConfig(), Options{Trees: 25})
		require.NoError(t, err)
		a, err := eng.Analyze()
		require.NoError(t, err)
		tr, err := eng.Train(a)
		require.NoError(t, err)
		var vals []float64
		for _, e := range tr.Leaderboard.Entries {
			vals = append(vals, e.Value)
		}
		return vals
	}
	first, second := run(), run()
	require.Len(t, first, 2)
	for i := range first {
		assert.Equal(t, math.Float64bits(first[i]), math.Float64bits(second[i]))
	}
}

func TestAnalyzeShapes(t *testing.T) {
	ds := mixed(t, 1000)
	eng, err := New(ds, testConfig(), Options{Trees: 25})
	require.NoError(t, err)
	a, tr, err := eng.Run()
	require.NoError(t, err)

	assert.Equal(t, problem.Classification, a.Problem.Value)
	assert.False(t, a.Problem.IsOverride())
	assert.Equal(t, schema.Target, a.Schema.Role("churn"))
	assert.Equal(t, schema.Categorical, a.Schema.Role("segment"))
	assert.Len(t, a.Profile.Columns, ds.NumColumns())
	assert.Contains(t, a.Profile.Correlation.Columns, "churn")

	assert.Equal(t, 800, tr.TrainRows)
	assert.Equal(t, 200, tr.EvalRows)
	assert.Equal(t, 0, tr.Dropped)
	assert.False(t, tr.Leaderboard.NoBaseline)
	for _, e := range tr.Leaderboard.Entries {
		assert.Greater(t, e.Value, 0.7, e.Model)
		assert.LessOrEqual(t, len(tr.TopFeatures[e.Model]), 10)
	}
}

func TestTrainWithoutTarget(t *testing.T) {
	ds := mixed(t, 50)
	eng, err := New(ds, DefaultConfig(), Options{})
	require.NoError(t, err)
	a, tr, err := eng.Run()
	require.NoError(t, err)
	assert.Equal(t, problem.None, a.Problem.Value)
	assert.True(t, tr.Leaderboard.NoBaseline)
	assert.Empty(t, tr.Leaderboard.Entries)
}

func TestTrainRecomputesNilAnalysis(t *testing.T) {
	ds := mixed(t, 200)
	cfg := testConfig()
	cfg.ProblemType = "regression"
	eng, err := New(ds, cfg, Options{Trees: 10})
	require.NoError(t, err)
	tr, err := eng.Train(nil)
	require.NoError(t, err)
	assert.Equal(t, problem.Regression, tr.Leaderboard.Problem)
	assert.Equal(t, "rmse", string(tr.Leaderboard.Metric))
}

func TestNewRejectsBadConfig(t *testing.T) {
	ds := mixed(t, 20)
	cases := map[string]func(*Config){
		"ratio":   func(c *Config) { c.TrainTestSplitRatio = 1 },
		"top":     func(c *Config) { c.NumTopFeatures = 0 },
		"method":  func(c *Config) { c.OutlierMethod = "mad" },
		"problem": func(c *Config) { c.ProblemType = "clustering" },
		"target":  func(c *Config) { c.Target = "nope" },
		"roles":   func(c *Config) { c.ColumnRoles = map[string]string{"x1": "weird"} },
	}
	for name, mut := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mut(&cfg)
			_, err := New(ds, cfg, Options{})
			assert.True(t, errs.IsConfig(err), "got %v", err)
		})
	}
}

func TestDecodeConfig(t *testing.T) {
	cfg, err := DecodeConfig(map[string]any{
		"target":                 "churn",
		"random_seed":            7,
		"train_test_split_ratio": 0.7,
		"ignore_columns":         []string{"x5"},
	})
	require.NoError(t, err)
	assert.Equal(t, "churn", cfg.Target)
	assert.Equal(t, int64(7), cfg.RandomSeed)
	assert.Equal(t, 0.7, cfg.TrainTestSplitRatio)
	assert.Equal(t, 10, cfg.NumTopFeatures)
	assert.Equal(t, []string{"x5"}, cfg.IgnoreColumns)

	_, err = DecodeConfig(map[string]any{"target": "churn", "learning_rate": 0.1})
	var ce *errs.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "learning_rate", ce.Field)
}

func TestDataErrorsSurface(t *testing.T) {
	same := make([]string, 30)
	x := make([]float64, 30)
	for i := range same {
		same[i] = "yes"
		x[i] = float64(i)
	}
	ds, err := dataset.New(dataset.NewNumeric("x", x), dataset.NewText("y", same, nil))
	require.NoError(t, err)
	cfg := DefaultConfig()
	cfg.Target = "y"
	eng, err := New(ds, cfg, Options{})
	require.NoError(t, err)
	_, err = eng.Analyze()
	assert.True(t, errs.IsData(err), "got %v", err)
}

func TestTopFeaturesDoesNotTruncateLevels(t *testing.T) {
	ds := mixed(t, 200)
	cfg := testConfig()
	cfg.NumTopFeatures = 2
	eng, err := New(ds, cfg, Options{Trees: 5})
	require.NoError(t, err)
	a, tr, err := eng.Run()
	require.NoError(t, err)

	var levels int
	for _, c := range a.Profile.Columns {
		if c.Name == "segment" {
			require.NotNil(t, c.Categorical)
			levels = len(c.Categorical.TopValues)
		}
	}
	assert.Equal(t, 4, levels)
	for model, top := range tr.TopFeatures {
		assert.LessOrEqual(t, len(top), 2, model)
	}
}
