package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/quickeda-cli/internal/errs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Format != "markdown" || c.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.Analysis.RandomSeed != 42 || c.Analysis.TrainTestSplitRatio != 0.8 || c.Analysis.OutlierMethod != "iqr" {
		t.Fatalf("unexpected analysis defaults: %+v", c.Analysis)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
format: json
analysis:
  target: price
  problem_type: regression
  ignore_columns: [id]
  column_roles:
    zip: categorical
`)
	t.Setenv("QUICKEDA_ANALYSIS_NUM_TOP_FEATURES", "3")
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Format != "json" || c.Analysis.Target != "price" || c.Analysis.ProblemType != "regression" {
		t.Fatalf("file values not applied: %+v", c)
	}
	if len(c.Analysis.IgnoreColumns) != 1 || c.Analysis.ColumnRoles["zip"] != "categorical" {
		t.Fatalf("collections not applied: %+v", c.Analysis)
	}
	if c.Analysis.NumTopFeatures != 3 {
		t.Fatalf("env override not applied: %d", c.Analysis.NumTopFeatures)
	}
	if c.Analysis.MaxOneHot != 20 {
		t.Fatalf("defaults lost for unset keys: %d", c.Analysis.MaxOneHot)
	}
}

func TestLoadRejectsUnknownAndInvalid(t *testing.T) {
	if _, err := Load(writeConfig(t, "analysis:\n  learning_rate: 0.1\n")); err == nil {
		t.Fatalf("expected unknown key error")
	}
	_, err := Load(writeConfig(t, "analysis:\n  train_test_split_ratio: 1.5\n"))
	if !errs.IsConfig(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for explicit missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.Analysis.Target = "label"
	c.Workers = 2
	if err := Save(c, ""); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load("")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Analysis.Target != "label" || got.Workers != 2 {
		t.Fatalf("round trip lost values: %+v", got)
	}
}

func TestSet(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	steps := map[string]string{
		"analysis.random_seed":    "7",
		"analysis.ignore_columns": "id, email",
		"analysis.problem_type":   "classification",
		"unit_normalize":          "true",
	}
	for k, v := range steps {
		if err := Set(c, k, v); err != nil {
			t.Fatalf("Set(%s): %v", k, err)
		}
	}
	if c.Analysis.RandomSeed != 7 || len(c.Analysis.IgnoreColumns) != 2 || c.Analysis.IgnoreColumns[1] != "email" {
		t.Fatalf("values not set: %+v", c.Analysis)
	}
	if !c.UnitNormalize || c.Analysis.ProblemType != "classification" {
		t.Fatalf("values not set: %+v", c)
	}

	before := *c
	if err := Set(c, "analysis.train_test_split_ratio", "2"); !errs.IsConfig(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if c.Analysis.TrainTestSplitRatio != before.Analysis.TrainTestSplitRatio {
		t.Fatalf("invalid value was applied")
	}
	if err := Set(c, "api_key", "x"); !errs.IsConfig(err) {
		t.Fatalf("expected ConfigError for unknown key, got %v", err)
	}
}
