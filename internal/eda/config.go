// Package eda wires schema inference, profiling, problem resolution,
// preprocessing and baseline training into one engine.
package eda

import (
	"fmt"
	"math"
	"sort"

	"github.com/go-viper/mapstructure/v2"

	"github.com/KaramelBytes/quickeda-cli/internal/errs"
	"github.com/KaramelBytes/quickeda-cli/internal/problem"
	"github.com/KaramelBytes/quickeda-cli/internal/profile"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

// Config holds the recognised analysis options.
type Config struct {
	Target string `mapstructure:"target" yaml:"target" json:"target"`
	// ProblemType is "classification", "regression" or empty to infer.
	ProblemType         string   `mapstructure:"problem_type" yaml:"problem_type" json:"problem_type"`
	RandomSeed          int64    `mapstructure:"random_seed" yaml:"random_seed" json:"random_seed"`
	TrainTestSplitRatio float64  `mapstructure:"train_test_split_ratio" yaml:"train_test_split_ratio" json:"train_test_split_ratio"`
	NumTopFeatures      int      `mapstructure:"num_top_features" yaml:"num_top_features" json:"num_top_features"`
	IgnoreColumns       []string `mapstructure:"ignore_columns" yaml:"ignore_columns" json:"ignore_columns"`
	// ColumnRoles forces the role of named columns.
	ColumnRoles       map[string]string `mapstructure:"column_roles" yaml:"column_roles" json:"column_roles"`
	OutlierMethod     string            `mapstructure:"outlier_method" yaml:"outlier_method" json:"outlier_method"`
	OutlierMultiplier float64           `mapstructure:"outlier_multiplier" yaml:"outlier_multiplier" json:"outlier_multiplier"`
	ImbalanceRatio    float64           `mapstructure:"imbalance_ratio" yaml:"imbalance_ratio" json:"imbalance_ratio"`
	MaxOneHot         int               `mapstructure:"max_one_hot" yaml:"max_one_hot" json:"max_one_hot"`
}

// DefaultConfig returns the defaults applied before user values.
func DefaultConfig() Config {
	return Config{
		RandomSeed:          42,
		TrainTestSplitRatio: 0.8,
		NumTopFeatures:      10,
		IgnoreColumns:       []string{},
		ColumnRoles:         map[string]string{},
		OutlierMethod:       string(profile.OutlierIQR),
		OutlierMultiplier:   1.5,
		ImbalanceRatio:      0.2,
		MaxOneHot:           20,
	}
}

// DecodeConfig overlays raw onto DefaultConfig. Unknown keys are rejected.
func DecodeConfig(raw map[string]any) (Config, error) {
	cfg := DefaultConfig()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
		TagName:     "mapstructure",
	})
	if err != nil {
		return Config{}, fmt.Errorf("config decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		known := make(map[string]bool)
		for _, k := range configKeys() {
			known[k] = true
		}
		keys := make([]string, 0, len(raw))
		for k := range raw {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !known[k] {
				return Config{}, errs.Config(k, raw[k], "unknown configuration key")
			}
		}
		return Config{}, &errs.ConfigError{Field: "config", Value: raw, Reason: err.Error()}
	}
	return cfg, cfg.Validate()
}

// configKeys lists the recognised keys.
func configKeys() []string {
	return []string{
		"target", "problem_type", "random_seed", "train_test_split_ratio",
		"num_top_features", "ignore_columns", "column_roles", "outlier_method",
		"outlier_multiplier", "imbalance_ratio", "max_one_hot",
	}
}

// Validate checks every field before any computation runs.
func (c Config) Validate() error {
	if _, err := problem.Parse(c.ProblemType); err != nil {
		return errs.Config("problem_type", c.ProblemType, "must be classification, regression or empty")
	}
	if c.ProblemType != "" && c.Target == "" {
		if t, _ := problem.Parse(c.ProblemType); t != problem.None {
			return errs.Config("problem_type", c.ProblemType, "requires a target column")
		}
	}
	r := c.TrainTestSplitRatio
	if math.IsNaN(r) || r <= 0 || r >= 1 {
		return errs.Config("train_test_split_ratio", r, "must be in (0, 1)")
	}
	if c.NumTopFeatures <= 0 {
		return errs.Config("num_top_features", c.NumTopFeatures, "must be a positive integer")
	}
	if !profile.OutlierMethod(c.OutlierMethod).Valid() {
		return errs.Config("outlier_method", c.OutlierMethod, "must be iqr or zscore")
	}
	if math.IsNaN(c.OutlierMultiplier) || c.OutlierMultiplier <= 0 {
		return errs.Config("outlier_multiplier", c.OutlierMultiplier, "must be positive")
	}
	if math.IsNaN(c.ImbalanceRatio) || c.ImbalanceRatio <= 0 || c.ImbalanceRatio > 1 {
		return errs.Config("imbalance_ratio", c.ImbalanceRatio, "must be in (0, 1]")
	}
	if c.MaxOneHot <= 0 {
		return errs.Config("max_one_hot", c.MaxOneHot, "must be a positive integer")
	}
	cols := make([]string, 0, len(c.ColumnRoles))
	for col := range c.ColumnRoles {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		role := c.ColumnRoles[col]
		r, err := schema.ParseRole(role)
		if err != nil {
			return errs.Config("column_roles", col+"="+role, "unknown role")
		}
		if r == schema.Target {
			return errs.Config("column_roles", col+"="+role, "use target to choose the target column")
		}
	}
	return nil
}

// Problem returns the override implied by ProblemType, or nil to infer.
func (c Config) Problem() *problem.Type {
	t, err := problem.Parse(c.ProblemType)
	if err != nil || t == problem.None {
		return nil
	}
	return &t
}

func (c Config) overrides() map[string]schema.Role {
	out := make(map[string]schema.Role, len(c.ColumnRoles))
	for col, role := range c.ColumnRoles {
		if r, err := schema.ParseRole(role); err == nil {
			out[col] = r
		}
	}
	return out
}
