// Package config loads user-level defaults for the CLI from
// ~/.quickeda/config.yaml, QUICKEDA_* environment variables and flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/quickeda-cli/internal/eda"
	"github.com/KaramelBytes/quickeda-cli/internal/errs"
	"github.com/KaramelBytes/quickeda-cli/internal/problem"
	"github.com/KaramelBytes/quickeda-cli/internal/report"
)

// Global configuration structure.
type Global struct {
	// Analysis holds the defaults applied to every run before flags.
	Analysis eda.Config `mapstructure:"analysis" yaml:"analysis"`
	// Format is the default report format: markdown, json or yaml.
	Format   string `mapstructure:"format" yaml:"format"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// MaxRows limits rows loaded per file; 0 means unlimited.
	MaxRows int `mapstructure:"max_rows" yaml:"max_rows"`
	// UnitNormalize converts unit-annotated columns on load.
	UnitNormalize bool `mapstructure:"unit_normalize" yaml:"unit_normalize"`
	// Workers bounds parallel work; 0 uses all CPUs.
	Workers int `mapstructure:"workers" yaml:"workers"`
}

// Keys lists the settable dotted keys, for `config set`.
func Keys() []string {
	return []string{
		"format", "log_level", "max_rows", "unit_normalize", "workers",
		"analysis.target", "analysis.problem_type", "analysis.random_seed",
		"analysis.train_test_split_ratio", "analysis.num_top_features",
		"analysis.ignore_columns", "analysis.outlier_method",
		"analysis.outlier_multiplier", "analysis.imbalance_ratio", "analysis.max_one_hot",
	}
}

// DefaultPath returns ~/.quickeda/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".quickeda", "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.quickeda/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("QUICKEDA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := eda.DefaultConfig()
	v.SetDefault("format", "markdown")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_rows", 0)
	v.SetDefault("unit_normalize", false)
	v.SetDefault("workers", 0)
	v.SetDefault("analysis.target", d.Target)
	v.SetDefault("analysis.problem_type", d.ProblemType)
	v.SetDefault("analysis.random_seed", d.RandomSeed)
	v.SetDefault("analysis.train_test_split_ratio", d.TrainTestSplitRatio)
	v.SetDefault("analysis.num_top_features", d.NumTopFeatures)
	v.SetDefault("analysis.ignore_columns", []string{})
	v.SetDefault("analysis.column_roles", map[string]string{})
	v.SetDefault("analysis.outlier_method", d.OutlierMethod)
	v.SetDefault("analysis.outlier_multiplier", d.OutlierMultiplier)
	v.SetDefault("analysis.imbalance_ratio", d.ImbalanceRatio)
	v.SetDefault("analysis.max_one_hot", d.MaxOneHot)
	return v
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (applied by the caller) > env > config file > defaults.
// Unknown keys in the file are rejected.
func Load(cfgFile string) (*Global, error) {
	v := newViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(filepath.Dir(p))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.UnmarshalExact(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the stored defaults. The target usually arrives per run,
// so a stored problem_type may stand without one.
func (c *Global) Validate() error {
	if _, err := report.ParseFormat(c.Format); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return errs.Config("log_level", c.LogLevel, "must be debug, info, warn or error")
	}
	if c.MaxRows < 0 {
		return errs.Config("max_rows", c.MaxRows, "must not be negative")
	}
	a := c.Analysis
	if a.Target == "" && a.ProblemType != "" {
		if _, err := problem.Parse(a.ProblemType); err != nil {
			return errs.Config("problem_type", a.ProblemType, "must be classification, regression or empty")
		}
		a.ProblemType = ""
	}
	return a.Validate()
}

// Set assigns a dotted key from its string form, using viper's type
// coercion against the current value.
func Set(c *Global, key, value string) error {
	v := viper.New()
	if err := v.MergeConfigMap(toMap(c)); err != nil {
		return fmt.Errorf("merge config: %w", err)
	}
	known := false
	for _, k := range Keys() {
		if k == key {
			known = true
			break
		}
	}
	if !known {
		return errs.Config(key, value, "unknown config key (known: "+strings.Join(Keys(), ", ")+")")
	}
	if key == "analysis.ignore_columns" {
		var cols []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cols = append(cols, s)
			}
		}
		v.Set(key, cols)
	} else {
		v.Set(key, value)
	}
	var out Global
	if err := v.UnmarshalExact(&out); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*c = out
	return nil
}

func toMap(c *Global) map[string]any {
	b, _ := yaml.Marshal(c)
	m := map[string]any{}
	_ = yaml.Unmarshal(b, &m)
	return m
}
