package eda

import (
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/quickeda-cli/internal/baseline"
	"github.com/KaramelBytes/quickeda-cli/internal/choice"
	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/errs"
	"github.com/KaramelBytes/quickeda-cli/internal/logging"
	"github.com/KaramelBytes/quickeda-cli/internal/prep"
	"github.com/KaramelBytes/quickeda-cli/internal/problem"
	"github.com/KaramelBytes/quickeda-cli/internal/profile"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

// Options carries engine collaborators that are not analysis settings.
type Options struct {
	Logger *slog.Logger
	// Workers bounds internal fan-out; 0 uses GOMAXPROCS.
	Workers int
	// Trees overrides the forest size, mainly for tests.
	Trees int
}

// Engine runs analyses over one dataset. It holds no mutable state, so
// Analyze and Train may be called repeatedly and concurrently.
type Engine struct {
	ds  *dataset.Dataset
	cfg Config
	opt Options
	log *slog.Logger
}

// Analysis is the unsupervised half of a run.
type Analysis struct {
	Schema  *schema.Schema              `json:"schema" yaml:"schema"`
	Profile *profile.Result             `json:"profile" yaml:"profile"`
	Problem choice.Choice[problem.Type] `json:"problem" yaml:"problem"`
}

// Training is the supervised half of a run.
type Training struct {
	TrainRows   int                                     `json:"train_rows" yaml:"train_rows"`
	EvalRows    int                                     `json:"eval_rows" yaml:"eval_rows"`
	Dropped     int                                     `json:"dropped_rows" yaml:"dropped_rows"`
	Transform   *prep.Transform                         `json:"transform,omitempty" yaml:"transform,omitempty"`
	Leaderboard *baseline.Leaderboard                   `json:"leaderboard" yaml:"leaderboard"`
	TopFeatures map[string][]baseline.FeatureImportance `json:"top_features" yaml:"top_features"`
}

// New validates cfg against ds and returns an engine.
func New(ds *dataset.Dataset, cfg Config, opt Options) (*Engine, error) {
	if ds == nil {
		return nil, errs.Data("", "no dataset supplied")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ds.Rows() == 0 {
		return nil, errs.Data("", "dataset has no rows")
	}
	if cfg.Target != "" && !ds.Has(cfg.Target) {
		return nil, errs.Config("target", cfg.Target, "column not found in dataset")
	}
	return &Engine{ds: ds, cfg: cfg, opt: opt, log: logging.OrDiscard(opt.Logger)}, nil
}

// Config returns the validated configuration.
func (e *Engine) Config() Config { return e.cfg }

// Dataset returns the dataset under analysis.
func (e *Engine) Dataset() *dataset.Dataset { return e.ds }

// Analyze infers the schema, then profiles the data and resolves the
// problem type concurrently.
func (e *Engine) Analyze() (*Analysis, error) {
	so := schema.DefaultOptions()
	so.Target = e.cfg.Target
	so.Ignore = e.cfg.IgnoreColumns
	so.Overrides = e.cfg.overrides()
	so.Logger = e.log
	s, err := schema.Infer(e.ds, so)
	if err != nil {
		return nil, fmt.Errorf("infer schema: %w", err)
	}

	a := &Analysis{Schema: s}
	var g errgroup.Group
	g.Go(func() error {
		po := profile.DefaultOptions()
		po.OutlierMethod = profile.OutlierMethod(e.cfg.OutlierMethod)
		po.OutlierMultiplier = e.cfg.OutlierMultiplier
		po.Workers = e.opt.Workers
		po.Logger = e.log
		res, err := profile.Profile(e.ds, s, po)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		a.Profile = res
		return nil
	})
	g.Go(func() error {
		ro := problem.DefaultOptions()
		ro.Logger = e.log
		c, err := problem.Resolve(e.ds, s, e.cfg.Target, e.cfg.Problem(), ro)
		if err != nil {
			return fmt.Errorf("resolve problem type: %w", err)
		}
		a.Problem = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	e.log.Info("analysis complete", "rows", e.ds.Rows(), "columns", e.ds.NumColumns(), "problem", a.Problem.Value.String())
	return a, nil
}

// Train splits, preprocesses and fits the baseline families. A nil analysis
// is recomputed first. Without a supervised task the leaderboard reports no
// baseline instead of failing.
func (e *Engine) Train(a *Analysis) (*Training, error) {
	if a == nil {
		var err error
		if a, err = e.Analyze(); err != nil {
			return nil, err
		}
	}
	task := a.Problem.Value
	if task == problem.None {
		return &Training{
			Leaderboard: &baseline.Leaderboard{
				Problem:    problem.None,
				Entries:    []baseline.Entry{},
				NoBaseline: true,
				Reason:     "no baseline available: no target column configured",
			},
			TopFeatures: map[string][]baseline.FeatureImportance{},
		}, nil
	}

	split, err := e.split(task)
	if err != nil {
		return nil, err
	}
	po := prep.DefaultOptions()
	po.MaxOneHot = e.cfg.MaxOneHot
	po.Logger = e.log
	pre, err := prep.FitTransform(e.ds, a.Schema, split, task, po)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}

	bo := baseline.DefaultOptions(task)
	bo.NumClasses = len(pre.Transform.Classes)
	bo.Features = pre.Transform.Features
	bo.Seed = e.cfg.RandomSeed
	bo.ImbalanceRatio = e.cfg.ImbalanceRatio
	bo.Workers = e.opt.Workers
	bo.Logger = e.log
	if e.opt.Trees > 0 {
		bo.Trees = e.opt.Trees
	}
	lb, err := baseline.Train(
		baseline.Data{X: pre.Train.X, Y: pre.Train.Y},
		baseline.Data{X: pre.Eval.X, Y: pre.Eval.Y},
		bo,
	)
	if err != nil {
		return nil, fmt.Errorf("train baselines: %w", err)
	}

	t := &Training{
		TrainRows:   pre.Train.Len(),
		EvalRows:    pre.Eval.Len(),
		Dropped:     pre.Dropped,
		Transform:   pre.Transform,
		Leaderboard: lb,
		TopFeatures: make(map[string][]baseline.FeatureImportance, len(lb.Entries)),
	}
	for _, entry := range lb.Entries {
		t.TopFeatures[entry.Model] = entry.Top(e.cfg.NumTopFeatures)
	}
	for _, f := range lb.Failures {
		e.log.Warn("baseline omitted", "model", f.Model, "reason", f.Reason)
	}
	return t, nil
}

// Run performs Analyze followed by Train.
func (e *Engine) Run() (*Analysis, *Training, error) {
	a, err := e.Analyze()
	if err != nil {
		return nil, nil, err
	}
	t, err := e.Train(a)
	if err != nil {
		return a, nil, err
	}
	return a, t, nil
}

// split stratifies classification targets so rare classes reach both
// halves.
func (e *Engine) split(task problem.Type) (prep.Split, error) {
	if task != problem.Classification {
		return prep.NewSplit(e.ds.Rows(), e.cfg.TrainTestSplitRatio, e.cfg.RandomSeed)
	}
	target, _ := e.ds.Column(e.cfg.Target)
	labels := make([]string, target.Len())
	for i := range labels {
		if target.IsMissing(i) {
			labels[i] = "\x00missing"
			continue
		}
		labels[i] = target.Key(i)
	}
	return prep.NewStratifiedSplit(labels, e.cfg.TrainTestSplitRatio, e.cfg.RandomSeed)
}
