// Package baseline fits a fixed set of model families on preprocessed
// features and ranks them on a held-out split.
package baseline

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/quickeda-cli/internal/logging"
	"github.com/KaramelBytes/quickeda-cli/internal/problem"
)

// Data is a dense feature matrix with aligned targets. Classification
// targets hold class indices.
type Data struct {
	X [][]float64
	Y []float64
}

// Len returns the number of rows.
func (d Data) Len() int { return len(d.Y) }

func (d Data) width() int {
	if len(d.X) == 0 {
		return 0
	}
	return len(d.X[0])
}

// Family is a model family that can be fitted on training data.
type Family interface {
	Name() string
	Fit(train Data) (Fitted, error)
}

// Fitted is a trained model.
type Fitted interface {
	// Predict returns one prediction per row: a class index for
	// classification, a value for regression.
	Predict(X [][]float64) []float64
	// Importances returns non-negative weights aligned to the feature
	// columns, summing to 1.
	Importances() []float64
}

// Options configures training.
type Options struct {
	Task       problem.Type
	NumClasses int
	// Features names the columns of X, used for importance reporting.
	Features []string
	Seed     int64
	// ImbalanceRatio switches classification scoring to balanced accuracy.
	ImbalanceRatio float64
	Trees          int
	MaxDepth       int
	MinLeaf        int
	// Ridge is the L2 penalty of the linear family.
	Ridge        float64
	Epochs       int
	LearningRate float64
	Workers      int
	// Families replaces the default families when non-empty.
	Families []Family
	Logger   *slog.Logger
}

// DefaultOptions returns the training defaults for task.
func DefaultOptions(task problem.Type) Options {
	return Options{
		Task:           task,
		Seed:           42,
		ImbalanceRatio: 0.2,
		Trees:          100,
		MaxDepth:       10,
		MinLeaf:        1,
		Ridge:          1.0,
		Epochs:         300,
		LearningRate:   0.5,
	}
}

func (o *Options) normalize() {
	def := DefaultOptions(o.Task)
	if o.ImbalanceRatio <= 0 {
		o.ImbalanceRatio = def.ImbalanceRatio
	}
	if o.Trees <= 0 {
		o.Trees = def.Trees
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = def.MaxDepth
	}
	if o.MinLeaf <= 0 {
		o.MinLeaf = def.MinLeaf
	}
	if o.Ridge <= 0 {
		o.Ridge = def.Ridge
	}
	if o.Epochs <= 0 {
		o.Epochs = def.Epochs
	}
	if o.LearningRate <= 0 {
		o.LearningRate = def.LearningRate
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
}

// DefaultFamilies returns the linear and tree-ensemble families for the
// configured task.
func DefaultFamilies(opt Options) []Family {
	opt.normalize()
	return []Family{NewLinear(opt), NewForest(opt)}
}

// FeatureImportance is one feature's normalised importance.
type FeatureImportance struct {
	Feature    string  `json:"feature" yaml:"feature"`
	Importance float64 `json:"importance" yaml:"importance"`
}

// Entry is one ranked model.
type Entry struct {
	Model  string  `json:"model" yaml:"model"`
	Metric Metric  `json:"metric" yaml:"metric"`
	Value  float64 `json:"value" yaml:"value"`
	// Importance is aligned to Leaderboard.Features.
	Importance []FeatureImportance `json:"importance" yaml:"importance"`
	TrainRows  int                 `json:"train_rows" yaml:"train_rows"`
	EvalRows   int                 `json:"eval_rows" yaml:"eval_rows"`
}

// Top returns the k most important features, ties broken by name. k <= 0
// returns all of them.
func (e Entry) Top(k int) []FeatureImportance {
	out := append([]FeatureImportance(nil), e.Importance...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Importance == out[j].Importance {
			return out[i].Feature < out[j].Feature
		}
		return out[i].Importance > out[j].Importance
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

// Failure records a family that could not produce a score.
type Failure struct {
	Model  string `json:"model" yaml:"model"`
	Reason string `json:"reason" yaml:"reason"`
}

// Leaderboard is the ranked result of Train.
type Leaderboard struct {
	Problem        problem.Type `json:"problem" yaml:"problem"`
	Metric         Metric       `json:"metric" yaml:"metric"`
	HigherIsBetter bool         `json:"higher_is_better" yaml:"higher_is_better"`
	Features       []string     `json:"features" yaml:"features"`
	Entries        []Entry      `json:"entries" yaml:"entries"`
	Failures       []Failure    `json:"failures,omitempty" yaml:"failures,omitempty"`
	// NoBaseline is set when every family failed; Reason explains why.
	NoBaseline bool   `json:"no_baseline" yaml:"no_baseline"`
	Reason     string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Best returns the top entry.
func (l *Leaderboard) Best() (Entry, bool) {
	if len(l.Entries) == 0 {
		return Entry{}, false
	}
	return l.Entries[0], true
}

// ErrSingleClass is returned by classifiers when the training split holds
// fewer than two classes.
var ErrSingleClass = errors.New("training split holds a single class")

// Train fits every family on train and scores it on eval. A family that
// fails, panics or yields a non-finite score is listed in Failures instead
// of aborting the run. An error is only returned for unusable inputs.
func Train(train, eval Data, opt Options) (*Leaderboard, error) {
	if opt.Task == problem.None {
		return nil, fmt.Errorf("baseline: no supervised problem to train for")
	}
	if len(train.X) != len(train.Y) || len(eval.X) != len(eval.Y) {
		return nil, fmt.Errorf("baseline: feature and target lengths differ")
	}
	if eval.Len() > 0 && train.Len() > 0 && eval.width() != train.width() {
		return nil, fmt.Errorf("baseline: train has %d features, eval has %d", train.width(), eval.width())
	}
	opt.normalize()
	log := logging.OrDiscard(opt.Logger)

	metric := ChooseMetric(opt.Task, train.Y, opt.ImbalanceRatio)
	lb := &Leaderboard{
		Problem:        opt.Task,
		Metric:         metric,
		HigherIsBetter: metric.HigherIsBetter(),
		Features:       append([]string(nil), opt.Features...),
		Entries:        []Entry{},
	}
	families := opt.Families
	if len(families) == 0 {
		families = DefaultFamilies(opt)
	}

	type outcome struct {
		entry *Entry
		fail  *Failure
	}
	outcomes := make([]outcome, len(families))
	var g errgroup.Group
	for i, fam := range families {
		i, fam := i, fam
		g.Go(func() error {
			e, err := runFamily(fam, train, eval, metric, opt.Features)
			if err != nil {
				log.Warn("model family failed", "model", fam.Name(), "err", err)
				outcomes[i].fail = &Failure{Model: fam.Name(), Reason: err.Error()}
				return nil
			}
			log.Debug("model scored", "model", fam.Name(), "metric", metric, "value", e.Value)
			outcomes[i].entry = e
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.entry != nil {
			lb.Entries = append(lb.Entries, *o.entry)
		}
		if o.fail != nil {
			lb.Failures = append(lb.Failures, *o.fail)
		}
	}
	sortEntries(lb.Entries, metric.HigherIsBetter())
	sort.SliceStable(lb.Failures, func(i, j int) bool { return lb.Failures[i].Model < lb.Failures[j].Model })
	if len(lb.Entries) == 0 {
		lb.NoBaseline = true
		lb.Reason = "no baseline available: every model family failed"
		if len(lb.Failures) == 1 {
			lb.Reason = "no baseline available: " + lb.Failures[0].Reason
		}
	}
	return lb, nil
}

// runFamily fits and scores one family, turning panics into errors.
func runFamily(fam Family, train, eval Data, metric Metric, features []string) (e *Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	if train.Len() == 0 {
		return nil, errors.New("training split is empty")
	}
	if eval.Len() == 0 {
		return nil, errors.New("evaluation split is empty")
	}
	fitted, err := fam.Fit(train)
	if err != nil {
		return nil, err
	}
	value := Score(metric, eval.Y, fitted.Predict(eval.X))
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("non-finite %s score", metric)
	}
	imp := fitted.Importances()
	entry := &Entry{
		Model:      fam.Name(),
		Metric:     metric,
		Value:      value,
		Importance: make([]FeatureImportance, len(imp)),
		TrainRows:  train.Len(),
		EvalRows:   eval.Len(),
	}
	for j, v := range imp {
		name := fmt.Sprintf("f%d", j)
		if j < len(features) {
			name = features[j]
		}
		entry.Importance[j] = FeatureImportance{Feature: name, Importance: v}
	}
	return entry, nil
}

func sortEntries(es []Entry, higher bool) {
	sort.SliceStable(es, func(i, j int) bool {
		if es[i].Value == es[j].Value {
			return es[i].Model < es[j].Model
		}
		if higher {
			return es[i].Value > es[j].Value
		}
		return es[i].Value < es[j].Value
	})
}

// normalizeWeights scales non-negative weights to sum to 1; all-zero weights
// become uniform.
func normalizeWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	var sum float64
	for _, v := range w {
		if v > 0 && !math.IsInf(v, 0) {
			sum += v
		}
	}
	for i, v := range w {
		switch {
		case sum == 0:
			out[i] = 1 / float64(len(w))
		case v > 0 && !math.IsInf(v, 0):
			out[i] = v / sum
		}
	}
	return out
}

func distinctLabels(y []float64) int {
	seen := make(map[float64]struct{})
	for _, v := range y {
		seen[v] = struct{}{}
	}
	return len(seen)
}
