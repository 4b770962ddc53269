// Package prep builds the feature matrix used by the baseline models. All
// statistics are fitted on the training split and replayed on the
// evaluation split.
package prep

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/errs"
	"github.com/KaramelBytes/quickeda-cli/internal/logging"
	"github.com/KaramelBytes/quickeda-cli/internal/problem"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

const (
	// MissingLevel replaces missing categorical values.
	MissingLevel = "__missing__"
	// UnknownLevel collects categories not seen during fitting.
	UnknownLevel = "__unknown__"
	// StdFloor bounds the divisor used for standardisation.
	StdFloor = 1e-8
)

// Options tunes feature construction.
type Options struct {
	// MaxOneHot is the largest vocabulary encoded one-hot; larger
	// vocabularies use a scaled ordinal code.
	MaxOneHot int
	Logger    *slog.Logger
}

// DefaultOptions returns the preprocessing defaults.
func DefaultOptions() Options { return Options{MaxOneHot: 20} }

// Encoding names how a column becomes features.
type Encoding string

const (
	EncodeScaled  Encoding = "scaled"
	EncodeOneHot  Encoding = "onehot"
	EncodeOrdinal Encoding = "ordinal"
)

// ColumnTransform holds the fitted state for one source column.
type ColumnTransform struct {
	Column   string   `json:"column" yaml:"column"`
	Encoding Encoding `json:"encoding" yaml:"encoding"`
	Median   float64  `json:"median,omitempty" yaml:"median,omitempty"`
	Mean     float64  `json:"mean,omitempty" yaml:"mean,omitempty"`
	Std      float64  `json:"std,omitempty" yaml:"std,omitempty"`
	Levels   []string `json:"levels,omitempty" yaml:"levels,omitempty"`

	index map[string]int
}

func (c *ColumnTransform) buildIndex() {
	c.index = make(map[string]int, len(c.Levels))
	for j, l := range c.Levels {
		c.index[l] = j
	}
}

func (c *ColumnTransform) level(col *dataset.Column, i int) int {
	key := MissingLevel
	if !col.IsMissing(i) {
		key = col.Key(i)
	}
	if c.index == nil {
		for j, l := range c.Levels {
			if l == key {
				return j
			}
		}
		return -1
	}
	if j, ok := c.index[key]; ok {
		return j
	}
	return -1
}

// Transform is the fitted preprocessing state.
type Transform struct {
	Columns  []ColumnTransform `json:"columns" yaml:"columns"`
	Features []string          `json:"features" yaml:"features"`
	Target   string            `json:"target" yaml:"target"`
	Task     problem.Type      `json:"task" yaml:"task"`
	// Classes lists training class labels; Y holds indices into it.
	Classes []string `json:"classes,omitempty" yaml:"classes,omitempty"`

	classIndex map[string]int
}

// Data is a dense feature matrix with aligned targets.
type Data struct {
	X [][]float64
	Y []float64
	// Rows maps each matrix row back to its dataset row.
	Rows []int
}

// Len returns the number of rows.
func (d Data) Len() int { return len(d.Y) }

// Result is the output of FitTransform.
type Result struct {
	Train     Data
	Eval      Data
	Transform *Transform
	// Dropped counts rows removed because the target was missing.
	Dropped int
}

// FitTransform fits the transform on split.Train and applies it to both
// splits. Rows with a missing target are dropped from both sides.
func FitTransform(ds *dataset.Dataset, s *schema.Schema, split Split, task problem.Type, opt Options) (*Result, error) {
	if opt.MaxOneHot <= 0 {
		opt.MaxOneHot = DefaultOptions().MaxOneHot
	}
	log := logging.OrDiscard(opt.Logger)
	if task == problem.None || s.Target == "" {
		return nil, errs.Data("", "preprocessing needs a target and a supervised problem type")
	}
	target, ok := ds.Column(s.Target)
	if !ok {
		return nil, errs.Config("target", s.Target, "column not found")
	}

	trainRows, droppedTrain := presentRows(target, split.Train)
	evalRows, droppedEval := presentRows(target, split.Eval)
	if len(trainRows) == 0 {
		return nil, errs.Data(s.Target, "training split has no rows with a target value")
	}

	t := &Transform{Target: s.Target, Task: task}
	for _, name := range s.Columns(schema.Numeric, schema.Datetime, schema.Categorical, schema.Boolean) {
		col, _ := ds.Column(name)
		var ct ColumnTransform
		switch s.Role(name) {
		case schema.Numeric, schema.Datetime:
			if col.Type == dataset.Text {
				// Overridden to numeric but holds text: encode as categories.
				ct = fitCategorical(col, trainRows, opt.MaxOneHot)
			} else {
				ct = fitScaled(col, trainRows)
			}
		default:
			ct = fitCategorical(col, trainRows, opt.MaxOneHot)
		}
		t.Columns = append(t.Columns, ct)
		t.Features = append(t.Features, featureNames(ct)...)
	}
	if len(t.Features) == 0 {
		return nil, errs.Data("", "no feature columns remain after dropping identifier and ignored columns")
	}
	if task == problem.Classification {
		t.fitClasses(target, trainRows)
	}

	res := &Result{Transform: t, Dropped: droppedTrain + droppedEval}
	var err error
	if res.Train, err = t.Apply(ds, trainRows); err != nil {
		return nil, fmt.Errorf("train split: %w", err)
	}
	if res.Eval, err = t.Apply(ds, evalRows); err != nil {
		return nil, fmt.Errorf("eval split: %w", err)
	}
	log.Debug("features built", "features", len(t.Features), "train", res.Train.Len(), "eval", res.Eval.Len(), "dropped", res.Dropped)
	return res, nil
}

func presentRows(col *dataset.Column, rows []int) ([]int, int) {
	out := make([]int, 0, len(rows))
	for _, r := range rows {
		if !col.IsMissing(r) {
			out = append(out, r)
		}
	}
	return out, len(rows) - len(out)
}

func fitScaled(col *dataset.Column, rows []int) ColumnTransform {
	ct := ColumnTransform{Column: col.Name, Encoding: EncodeScaled}
	vals := make([]float64, 0, len(rows))
	for _, r := range rows {
		if !col.IsMissing(r) {
			vals = append(vals, col.Float(r))
		}
	}
	ct.Median = median(vals)
	imputed := make([]float64, len(rows))
	for i, r := range rows {
		imputed[i] = ct.Median
		if !col.IsMissing(r) {
			imputed[i] = col.Float(r)
		}
	}
	if len(imputed) > 0 {
		ct.Mean, ct.Std = stat.PopMeanStdDev(imputed, nil)
	}
	if math.IsNaN(ct.Std) || ct.Std < StdFloor {
		ct.Std = StdFloor
	}
	return ct
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

func fitCategorical(col *dataset.Column, rows []int, maxOneHot int) ColumnTransform {
	seen := make(map[string]struct{})
	for _, r := range rows {
		key := MissingLevel
		if !col.IsMissing(r) {
			key = col.Key(r)
		}
		seen[key] = struct{}{}
	}
	levels := make([]string, 0, len(seen))
	for k := range seen {
		levels = append(levels, k)
	}
	sort.Strings(levels)
	enc := EncodeOneHot
	if len(levels) > maxOneHot {
		enc = EncodeOrdinal
	}
	ct := ColumnTransform{Column: col.Name, Encoding: enc, Levels: levels}
	ct.buildIndex()
	return ct
}

func featureNames(ct ColumnTransform) []string {
	if ct.Encoding != EncodeOneHot {
		return []string{ct.Column}
	}
	out := make([]string, 0, len(ct.Levels)+1)
	for _, l := range ct.Levels {
		out = append(out, ct.Column+"="+l)
	}
	return append(out, ct.Column+"="+UnknownLevel)
}

func (t *Transform) fitClasses(target *dataset.Column, rows []int) {
	seen := make(map[string]struct{})
	for _, r := range rows {
		seen[target.Key(r)] = struct{}{}
	}
	t.Classes = make([]string, 0, len(seen))
	for k := range seen {
		t.Classes = append(t.Classes, k)
	}
	sort.Strings(t.Classes)
	t.index()
}

func (t *Transform) index() {
	t.classIndex = make(map[string]int, len(t.Classes))
	for i, c := range t.Classes {
		t.classIndex[c] = i
	}
}

// ClassIndex returns the encoded index of label. Labels unseen during
// fitting map to len(Classes), an index no model predicts. The index is
// built during fitting and only read here, so Apply may run concurrently.
func (t *Transform) ClassIndex(label string) int {
	if t.classIndex == nil {
		for i, c := range t.Classes {
			if c == label {
				return i
			}
		}
		return len(t.Classes)
	}
	if i, ok := t.classIndex[label]; ok {
		return i
	}
	return len(t.Classes)
}

// Apply encodes the given dataset rows with the fitted state. Rows whose
// target is missing are rejected; callers filter them first.
func (t *Transform) Apply(ds *dataset.Dataset, rows []int) (Data, error) {
	target, ok := ds.Column(t.Target)
	if !ok {
		return Data{}, errs.Config("target", t.Target, "column not found")
	}
	cols := make([]*dataset.Column, len(t.Columns))
	for j, ct := range t.Columns {
		c, ok := ds.Column(ct.Column)
		if !ok {
			return Data{}, errs.Data(ct.Column, "column missing from dataset")
		}
		cols[j] = c
	}
	width := len(t.Features)
	d := Data{X: make([][]float64, len(rows)), Y: make([]float64, len(rows)), Rows: append([]int(nil), rows...)}
	for i, r := range rows {
		if target.IsMissing(r) {
			return Data{}, errs.Data(t.Target, "row %d has no target value", r)
		}
		row := make([]float64, 0, width)
		for j := range t.Columns {
			row = t.Columns[j].encode(row, cols[j], r)
		}
		d.X[i] = row
		if t.Task == problem.Classification {
			d.Y[i] = float64(t.ClassIndex(target.Key(r)))
		} else {
			d.Y[i] = target.Float(r)
		}
	}
	return d, nil
}

func (c *ColumnTransform) encode(dst []float64, col *dataset.Column, r int) []float64 {
	switch c.Encoding {
	case EncodeScaled:
		v := c.Median
		if !col.IsMissing(r) {
			v = col.Float(r)
		}
		return append(dst, (v-c.Mean)/c.Std)
	case EncodeOrdinal:
		j := c.level(col, r)
		if j < 0 {
			return append(dst, 1)
		}
		return append(dst, float64(j)/float64(len(c.Levels)))
	default:
		j := c.level(col, r)
		if j < 0 {
			j = len(c.Levels)
		}
		for k := 0; k <= len(c.Levels); k++ {
			if k == j {
				dst = append(dst, 1)
			} else {
				dst = append(dst, 0)
			}
		}
		return dst
	}
}
