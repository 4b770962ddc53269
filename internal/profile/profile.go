// Package profile computes per-column statistics, missingness, outliers,
// categorical anomalies and the association matrix of a dataset.
package profile

import (
	"fmt"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/logging"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

// Options controls profiling behavior.
type Options struct {
	// TopK bounds the number of category levels reported per column.
	TopK int
	// OutlierMethod selects IQR fences (default) or z-scores.
	OutlierMethod OutlierMethod
	// OutlierMultiplier is k in the fence formula; 0 uses the method default.
	OutlierMultiplier float64
	// RareLevelRatio flags levels rarer than this share of rows.
	RareLevelRatio float64
	// HighCardinality flags columns with more levels than this.
	HighCardinality int
	// DominantRatio flags a level covering more than this share of rows.
	DominantRatio float64
	// Workers bounds concurrent column work; 0 uses GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// DefaultOptions returns the profiling defaults.
func DefaultOptions() Options {
	return Options{
		TopK:            10,
		OutlierMethod:   OutlierIQR,
		RareLevelRatio:  0.01,
		HighCardinality: 50,
		DominantRatio:   0.95,
	}
}

func (o *Options) normalize() {
	def := DefaultOptions()
	if o.TopK <= 0 {
		o.TopK = def.TopK
	}
	if !o.OutlierMethod.Valid() {
		o.OutlierMethod = def.OutlierMethod
	}
	if o.OutlierMultiplier <= 0 {
		o.OutlierMultiplier = o.OutlierMethod.DefaultMultiplier()
	}
	if o.RareLevelRatio <= 0 {
		o.RareLevelRatio = def.RareLevelRatio
	}
	if o.HighCardinality <= 0 {
		o.HighCardinality = def.HighCardinality
	}
	if o.DominantRatio <= 0 {
		o.DominantRatio = def.DominantRatio
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
}

// ColumnProfile describes one column. Exactly one of the stats blocks is set
// for most columns; numeric category codes carry both numeric and categorical
// stats.
type ColumnProfile struct {
	Name         string              `json:"name" yaml:"name"`
	Role         schema.Role         `json:"role" yaml:"role"`
	Storage      dataset.StorageType `json:"storage" yaml:"storage"`
	Count        int                 `json:"count" yaml:"count"`
	Missing      int                 `json:"missing" yaml:"missing"`
	MissingRatio float64             `json:"missing_ratio" yaml:"missing_ratio"`
	Distinct     int                 `json:"distinct" yaml:"distinct"`
	Numeric      *NumericStats       `json:"numeric,omitempty" yaml:"numeric,omitempty"`
	Categorical  *CategoricalStats   `json:"categorical,omitempty" yaml:"categorical,omitempty"`
	Datetime     *DatetimeStats      `json:"datetime,omitempty" yaml:"datetime,omitempty"`
}

// Result is the full profile of a dataset.
type Result struct {
	Rows        int                      `json:"rows" yaml:"rows"`
	Columns     []ColumnProfile          `json:"columns" yaml:"columns"`
	Correlation CorrelationMatrix        `json:"correlation" yaml:"correlation"`
	Outliers    map[string]OutlierReport `json:"outliers" yaml:"outliers"`
	Missing     MissingSummary           `json:"missing" yaml:"missing"`
	Issues      []CategoricalIssue       `json:"issues" yaml:"issues"`
}

// Column returns the profile of the named column.
func (r *Result) Column(name string) (ColumnProfile, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnProfile{}, false
}

// columnResult carries everything computed for one column.
type columnResult struct {
	profile ColumnProfile
	outlier *OutlierReport
	issues  []CategoricalIssue
}

// Profile computes the dataset profile. It never mutates ds.
func Profile(ds *dataset.Dataset, s *schema.Schema, opt Options) (*Result, error) {
	if ds == nil || s == nil {
		return nil, fmt.Errorf("profile: dataset and schema are required")
	}
	opt.normalize()
	log := logging.OrDiscard(opt.Logger)

	n := ds.NumColumns()
	results := make([]columnResult, n)
	var g errgroup.Group
	g.SetLimit(opt.Workers)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			col := ds.At(i)
			results[i] = profileColumn(col, s, ds.Rows(), opt)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Rows: ds.Rows(), Columns: make([]ColumnProfile, 0, n), Outliers: map[string]OutlierReport{}, Issues: []CategoricalIssue{}}
	for _, cr := range results {
		res.Columns = append(res.Columns, cr.profile)
		if cr.outlier != nil {
			res.Outliers[cr.profile.Name] = *cr.outlier
		}
		res.Issues = append(res.Issues, cr.issues...)
	}
	res.Missing = summarizeMissing(res.Columns, s)

	corr, err := correlationMatrix(ds, s, opt.Workers)
	if err != nil {
		return nil, fmt.Errorf("correlation: %w", err)
	}
	res.Correlation = corr
	log.Debug("profile complete", "columns", n, "correlated", len(corr.Columns), "issues", len(res.Issues))
	return res, nil
}

func profileColumn(col *dataset.Column, s *schema.Schema, rows int, opt Options) columnResult {
	role := s.Role(col.Name)
	effective := role
	if role == schema.Target {
		effective = s.TargetBase
	}
	present := col.Present()
	p := ColumnProfile{
		Name:    col.Name,
		Role:    role,
		Storage: col.Type,
		Count:   rows,
		Missing: rows - present,
	}
	if rows > 0 {
		p.MissingRatio = float64(p.Missing) / float64(rows)
	}
	levels, _ := levelCounts(col)
	p.Distinct = len(levels)

	out := columnResult{}
	switch col.Type {
	case dataset.Numeric:
		vals := make([]float64, 0, present)
		idx := make([]int, 0, present)
		for i := 0; i < col.Len(); i++ {
			if !col.IsMissing(i) {
				vals = append(vals, col.Floats[i])
				idx = append(idx, i)
			}
		}
		p.Numeric = numericStats(vals)
		if effective == schema.Categorical {
			p.Categorical = categoricalStats(levels, opt.TopK)
		}
		if effective == schema.Numeric && present > 0 {
			rep := detectOutliers(col.Name, vals, idx, p.Numeric, opt.OutlierMethod, opt.OutlierMultiplier)
			out.outlier = &rep
		}
	case dataset.Text, dataset.Bool:
		p.Categorical = categoricalStats(levels, opt.TopK)
	case dataset.Temporal:
		p.Datetime = datetimeStats(col)
	}
	if effective == schema.Categorical {
		out.issues = findIssues(col.Name, levels, present, col.Type == dataset.Text, opt)
	}
	out.profile = p
	return out
}

// MissingColumn describes missingness of one column with a handling hint.
type MissingColumn struct {
	Column     string  `json:"column" yaml:"column"`
	Missing    int     `json:"missing" yaml:"missing"`
	Ratio      float64 `json:"ratio" yaml:"ratio"`
	Suggestion string  `json:"suggestion" yaml:"suggestion"`
}

// MissingSummary aggregates missing values over the whole dataset.
type MissingSummary struct {
	TotalCells   int             `json:"total_cells" yaml:"total_cells"`
	MissingCells int             `json:"missing_cells" yaml:"missing_cells"`
	Ratio        float64         `json:"ratio" yaml:"ratio"`
	Columns      []MissingColumn `json:"columns" yaml:"columns"`
}

func summarizeMissing(cols []ColumnProfile, s *schema.Schema) MissingSummary {
	ms := MissingSummary{Columns: []MissingColumn{}}
	for _, c := range cols {
		ms.TotalCells += c.Count
		ms.MissingCells += c.Missing
		if c.Missing == 0 {
			continue
		}
		ms.Columns = append(ms.Columns, MissingColumn{
			Column:     c.Name,
			Missing:    c.Missing,
			Ratio:      c.MissingRatio,
			Suggestion: suggestMissing(c, s),
		})
	}
	if ms.TotalCells > 0 {
		ms.Ratio = float64(ms.MissingCells) / float64(ms.TotalCells)
	}
	sort.SliceStable(ms.Columns, func(i, j int) bool {
		if ms.Columns[i].Ratio == ms.Columns[j].Ratio {
			return ms.Columns[i].Column < ms.Columns[j].Column
		}
		return ms.Columns[i].Ratio > ms.Columns[j].Ratio
	})
	return ms
}

func suggestMissing(c ColumnProfile, s *schema.Schema) string {
	switch {
	case c.MissingRatio >= 1:
		return "drop the column: no values present"
	case c.Role == schema.Target:
		return "rows with a missing target are dropped before training"
	case c.MissingRatio > 0.5:
		return "consider dropping: more than half the values are missing"
	}
	switch c.Role {
	case schema.Numeric:
		return "impute with the median"
	case schema.Categorical, schema.Boolean:
		return "impute with an explicit \"missing\" category"
	case schema.Datetime:
		return "impute with the median timestamp"
	case schema.Identifier:
		return "no action: identifiers are excluded from modeling"
	default:
		return "no action: column is ignored"
	}
}
