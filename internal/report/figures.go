package report

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/quickeda-cli/internal/baseline"
	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/eda"
	"github.com/KaramelBytes/quickeda-cli/internal/prep"
	"github.com/KaramelBytes/quickeda-cli/internal/profile"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

// Figures is plot-ready data. Nothing here is rendered to an image; a
// front end can draw every series directly.
type Figures struct {
	Distributions []Histogram                  `json:"distributions" yaml:"distributions"`
	Heatmap       profile.CorrelationMatrix    `json:"heatmap" yaml:"heatmap"`
	Importance    []baseline.FeatureImportance `json:"importance,omitempty" yaml:"importance,omitempty"`
	ImportanceOf  string                       `json:"importance_model,omitempty" yaml:"importance_model,omitempty"`
	Outliers      []OutlierBar                 `json:"outliers" yaml:"outliers"`
	Categories    []CategoryBar                `json:"categories" yaml:"categories"`
	Target        *CategoryBar                 `json:"target,omitempty" yaml:"target,omitempty"`
}

// Histogram holds bin edges and counts; len(Edges) == len(Counts)+1.
type Histogram struct {
	Column string    `json:"column" yaml:"column"`
	Edges  []float64 `json:"edges" yaml:"edges"`
	Counts []int     `json:"counts" yaml:"counts"`
}

// OutlierBar is one bar of the outlier summary chart.
type OutlierBar struct {
	Column string  `json:"column" yaml:"column"`
	Count  int     `json:"count" yaml:"count"`
	Ratio  float64 `json:"ratio" yaml:"ratio"`
	Lower  float64 `json:"lower" yaml:"lower"`
	Upper  float64 `json:"upper" yaml:"upper"`
}

// CategoryBar is the level frequency chart of one categorical column.
type CategoryBar struct {
	Column string               `json:"column" yaml:"column"`
	Values []profile.ValueCount `json:"values" yaml:"values"`
}

func buildFigures(ds *dataset.Dataset, a *eda.Analysis, tr *eda.Training, topK, bins int) Figures {
	var fig Figures
	if a == nil || a.Profile == nil {
		return fig
	}
	fig.Heatmap = a.Profile.Correlation

	if tr != nil && tr.Leaderboard != nil {
		if best, ok := tr.Leaderboard.Best(); ok {
			fig.Importance = best.Top(topK)
			fig.ImportanceOf = best.Model
		}
	}

	for _, name := range histogramColumns(a, tr, fig.Importance, topK) {
		col, ok := ds.Column(name)
		if !ok {
			continue
		}
		if h, ok := histogram(name, col.NumbersPresent(), bins); ok {
			fig.Distributions = append(fig.Distributions, h)
		}
	}

	rows := float64(a.Profile.Rows)
	for _, o := range a.Profile.Outliers {
		if o.Count() == 0 {
			continue
		}
		fig.Outliers = append(fig.Outliers, OutlierBar{
			Column: o.Column, Count: o.Count(), Ratio: float64(o.Count()) / rows,
			Lower: o.Lower, Upper: o.Upper,
		})
	}
	sort.Slice(fig.Outliers, func(i, j int) bool {
		if fig.Outliers[i].Count != fig.Outliers[j].Count {
			return fig.Outliers[i].Count > fig.Outliers[j].Count
		}
		return fig.Outliers[i].Column < fig.Outliers[j].Column
	})

	for _, c := range a.Profile.Columns {
		if c.Categorical == nil {
			continue
		}
		bar := CategoryBar{Column: c.Name, Values: c.Categorical.TopValues}
		if c.Name == a.Schema.Target {
			b := bar
			fig.Target = &b
			continue
		}
		if c.Role == schema.Categorical || c.Role == schema.Boolean {
			fig.Categories = append(fig.Categories, bar)
		}
	}
	return fig
}

// histogramColumns picks the numeric source columns behind the most
// important features, or every numeric column when no model was trained.
func histogramColumns(a *eda.Analysis, tr *eda.Training, top []baseline.FeatureImportance, k int) []string {
	numeric := a.Schema.Columns(schema.Numeric)
	if len(top) == 0 || tr == nil || tr.Transform == nil {
		if len(numeric) > k {
			numeric = numeric[:k]
		}
		return numeric
	}
	isNumeric := make(map[string]bool, len(numeric))
	for _, n := range numeric {
		isNumeric[n] = true
	}
	var out []string
	seen := map[string]bool{}
	for _, fi := range top {
		src := sourceColumn(tr.Transform, fi.Feature)
		if src == "" || seen[src] || !isNumeric[src] {
			continue
		}
		seen[src] = true
		out = append(out, src)
	}
	return out
}

// sourceColumn maps a feature name such as "city=paris" back to "city".
func sourceColumn(t *prep.Transform, feature string) string {
	for _, ct := range t.Columns {
		if feature == ct.Column || strings.HasPrefix(feature, ct.Column+"=") {
			return ct.Column
		}
	}
	return ""
}

// histogram bins vals into equal-width buckets spanning [min, max].
func histogram(name string, vals []float64, bins int) (Histogram, bool) {
	if len(vals) == 0 || bins <= 0 {
		return Histogram{}, false
	}
	x := append([]float64(nil), vals...)
	sort.Float64s(x)
	lo, hi := x[0], x[len(x)-1]
	var dividers []float64
	if lo == hi {
		dividers = []float64{lo, math.Nextafter(hi, math.Inf(1))}
	} else {
		dividers = floats.Span(make([]float64, bins+1), lo, hi)
		dividers[bins] = math.Nextafter(hi, math.Inf(1))
	}
	counts := stat.Histogram(nil, dividers, x, nil)
	h := Histogram{Column: name, Edges: dividers, Counts: make([]int, len(counts))}
	h.Edges[len(h.Edges)-1] = hi
	for i, c := range counts {
		h.Counts[i] = int(c)
	}
	return h, true
}
