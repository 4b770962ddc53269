package profile

import (
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

// Association methods recorded per matrix cell.
const (
	MethodSelf             = "self"
	MethodPearson          = "pearson"
	MethodCramersV         = "cramers_v"
	MethodCorrelationRatio = "correlation_ratio"
)

// CorrelationMatrix holds a symmetric association matrix. Numeric pairs use
// Pearson correlation in [-1,1]; pairs involving a categorical column use
// Cramér's V or the correlation ratio, both in [0,1].
type CorrelationMatrix struct {
	Columns []string    `json:"columns" yaml:"columns"`
	Values  [][]float64 `json:"values" yaml:"values"`
	Methods [][]string  `json:"methods" yaml:"methods"`
}

// At returns the association between two columns and whether both are present.
func (m CorrelationMatrix) At(a, b string) (float64, bool) {
	ia, ib := -1, -1
	for i, c := range m.Columns {
		if c == a {
			ia = i
		}
		if c == b {
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return 0, false
	}
	return m.Values[ia][ib], true
}

// PairCorr is one off-diagonal cell of the matrix.
type PairCorr struct {
	A      string  `json:"a" yaml:"a"`
	B      string  `json:"b" yaml:"b"`
	Value  float64 `json:"value" yaml:"value"`
	Method string  `json:"method" yaml:"method"`
}

// TopPairs returns up to n pairs ordered by absolute association.
func (m CorrelationMatrix) TopPairs(n int) []PairCorr {
	var pairs []PairCorr
	for i := range m.Columns {
		for j := i + 1; j < len(m.Columns); j++ {
			pairs = append(pairs, PairCorr{A: m.Columns[i], B: m.Columns[j], Value: m.Values[i][j], Method: m.Methods[i][j]})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].Value), math.Abs(pairs[j].Value)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	if n > 0 && len(pairs) > n {
		pairs = pairs[:n]
	}
	return pairs
}

type corrKind int

const (
	kindNumeric corrKind = iota
	kindCategorical
	kindBoolean
)

type corrColumn struct {
	name string
	kind corrKind
	col  *dataset.Column
}

func correlationColumns(ds *dataset.Dataset, s *schema.Schema) []corrColumn {
	var out []corrColumn
	for _, a := range s.Assignments {
		role := a.Role.Value
		if role == schema.Target {
			role = s.TargetBase
		}
		col, _ := ds.Column(a.Column)
		switch {
		case role == schema.Boolean:
			out = append(out, corrColumn{a.Column, kindBoolean, col})
		case role == schema.Categorical:
			out = append(out, corrColumn{a.Column, kindCategorical, col})
		case role == schema.Numeric && col.Type != dataset.Text:
			out = append(out, corrColumn{a.Column, kindNumeric, col})
		}
	}
	return out
}

func correlationMatrix(ds *dataset.Dataset, s *schema.Schema, workers int) (CorrelationMatrix, error) {
	cols := correlationColumns(ds, s)
	n := len(cols)
	m := CorrelationMatrix{Columns: make([]string, n), Values: make([][]float64, n), Methods: make([][]string, n)}
	for i, c := range cols {
		m.Columns[i] = c.name
		m.Values[i] = make([]float64, n)
		m.Methods[i] = make([]string, n)
		m.Values[i][i] = 1
		m.Methods[i][i] = MethodSelf
	}
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			for j := i + 1; j < n; j++ {
				v, method := association(cols[i], cols[j])
				// Row i owns cells (i, j>i) and their mirrors (j, i); no two
				// goroutines write the same cell.
				m.Values[i][j], m.Values[j][i] = v, v
				m.Methods[i][j], m.Methods[j][i] = method, method
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return CorrelationMatrix{}, err
	}
	return m, nil
}

func association(a, b corrColumn) (float64, string) {
	switch {
	case a.kind != kindCategorical && b.kind != kindCategorical:
		return pearson(a.col, b.col), MethodPearson
	case a.kind == kindNumeric && b.kind == kindCategorical:
		return correlationRatio(a.col, b.col), MethodCorrelationRatio
	case a.kind == kindCategorical && b.kind == kindNumeric:
		return correlationRatio(b.col, a.col), MethodCorrelationRatio
	default:
		return cramersV(a.col, b.col), MethodCramersV
	}
}

// pearson correlates the rows where both columns are present. Zero variance
// on either side yields 0.
func pearson(a, b *dataset.Column) float64 {
	var xs, ys []float64
	for i := 0; i < a.Len(); i++ {
		if a.IsMissing(i) || b.IsMissing(i) {
			continue
		}
		xs = append(xs, a.Float(i))
		ys = append(ys, b.Float(i))
	}
	if len(xs) < 2 || constant(xs) || constant(ys) {
		return 0
	}
	r := finite(stat.Correlation(xs, ys, nil))
	return math.Max(-1, math.Min(1, r))
}

func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

// correlationRatio computes eta: the share of the numeric column's spread
// explained by the categorical grouping.
func correlationRatio(num, cat *dataset.Column) float64 {
	sums := make(map[string]float64)
	counts := make(map[string]float64)
	var all []float64
	for i := 0; i < num.Len(); i++ {
		if num.IsMissing(i) || cat.IsMissing(i) {
			continue
		}
		v := num.Float(i)
		k := cat.Key(i)
		sums[k] += v
		counts[k]++
		all = append(all, v)
	}
	if len(all) < 2 {
		return 0
	}
	mean := stat.Mean(all, nil)
	var ssTotal float64
	for _, v := range all {
		ssTotal += (v - mean) * (v - mean)
	}
	if ssTotal == 0 {
		return 0
	}
	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var ssBetween float64
	for _, k := range keys {
		gm := sums[k] / counts[k]
		ssBetween += counts[k] * (gm - mean) * (gm - mean)
	}
	return math.Min(1, finite(math.Sqrt(ssBetween/ssTotal)))
}

// cramersV measures association between two categorical columns.
func cramersV(a, b *dataset.Column) float64 {
	rowIdx := map[string]int{}
	colIdx := map[string]int{}
	type cell struct{ r, c int }
	table := map[cell]float64{}
	n := 0.0
	for i := 0; i < a.Len(); i++ {
		if a.IsMissing(i) || b.IsMissing(i) {
			continue
		}
		ka, kb := a.Key(i), b.Key(i)
		r, ok := rowIdx[ka]
		if !ok {
			r = len(rowIdx)
			rowIdx[ka] = r
		}
		c, ok := colIdx[kb]
		if !ok {
			c = len(colIdx)
			colIdx[kb] = c
		}
		table[cell{r, c}]++
		n++
	}
	k := min(len(rowIdx), len(colIdx))
	if k < 2 || n == 0 {
		return 0
	}
	rowTot := make([]float64, len(rowIdx))
	colTot := make([]float64, len(colIdx))
	for cl, v := range table {
		rowTot[cl.r] += v
		colTot[cl.c] += v
	}
	var chi2 float64
	for r := range rowTot {
		for c := range colTot {
			expected := rowTot[r] * colTot[c] / n
			d := table[cell{r, c}] - expected
			chi2 += d * d / expected
		}
	}
	return math.Min(1, finite(math.Sqrt(chi2/(n*float64(k-1)))))
}
