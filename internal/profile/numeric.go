package profile

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NumericStats summarizes the non-missing values of a numeric column.
type NumericStats struct {
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Std    float64 `json:"std" yaml:"std"`
	P05    float64 `json:"p05" yaml:"p05"`
	Q1     float64 `json:"q1" yaml:"q1"`
	Median float64 `json:"median" yaml:"median"`
	Q3     float64 `json:"q3" yaml:"q3"`
	P95    float64 `json:"p95" yaml:"p95"`
	IQR    float64 `json:"iqr" yaml:"iqr"`
	Skew   float64 `json:"skew" yaml:"skew"`
	Zeros  int     `json:"zeros" yaml:"zeros"`
}

func numericStats(vals []float64) *NumericStats {
	if len(vals) == 0 {
		return &NumericStats{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	s := &NumericStats{
		Min:    floats.Min(vals),
		Max:    floats.Max(vals),
		Mean:   stat.Mean(vals, nil),
		P05:    quantile(sorted, 0.05),
		Q1:     quantile(sorted, 0.25),
		Median: quantile(sorted, 0.5),
		Q3:     quantile(sorted, 0.75),
		P95:    quantile(sorted, 0.95),
	}
	s.IQR = s.Q3 - s.Q1
	if len(vals) > 1 {
		s.Std = stat.StdDev(vals, nil)
	}
	if s.Std > 0 && len(vals) > 2 {
		s.Skew = stat.Skew(vals, nil)
	}
	for _, v := range vals {
		if v == 0 {
			s.Zeros++
		}
	}
	s.Std = finite(s.Std)
	s.Skew = finite(s.Skew)
	return s
}

// quantile interpolates linearly between closest ranks of sorted values.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// OutlierMethod selects how outlying values are detected.
type OutlierMethod string

const (
	// OutlierIQR flags values outside [Q1 - k·IQR, Q3 + k·IQR].
	OutlierIQR OutlierMethod = "iqr"
	// OutlierZScore flags values with |x - mean| > k·std.
	OutlierZScore OutlierMethod = "zscore"
)

// DefaultMultiplier returns the conventional fence multiplier for the method.
func (m OutlierMethod) DefaultMultiplier() float64 {
	if m == OutlierZScore {
		return 3
	}
	return 1.5
}

// Valid reports whether the method is known.
func (m OutlierMethod) Valid() bool { return m == OutlierIQR || m == OutlierZScore }

// OutlierReport lists the rows of one numeric column flagged as outlying.
type OutlierReport struct {
	Column     string        `json:"column" yaml:"column"`
	Method     OutlierMethod `json:"method" yaml:"method"`
	Multiplier float64       `json:"multiplier" yaml:"multiplier"`
	Lower      float64       `json:"lower" yaml:"lower"`
	Upper      float64       `json:"upper" yaml:"upper"`
	Rows       []int         `json:"rows" yaml:"rows"`
}

// Count returns the number of flagged rows.
func (o OutlierReport) Count() int { return len(o.Rows) }

// detectOutliers flags rows outside the fences derived from st. vals and rows
// are aligned: rows[i] is the dataset row holding vals[i].
func detectOutliers(name string, vals []float64, rows []int, st *NumericStats, method OutlierMethod, k float64) OutlierReport {
	rep := OutlierReport{Column: name, Method: method, Multiplier: k, Rows: []int{}}
	switch method {
	case OutlierZScore:
		rep.Lower = st.Mean - k*st.Std
		rep.Upper = st.Mean + k*st.Std
		if st.Std == 0 {
			return rep
		}
	default:
		rep.Lower = st.Q1 - k*st.IQR
		rep.Upper = st.Q3 + k*st.IQR
		// A constant or near-constant column has no meaningful spread.
		if st.Std == 0 || st.IQR == 0 {
			return rep
		}
	}
	for i, v := range vals {
		if v < rep.Lower || v > rep.Upper {
			rep.Rows = append(rep.Rows, rows[i])
		}
	}
	return rep
}
