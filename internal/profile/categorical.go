package profile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
)

// ValueCount is one category level with its frequency.
type ValueCount struct {
	Value string  `json:"value" yaml:"value"`
	Count int     `json:"count" yaml:"count"`
	Ratio float64 `json:"ratio" yaml:"ratio"`
}

// CategoricalStats summarizes the levels of a categorical-like column.
type CategoricalStats struct {
	Levels    int          `json:"levels" yaml:"levels"`
	TopValues []ValueCount `json:"top_values" yaml:"top_values"`
}

// DatetimeStats summarizes a temporal column.
type DatetimeStats struct {
	Min      time.Time     `json:"min" yaml:"min"`
	Max      time.Time     `json:"max" yaml:"max"`
	Span     time.Duration `json:"span" yaml:"span"`
	SpanDays float64       `json:"span_days" yaml:"span_days"`
}

// IssueKind names a categorical anomaly.
type IssueKind string

const (
	IssueRareLevels      IssueKind = "rare_levels"
	IssueHighCardinality IssueKind = "high_cardinality"
	IssueDominantLevel   IssueKind = "dominant_level"
	IssueSingleLevel     IssueKind = "single_level"
	IssueVariants        IssueKind = "inconsistent_variants"
)

// CategoricalIssue describes a data-quality problem in a categorical column.
type CategoricalIssue struct {
	Column string    `json:"column" yaml:"column"`
	Kind   IssueKind `json:"kind" yaml:"kind"`
	Detail string    `json:"detail" yaml:"detail"`
	Values []string  `json:"values,omitempty" yaml:"values,omitempty"`
}

// levelCounts returns the frequency of every non-missing key, sorted by
// count descending then value ascending.
func levelCounts(col *dataset.Column) ([]ValueCount, int) {
	counts := make(map[string]int)
	present := 0
	for i := 0; i < col.Len(); i++ {
		if col.IsMissing(i) {
			continue
		}
		counts[col.Key(i)]++
		present++
	}
	out := make([]ValueCount, 0, len(counts))
	for k, v := range counts {
		vc := ValueCount{Value: k, Count: v}
		if present > 0 {
			vc.Ratio = float64(v) / float64(present)
		}
		out = append(out, vc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	return out, present
}

func categoricalStats(levels []ValueCount, topK int) *CategoricalStats {
	top := levels
	if topK > 0 && len(top) > topK {
		top = top[:topK]
	}
	return &CategoricalStats{Levels: len(levels), TopValues: append([]ValueCount(nil), top...)}
}

func datetimeStats(col *dataset.Column) *DatetimeStats {
	var st DatetimeStats
	first := true
	for i := 0; i < col.Len(); i++ {
		if col.IsMissing(i) {
			continue
		}
		t := col.Times[i]
		if first || t.Before(st.Min) {
			st.Min = t
		}
		if first || t.After(st.Max) {
			st.Max = t
		}
		first = false
	}
	if !first {
		st.Span = st.Max.Sub(st.Min)
		st.SpanDays = st.Span.Hours() / 24
	}
	return &st
}

// findIssues inspects level frequencies for common categorical anomalies.
// Variant detection only applies to free text.
func findIssues(name string, levels []ValueCount, present int, text bool, opt Options) []CategoricalIssue {
	var out []CategoricalIssue
	if present == 0 {
		return nil
	}
	if len(levels) == 1 {
		out = append(out, CategoricalIssue{Column: name, Kind: IssueSingleLevel,
			Detail: fmt.Sprintf("only one level (%q) is present", levels[0].Value), Values: []string{levels[0].Value}})
		return out
	}
	if len(levels) > opt.HighCardinality {
		out = append(out, CategoricalIssue{Column: name, Kind: IssueHighCardinality,
			Detail: fmt.Sprintf("%d distinct levels (threshold %d)", len(levels), opt.HighCardinality)})
	}
	if levels[0].Ratio > opt.DominantRatio {
		out = append(out, CategoricalIssue{Column: name, Kind: IssueDominantLevel,
			Detail: fmt.Sprintf("level %q covers %.1f%% of rows", levels[0].Value, levels[0].Ratio*100), Values: []string{levels[0].Value}})
	}
	var rare []string
	for _, l := range levels {
		if l.Ratio < opt.RareLevelRatio {
			rare = append(rare, l.Value)
		}
	}
	if len(rare) > 0 {
		sort.Strings(rare)
		detail := fmt.Sprintf("%d levels below %.1f%% of rows", len(rare), opt.RareLevelRatio*100)
		if len(rare) > opt.TopK {
			rare = rare[:opt.TopK]
		}
		out = append(out, CategoricalIssue{Column: name, Kind: IssueRareLevels, Detail: detail, Values: rare})
	}
	if text {
		out = append(out, variantIssues(name, levels)...)
	}
	return out
}

// variantIssues groups levels that only differ in case, surrounding or
// repeated whitespace, or Unicode compatibility forms.
func variantIssues(name string, levels []ValueCount) []CategoricalIssue {
	fold := cases.Fold()
	groups := make(map[string][]string)
	for _, l := range levels {
		key := fold.String(norm.NFKC.String(strings.Join(strings.Fields(l.Value), " ")))
		groups[key] = append(groups[key], l.Value)
	}
	keys := make([]string, 0, len(groups))
	for k, vals := range groups {
		if len(vals) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := make([]CategoricalIssue, 0, len(keys))
	for _, k := range keys {
		vals := groups[k]
		sort.Strings(vals)
		out = append(out, CategoricalIssue{Column: name, Kind: IssueVariants,
			Detail: fmt.Sprintf("%d spellings of %q", len(vals), k), Values: vals})
	}
	return out
}
