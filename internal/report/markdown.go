package report

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/quickeda-cli/internal/profile"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

// Markdown renders a compact report suitable for prompts or standalone docs.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if r.Source.Source != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", r.Source.Source))
	}
	if r.Source.Sheet != "" {
		b.WriteString(fmt.Sprintf("Sheet: %s\n", r.Source.Sheet))
	}
	b.WriteString(fmt.Sprintf("Run: %s (%s)\n", r.ID, r.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	a := r.Analysis
	if a == nil || a.Profile == nil {
		b.WriteString("\nNo analysis available.\n")
		return b.String()
	}
	p := a.Profile
	if r.Source.Processed > 0 && r.Source.Processed < r.Source.Rows {
		b.WriteString(fmt.Sprintf("Rows: ~%d (processed %d)\n", r.Source.Rows, r.Source.Processed))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", p.Rows))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n", len(p.Columns)))
	b.WriteString(fmt.Sprintf("Missing cells: %d of %d (%.1f%%)\n\n", p.Missing.MissingCells, p.Missing.TotalCells, p.Missing.Ratio*100))

	b.WriteString("[SCHEMA]\n")
	for _, asg := range a.Schema.Assignments {
		c, ok := p.Column(asg.Column)
		name := safeName(asg.Column)
		if u := r.Source.Units[asg.Column]; u != "" && !strings.HasSuffix(name, "("+u+")") {
			name = fmt.Sprintf("%s [%s]", name, u)
		}
		b.WriteString(fmt.Sprintf("- %s: %s", name, asg.Role.Value))
		if asg.Role.IsOverride() {
			b.WriteString(" (override)")
		}
		if !ok {
			b.WriteString("\n")
			continue
		}
		b.WriteString(fmt.Sprintf(" (non-null %d, missing %.1f%%, distinct %d)", c.Count-c.Missing, c.MissingRatio*100, c.Distinct))
		writeColumnDetail(&b, c)
		b.WriteString("\n")
	}

	if len(p.Missing.Columns) > 0 {
		b.WriteString("\n[MISSING VALUES]\n")
		for _, m := range p.Missing.Columns {
			b.WriteString(fmt.Sprintf("- %s: %d (%.1f%%), %s\n", safeName(m.Column), m.Missing, m.Ratio*100, m.Suggestion))
		}
	}

	if len(r.Figures.Outliers) > 0 {
		b.WriteString("\n[OUTLIERS]\n")
		for _, o := range r.Figures.Outliers {
			rep := p.Outliers[o.Column]
			b.WriteString(fmt.Sprintf("- %s: %d rows outside [%.4g, %.4g] (%s, k=%.2g)\n", safeName(o.Column), o.Count, o.Lower, o.Upper, rep.Method, rep.Multiplier))
		}
	}

	if len(p.Issues) > 0 {
		b.WriteString("\n[CATEGORICAL ISSUES]\n")
		for _, is := range p.Issues {
			b.WriteString(fmt.Sprintf("- %s: %s, %s", safeName(is.Column), is.Kind, safeVal(is.Detail)))
			if len(is.Values) > 0 {
				b.WriteString(" [")
				for i, v := range is.Values {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(safeVal(v))
				}
				b.WriteString("]")
			}
			b.WriteString("\n")
		}
	}

	if pairs := p.Correlation.TopPairs(10); len(pairs) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, pr := range pairs {
			b.WriteString(fmt.Sprintf("- %s ~ %s: %.3f (%s)\n", safeName(pr.A), safeName(pr.B), pr.Value, pr.Method))
		}
	}

	b.WriteString("\n[PROBLEM]\n")
	if a.Schema.Target == "" {
		b.WriteString("No target column; unsupervised analysis only.\n")
	} else {
		b.WriteString(fmt.Sprintf("Target: %s\n", safeName(a.Schema.Target)))
		b.WriteString(fmt.Sprintf("Type: %s (%s)\n", a.Problem.Value, a.Problem.Origin))
		if r.Figures.Target != nil && len(r.Figures.Target.Values) > 0 {
			b.WriteString("Class balance: ")
			writeValueCounts(&b, r.Figures.Target.Values)
			b.WriteString("\n")
		}
	}

	if tr := r.Training; tr != nil && tr.Leaderboard != nil {
		lb := tr.Leaderboard
		b.WriteString("\n[LEADERBOARD]\n")
		if tr.TrainRows > 0 || tr.EvalRows > 0 {
			b.WriteString(fmt.Sprintf("Split: %d train / %d eval", tr.TrainRows, tr.EvalRows))
			if tr.Dropped > 0 {
				b.WriteString(fmt.Sprintf(" (%d rows dropped for missing target)", tr.Dropped))
			}
			b.WriteString("\n")
		}
		if lb.NoBaseline {
			b.WriteString(fmt.Sprintf("No baseline: %s\n", safeVal(lb.Reason)))
		} else {
			dir := "lower is better"
			if lb.HigherIsBetter {
				dir = "higher is better"
			}
			b.WriteString(fmt.Sprintf("Metric: %s (%s)\n\n", lb.Metric, dir))
			b.WriteString("| Rank | Model | Score |\n| --- | --- | --- |\n")
			for i, e := range lb.Entries {
				b.WriteString(fmt.Sprintf("| %d | %s | %.4f |\n", i+1, e.Model, e.Value))
			}
		}
		for _, f := range lb.Failures {
			b.WriteString(fmt.Sprintf("- %s failed: %s\n", f.Model, safeVal(f.Reason)))
		}
		if len(r.Figures.Importance) > 0 {
			b.WriteString(fmt.Sprintf("\n[TOP FEATURES] (%s)\n", r.Figures.ImportanceOf))
			for i, fi := range r.Figures.Importance {
				b.WriteString(fmt.Sprintf("%d. %s: %.4f\n", i+1, safeName(fi.Feature), fi.Importance))
			}
		}
	}

	if len(r.Source.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range r.Source.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func writeColumnDetail(b *strings.Builder, c profile.ColumnProfile) {
	switch {
	case c.Numeric != nil && c.Role != schema.Categorical:
		n := c.Numeric
		b.WriteString(fmt.Sprintf(": min %.4g, max %.4g, mean %.4g, std %.4g, median %.4g", n.Min, n.Max, n.Mean, n.Std, n.Median))
	case c.Categorical != nil:
		if len(c.Categorical.TopValues) > 0 {
			b.WriteString(": top ")
			writeValueCounts(b, c.Categorical.TopValues)
			if c.Categorical.Levels > len(c.Categorical.TopValues) {
				b.WriteString(fmt.Sprintf("; levels=%d", c.Categorical.Levels))
			}
		}
	case c.Datetime != nil:
		d := c.Datetime
		b.WriteString(fmt.Sprintf(": %s to %s (%.1f days)", d.Min.Format("2006-01-02"), d.Max.Format("2006-01-02"), d.SpanDays))
	}
}

func writeValueCounts(b *strings.Builder, vals []profile.ValueCount) {
	for i, kv := range vals {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
	}
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }
