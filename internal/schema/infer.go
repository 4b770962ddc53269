// Package schema assigns a semantic role to every column of a dataset
// without trusting the declared storage type alone.
package schema

import (
	"log/slog"
	"sort"

	"github.com/KaramelBytes/quickeda-cli/internal/choice"
	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/errs"
	"github.com/KaramelBytes/quickeda-cli/internal/logging"
)

// Options controls role inference thresholds.
type Options struct {
	// Target names the supervised target column; empty means none.
	Target string
	// MaxCodeCardinality is the largest distinct count for which a numeric
	// column may be treated as categorical codes.
	MaxCodeCardinality int
	// CodeRatio is the distinct/present ratio below which low-cardinality
	// numeric columns become categorical.
	CodeRatio float64
	// IdentifierRatio is the distinct/present ratio above which a text
	// column is treated as an identifier.
	IdentifierRatio float64
	// Ignore lists columns to exclude from analysis and modeling.
	Ignore []string
	// Overrides forces roles for specific columns.
	Overrides map[string]Role
	Logger    *slog.Logger
}

// DefaultOptions returns the fixed inference thresholds.
func DefaultOptions() Options {
	return Options{
		MaxCodeCardinality: 10,
		CodeRatio:          0.05,
		IdentifierRatio:    0.9,
	}
}

// Assignment is the role of one column together with how it was decided.
type Assignment struct {
	Column   string              `json:"column" yaml:"column"`
	Role     choice.Choice[Role] `json:"role" yaml:"role"`
	Distinct int                 `json:"distinct" yaml:"distinct"`
}

// Schema is the result of role inference.
type Schema struct {
	Assignments []Assignment `json:"assignments" yaml:"assignments"`
	// Target is the target column name, empty when unsupervised.
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	// TargetBase is the role the target would have had as a plain column.
	TargetBase Role `json:"target_base" yaml:"target_base"`

	index map[string]int
}

// Role returns the role of a column, or Ignored if it is unknown.
func (s *Schema) Role(name string) Role {
	if s == nil {
		return Ignored
	}
	if i, ok := s.lookup(name); ok {
		return s.Assignments[i].Role.Value
	}
	return Ignored
}

// Roles returns a name → role mapping.
func (s *Schema) Roles() map[string]Role {
	out := make(map[string]Role, len(s.Assignments))
	for _, a := range s.Assignments {
		out[a.Column] = a.Role.Value
	}
	return out
}

// Columns returns, in dataset order, the columns holding any of the given roles.
func (s *Schema) Columns(roles ...Role) []string {
	var out []string
	for _, a := range s.Assignments {
		for _, r := range roles {
			if a.Role.Value == r {
				out = append(out, a.Column)
				break
			}
		}
	}
	return out
}

// lookup never writes, so a Schema is safe for concurrent readers. A
// Schema built outside Infer (decoded, or a literal) has no index and
// falls back to a scan.
func (s *Schema) lookup(name string) (int, bool) {
	if s.index != nil {
		i, ok := s.index[name]
		return i, ok
	}
	for i, a := range s.Assignments {
		if a.Column == name {
			return i, true
		}
	}
	return 0, false
}

func (s *Schema) buildIndex() {
	s.index = make(map[string]int, len(s.Assignments))
	for i, a := range s.Assignments {
		s.index[a.Column] = i
	}
}

// Infer assigns a role to every column. Each column is judged in isolation,
// so the result depends only on the column values and the thresholds.
func Infer(ds *dataset.Dataset, opt Options) (*Schema, error) {
	def := DefaultOptions()
	if opt.MaxCodeCardinality <= 0 {
		opt.MaxCodeCardinality = def.MaxCodeCardinality
	}
	if opt.CodeRatio <= 0 {
		opt.CodeRatio = def.CodeRatio
	}
	if opt.IdentifierRatio <= 0 {
		opt.IdentifierRatio = def.IdentifierRatio
	}
	log := logging.OrDiscard(opt.Logger)

	if opt.Target != "" && !ds.Has(opt.Target) {
		return nil, &errs.ConfigError{Field: "target", Value: opt.Target, Reason: "column not found in dataset"}
	}
	ignore := make(map[string]bool, len(opt.Ignore))
	for _, name := range opt.Ignore {
		if !ds.Has(name) {
			return nil, &errs.ConfigError{Field: "ignore_columns", Value: name, Reason: "column not found in dataset"}
		}
		if name == opt.Target {
			return nil, &errs.ConfigError{Field: "ignore_columns", Value: name, Reason: "cannot ignore the target column"}
		}
		ignore[name] = true
	}
	overrideNames := make([]string, 0, len(opt.Overrides))
	for name := range opt.Overrides {
		overrideNames = append(overrideNames, name)
	}
	sort.Strings(overrideNames)
	for _, name := range overrideNames {
		if !ds.Has(name) {
			return nil, &errs.ConfigError{Field: "overrides", Value: name, Reason: "column not found in dataset"}
		}
		if r := opt.Overrides[name]; r == Target {
			return nil, &errs.ConfigError{Field: "overrides", Value: name, Reason: "use the target option to choose the target column"}
		}
	}

	s := &Schema{Target: opt.Target, Assignments: make([]Assignment, 0, ds.NumColumns())}
	for i := 0; i < ds.NumColumns(); i++ {
		col := ds.At(i)
		distinct := col.Distinct()
		base := inferColumn(col, distinct, opt)
		decided := choice.Inferred(base)
		if r, ok := opt.Overrides[col.Name]; ok {
			decided = choice.Overridden(r)
		}
		if ignore[col.Name] {
			decided = choice.Overridden(Ignored)
		}
		if col.Name == opt.Target {
			s.TargetBase = decided.Value
			decided = choice.Choice[Role]{Value: Target, Origin: decided.Origin}
		}
		log.Debug("role assigned", "column", col.Name, "role", decided.Value, "origin", decided.Origin, "distinct", distinct)
		s.Assignments = append(s.Assignments, Assignment{Column: col.Name, Role: decided, Distinct: distinct})
	}
	s.buildIndex()
	return s, nil
}

func inferColumn(col *dataset.Column, distinct int, opt Options) Role {
	present := col.Present()
	if present == 0 {
		return Ignored
	}
	ratio := float64(distinct) / float64(present)
	switch col.Type {
	case dataset.Bool:
		return Boolean
	case dataset.Temporal:
		return Datetime
	case dataset.Numeric:
		if distinct <= opt.MaxCodeCardinality && ratio < opt.CodeRatio {
			return Categorical
		}
		return Numeric
	case dataset.Text:
		if ratio > opt.IdentifierRatio {
			return Identifier
		}
		return Categorical
	default:
		return Ignored
	}
}
