// Package problem decides whether a dataset poses a classification or a
// regression problem.
package problem

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/KaramelBytes/quickeda-cli/internal/choice"
	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/errs"
	"github.com/KaramelBytes/quickeda-cli/internal/logging"
	"github.com/KaramelBytes/quickeda-cli/internal/schema"
)

// Type is the supervised task implied by the target column.
type Type int

const (
	None Type = iota
	Classification
	Regression
)

func (t Type) String() string {
	switch t {
	case Classification:
		return "classification"
	case Regression:
		return "regression"
	default:
		return "none"
	}
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Parse accepts "classification", "regression" or "none" (case-insensitive).
// The empty string parses as None.
func Parse(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "classification":
		return Classification, nil
	case "regression":
		return Regression, nil
	case "", "none":
		return None, nil
	}
	return None, fmt.Errorf("unknown problem type %q", s)
}

// Options tunes the resolver.
type Options struct {
	// MaxClassCardinality is the largest number of distinct integral values a
	// numeric target may have and still be treated as class labels.
	MaxClassCardinality int
	Logger              *slog.Logger
}

// DefaultOptions returns the resolver defaults.
func DefaultOptions() Options { return Options{MaxClassCardinality: 20} }

// Resolve decides the problem type for target. An empty target yields None.
// A non-nil override wins over inference but is still validated against
// the data.
func Resolve(ds *dataset.Dataset, s *schema.Schema, target string, override *Type, opt Options) (choice.Choice[Type], error) {
	log := logging.OrDiscard(opt.Logger)
	if opt.MaxClassCardinality <= 0 {
		opt.MaxClassCardinality = DefaultOptions().MaxClassCardinality
	}
	if target == "" {
		if override != nil && *override != None {
			return choice.Choice[Type]{}, errs.Config("problem_type", override.String(), "requires a target column")
		}
		return choice.Inferred(None), nil
	}
	col, ok := ds.Column(target)
	if !ok {
		return choice.Choice[Type]{}, errs.Config("target", target, "column not found")
	}
	present := col.Present()
	if present == 0 {
		return choice.Choice[Type]{}, errs.Data(target, "target has no non-missing values")
	}
	base := s.TargetBase
	if s.Target != target {
		base = s.Role(target)
	}
	distinct := col.Distinct()

	var res choice.Choice[Type]
	if override != nil && *override != None {
		res = choice.Overridden(*override)
	} else {
		t, err := infer(col, base, distinct, opt)
		if err != nil {
			return choice.Choice[Type]{}, err
		}
		res = choice.Inferred(t)
	}

	switch res.Value {
	case Classification:
		if distinct < 2 {
			return choice.Choice[Type]{}, errs.Data(target, "classification needs at least 2 distinct values, found %d", distinct)
		}
	case Regression:
		if col.Type != dataset.Numeric && col.Type != dataset.Bool {
			return choice.Choice[Type]{}, errs.Data(target, "regression needs a numeric target, column holds %s", col.Type)
		}
		if distinct < 2 {
			return choice.Choice[Type]{}, errs.Data(target, "regression target is constant")
		}
	}
	log.Debug("problem type resolved", "target", target, "type", res.Value.String(), "origin", res.Origin.String())
	return res, nil
}

func infer(col *dataset.Column, base schema.Role, distinct int, opt Options) (Type, error) {
	switch base {
	case schema.Boolean, schema.Categorical:
		return Classification, nil
	case schema.Numeric:
		if distinct <= opt.MaxClassCardinality && integral(col) {
			return Classification, nil
		}
		return Regression, nil
	}
	return None, errs.Data(col.Name, "cannot infer a problem type for a %s target; set problem_type explicitly", base)
}

// integral reports whether every present value is a whole number.
func integral(col *dataset.Column) bool {
	for _, v := range col.NumbersPresent() {
		if v != math.Trunc(v) {
			return false
		}
	}
	return true
}
