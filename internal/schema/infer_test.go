package schema

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/KaramelBytes/quickeda-cli/internal/choice"
	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/errs"
)

func fixture(t *testing.T) *dataset.Dataset {
	t.Helper()
	n := 100
	codes := make([]float64, n)
	measure := make([]float64, n)
	ids := make([]string, n)
	colors := make([]string, n)
	flags := make([]bool, n)
	when := make([]time.Time, n)
	empty := make([]float64, n)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	palette := []string{"red", "green", "blue"}
	for i := 0; i < n; i++ {
		codes[i] = float64(i % 3)
		measure[i] = float64(i) * 1.25
		ids[i] = fmt.Sprintf("row-%03d", i)
		colors[i] = palette[i%len(palette)]
		flags[i] = i%2 == 0
		when[i] = base.Add(time.Duration(i) * time.Hour)
		empty[i] = math.NaN()
	}
	ds, err := dataset.New(
		dataset.NewNumeric("code", codes),
		dataset.NewNumeric("measure", measure),
		dataset.NewText("id", ids, nil),
		dataset.NewText("color", colors, nil),
		dataset.NewBool("flag", flags, nil),
		dataset.NewTemporal("when", when, nil),
		dataset.NewNumeric("empty", empty),
		dataset.NewNumeric("label", codes),
	)
	if err != nil {
		t.Fatalf("dataset: %v", err)
	}
	return ds
}

func TestInferRoles(t *testing.T) {
	ds := fixture(t)
	opt := DefaultOptions()
	opt.Target = "label"
	s, err := Infer(ds, opt)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	want := map[string]Role{
		"code":    Categorical,
		"measure": Numeric,
		"id":      Identifier,
		"color":   Categorical,
		"flag":    Boolean,
		"when":    Datetime,
		"empty":   Ignored,
		"label":   Target,
	}
	got := s.Roles()
	for name, r := range want {
		if got[name] != r {
			t.Errorf("role(%s) = %v, want %v", name, got[name], r)
		}
	}
	if s.TargetBase != Categorical {
		t.Fatalf("target base = %v, want categorical", s.TargetBase)
	}
	if s.Role("missing-column") != Ignored {
		t.Fatalf("unknown column should be ignored")
	}
	if cols := s.Columns(Numeric, Boolean); len(cols) != 2 || cols[0] != "measure" || cols[1] != "flag" {
		t.Fatalf("columns = %v", cols)
	}
}

func TestInferIsDeterministic(t *testing.T) {
	ds := fixture(t)
	a, err := Infer(ds, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Infer(ds, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	for i := range a.Assignments {
		if a.Assignments[i].Role != b.Assignments[i].Role {
			t.Fatalf("assignment %d differs: %v vs %v", i, a.Assignments[i], b.Assignments[i])
		}
	}
}

func TestInferOverridesAndIgnore(t *testing.T) {
	ds := fixture(t)
	opt := DefaultOptions()
	opt.Overrides = map[string]Role{"code": Numeric}
	opt.Ignore = []string{"color"}
	s, err := Infer(ds, opt)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if s.Role("code") != Numeric || !s.Assignments[0].Role.IsOverride() {
		t.Fatalf("override not applied: %+v", s.Assignments[0])
	}
	if s.Role("color") != Ignored {
		t.Fatalf("ignored column has role %v", s.Role("color"))
	}
}

func TestInferUnknownTargetIsConfigError(t *testing.T) {
	ds := fixture(t)
	opt := DefaultOptions()
	opt.Target = "nope"
	_, err := Infer(ds, opt)
	if !errs.IsConfig(err) {
		t.Fatalf("expected config error, got %v", err)
	}
	opt.Target = ""
	opt.Ignore = []string{"ghost"}
	if _, err := Infer(ds, opt); !errs.IsConfig(err) {
		t.Fatalf("expected config error for ignore list, got %v", err)
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range []Role{Numeric, Categorical, Boolean, Datetime, Identifier, Target, Ignored} {
		got, err := ParseRole(r.String())
		if err != nil || got != r {
			t.Errorf("round trip %v: got %v err %v", r, got, err)
		}
	}
	if _, err := ParseRole("blob"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestRoleLookupWithoutIndex(t *testing.T) {
	s := &Schema{Assignments: []Assignment{
		{Column: "a", Role: choice.Inferred(Numeric)},
		{Column: "b", Role: choice.Overridden(Categorical)},
	}}
	if s.Role("b") != Categorical || s.Role("a") != Numeric {
		t.Fatalf("lookup on a literal schema failed: %v", s.Roles())
	}
	if s.Role("missing") != Ignored {
		t.Fatalf("unknown column should be ignored")
	}
}
