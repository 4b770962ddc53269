// Package loader reads delimited text and spreadsheet files into a
// dataset.Dataset, inferring a storage type for every column.
package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/quickeda-cli/internal/dataset"
	"github.com/KaramelBytes/quickeda-cli/internal/logging"
)

// Options controls parsing.
type Options struct {
	// MaxRows limits data rows kept; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, sniffs among ',', ';', '\t', '|'.
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// Sheet selects an XLSX sheet by name; SheetIndex (1-based) is used when
	// Sheet is empty.
	Sheet      string
	SheetIndex int
	// MissingMarkers are compared case-insensitively after trimming. Empty
	// cells are always missing.
	MissingMarkers []string
	// UnitNormalize converts values of unit-annotated headers using
	// UnitTargets, e.g. "Conc (g/L)" becomes "Conc (mg/L)".
	UnitNormalize bool
	UnitTargets   map[string]string
	Logger        *slog.Logger
}

// DefaultOptions returns reasonable defaults for tabular input.
func DefaultOptions() Options {
	return Options{
		MissingMarkers: []string{"NA", "N/A", "NaN", "null", "none"},
		UnitTargets: map[string]string{
			"g/L":  "mg/L",
			"ug/L": "mg/L",
			"°F":   "°C",
		},
	}
}

// Table is the raw cell grid produced by a Reader.
type Table struct {
	Header  []string
	Records [][]string
	// Total counts data rows seen, including those beyond MaxRows.
	Total int
	Sheet string
}

// Reader reads one file format.
type Reader interface {
	CanRead(path string) bool
	Read(path string, opt Options) (*Table, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

func init() {
	Register(csvReader{})
	Register(xlsxReader{})
}

// ErrUnsupported indicates a file format no reader accepts.
var ErrUnsupported = errors.New("unsupported data format")

// Meta describes where a dataset came from.
type Meta struct {
	Source    string            `json:"source" yaml:"source"`
	Sheet     string            `json:"sheet,omitempty" yaml:"sheet,omitempty"`
	Rows      int               `json:"rows" yaml:"rows"`
	Processed int               `json:"processed" yaml:"processed"`
	Units     map[string]string `json:"units,omitempty" yaml:"units,omitempty"`
	Warnings  []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Load selects a reader by file extension and builds a dataset.
func Load(path string, opt Options) (*dataset.Dataset, Meta, error) {
	for _, r := range registry {
		if !r.CanRead(path) {
			continue
		}
		tab, err := r.Read(path, opt)
		if err != nil {
			return nil, Meta{}, err
		}
		ds, meta, err := Build(tab, opt)
		if err != nil {
			return nil, Meta{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		meta.Source = filepath.Base(path)
		return ds, meta, nil
	}
	return nil, Meta{}, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
}

// Build converts a raw table into typed columns.
func Build(tab *Table, opt Options) (*dataset.Dataset, Meta, error) {
	log := logging.OrDiscard(opt.Logger)
	meta := Meta{Sheet: tab.Sheet, Rows: tab.Total, Processed: len(tab.Records), Units: map[string]string{}}
	if meta.Rows < meta.Processed {
		meta.Rows = meta.Processed
	}
	if meta.Processed < meta.Rows {
		meta.Warnings = append(meta.Warnings, fmt.Sprintf("processed only %d/%d rows due to MaxRows", meta.Processed, meta.Rows))
	}
	if len(tab.Header) == 0 {
		return nil, meta, errors.New("no header row")
	}
	missing := make(map[string]bool, len(opt.MissingMarkers))
	for _, m := range opt.MissingMarkers {
		missing[strings.ToLower(strings.TrimSpace(m))] = true
	}

	names := uniqueNames(tab.Header)
	cols := make([]*dataset.Column, len(names))
	for j, raw := range names {
		cells := make([]string, len(tab.Records))
		valid := make([]bool, len(tab.Records))
		for i, rec := range tab.Records {
			if j < len(rec) {
				cells[i] = strings.TrimSpace(rec[j])
			}
			valid[i] = cells[i] != "" && !missing[strings.ToLower(cells[i])]
		}
		col, unit := buildColumn(raw, cells, valid, opt)
		if unit != "" {
			meta.Units[col.Name] = unit
		}
		log.Debug("column loaded", "column", col.Name, "storage", col.Type.String(), "present", col.Present())
		cols[j] = col
	}
	ds, err := dataset.New(cols...)
	if err != nil {
		return nil, meta, err
	}
	return ds, meta, nil
}

// uniqueNames fills blank headers and suffixes duplicates.
func uniqueNames(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		out[i] = name
	}
	return out
}

// buildColumn tries bool, numeric, then temporal parsing over the present
// cells and falls back to text.
func buildColumn(name string, cells []string, valid []bool, opt Options) (*dataset.Column, string) {
	present := 0
	for _, ok := range valid {
		if ok {
			present++
		}
	}
	if present == 0 {
		nums := make([]float64, len(cells))
		for i := range nums {
			nums[i] = math.NaN()
		}
		return dataset.NewNumeric(name, nums), ""
	}

	if bools, ok := parseAll(cells, valid, parseBool); ok {
		return dataset.NewBool(name, bools, valid), ""
	}

	clean, unit := splitUnits(name)
	nums := make([]float64, len(cells))
	numeric := true
	for i, s := range cells {
		if !valid[i] {
			nums[i] = math.NaN()
			continue
		}
		if strings.Contains(s, "%") && unit == "" {
			unit = "%"
		}
		x, ok := parseNumeric(s, opt)
		if !ok {
			numeric = false
			break
		}
		nums[i] = x
	}
	if numeric {
		if opt.UnitNormalize && unit != "" {
			if to, ok := opt.UnitTargets[unit]; ok {
				for i := range nums {
					if valid[i] {
						nums[i], _ = normalizeUnit(nums[i], unit, to)
					}
				}
				unit = to
				name = fmt.Sprintf("%s (%s)", clean, to)
			}
		}
		return dataset.NewNumeric(name, nums), unit
	}

	if times, ok := parseAll(cells, valid, parseTimeMaybe); ok {
		return dataset.NewTemporal(name, times, valid), ""
	}
	return dataset.NewText(name, cells, valid), ""
}

func parseAll[T any](cells []string, valid []bool, parse func(string) (T, bool)) ([]T, bool) {
	out := make([]T, len(cells))
	for i, s := range cells {
		if !valid[i] {
			continue
		}
		v, ok := parse(s)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}
