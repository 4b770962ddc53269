// Package dataset holds the in-memory table consumed by the analysis core.
package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyName is returned when a column has a blank name.
var ErrEmptyName = errors.New("column name is empty")

// Dataset is an ordered set of equally long, uniquely named columns.
// It is read-only after New returns.
type Dataset struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// New validates the columns and takes a deep copy of them.
func New(cols ...*Column) (*Dataset, error) {
	ds := &Dataset{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil {
			return nil, fmt.Errorf("column %d is nil", i)
		}
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("column %d: %w", i, ErrEmptyName)
		}
		if _, dup := ds.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c.Name)
		}
		if c.payloadLen() != len(c.Valid) {
			return nil, fmt.Errorf("column %q: %d values but %d validity flags", c.Name, c.payloadLen(), len(c.Valid))
		}
		if i == 0 {
			ds.rows = c.Len()
		} else if c.Len() != ds.rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c.Name, c.Len(), ds.rows)
		}
		ds.index[c.Name] = i
		ds.cols = append(ds.cols, c.clone())
	}
	return ds, nil
}

// Rows returns the number of rows.
func (d *Dataset) Rows() int { return d.rows }

// NumColumns returns the number of columns.
func (d *Dataset) NumColumns() int { return len(d.cols) }

// Names returns column names in order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.cols))
	for i, c := range d.cols {
		out[i] = c.Name
	}
	return out
}

// At returns the i-th column. Callers must not modify it.
func (d *Dataset) At(i int) *Column { return d.cols[i] }

// Column looks a column up by name. Callers must not modify it.
func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.cols[i], true
}

// Has reports whether a column with the given name exists.
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}
