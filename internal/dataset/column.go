package dataset

import (
	"math"
	"strconv"
	"time"
)

// StorageType is the declared physical type of a column.
type StorageType int

const (
	Numeric StorageType = iota
	Text
	Bool
	Temporal
)

func (s StorageType) String() string {
	switch s {
	case Numeric:
		return "numeric"
	case Text:
		return "text"
	case Bool:
		return "bool"
	case Temporal:
		return "temporal"
	default:
		return "unknown"
	}
}

// MarshalText renders the storage type by name.
func (s StorageType) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Column is a named, typed sequence of values with a validity mask.
// Only the slice matching Type is populated.
type Column struct {
	Name    string
	Type    StorageType
	Floats  []float64
	Strings []string
	Bools   []bool
	Times   []time.Time
	// Valid[i] is false when row i is missing.
	Valid []bool
}

// NewNumeric builds a numeric column. NaN values are treated as missing.
func NewNumeric(name string, vals []float64) *Column {
	c := &Column{Name: name, Type: Numeric, Floats: append([]float64(nil), vals...), Valid: make([]bool, len(vals))}
	for i, v := range vals {
		c.Valid[i] = !math.IsNaN(v)
	}
	return c
}

// NewText builds a text column. A nil valid mask means every value is present.
func NewText(name string, vals []string, valid []bool) *Column {
	return &Column{Name: name, Type: Text, Strings: append([]string(nil), vals...), Valid: maskOrAll(valid, len(vals))}
}

// NewBool builds a boolean column. A nil valid mask means every value is present.
func NewBool(name string, vals []bool, valid []bool) *Column {
	return &Column{Name: name, Type: Bool, Bools: append([]bool(nil), vals...), Valid: maskOrAll(valid, len(vals))}
}

// NewTemporal builds a temporal column. A nil valid mask means every value is present.
func NewTemporal(name string, vals []time.Time, valid []bool) *Column {
	return &Column{Name: name, Type: Temporal, Times: append([]time.Time(nil), vals...), Valid: maskOrAll(valid, len(vals))}
}

func maskOrAll(valid []bool, n int) []bool {
	out := make([]bool, n)
	if valid == nil {
		for i := range out {
			out[i] = true
		}
		return out
	}
	copy(out, valid)
	return out
}

// Len returns the number of rows in the column.
func (c *Column) Len() int { return len(c.Valid) }

// IsMissing reports whether row i holds no value.
func (c *Column) IsMissing(i int) bool { return !c.Valid[i] }

// Present counts non-missing rows.
func (c *Column) Present() int {
	n := 0
	for _, ok := range c.Valid {
		if ok {
			n++
		}
	}
	return n
}

// Float returns row i as a number: booleans map to 0/1 and timestamps to
// Unix seconds. Text and missing rows yield NaN.
func (c *Column) Float(i int) float64 {
	if !c.Valid[i] {
		return math.NaN()
	}
	switch c.Type {
	case Numeric:
		return c.Floats[i]
	case Bool:
		if c.Bools[i] {
			return 1
		}
		return 0
	case Temporal:
		return float64(c.Times[i].Unix())
	default:
		return math.NaN()
	}
}

// Key returns a canonical string for row i, used for distinct counting and
// category vocabularies. Missing rows yield "".
func (c *Column) Key(i int) string {
	if !c.Valid[i] {
		return ""
	}
	switch c.Type {
	case Numeric:
		return strconv.FormatFloat(c.Floats[i], 'g', -1, 64)
	case Text:
		return c.Strings[i]
	case Bool:
		return strconv.FormatBool(c.Bools[i])
	case Temporal:
		return c.Times[i].UTC().Format(time.RFC3339Nano)
	default:
		return ""
	}
}

// Distinct counts distinct non-missing values.
func (c *Column) Distinct() int {
	seen := make(map[string]struct{})
	for i := range c.Valid {
		if c.Valid[i] {
			seen[c.Key(i)] = struct{}{}
		}
	}
	return len(seen)
}

// NumbersPresent returns the numeric view of all non-missing rows.
func (c *Column) NumbersPresent() []float64 {
	out := make([]float64, 0, len(c.Valid))
	for i := range c.Valid {
		if c.Valid[i] {
			out = append(out, c.Float(i))
		}
	}
	return out
}

func (c *Column) clone() *Column {
	cp := &Column{Name: c.Name, Type: c.Type, Valid: append([]bool(nil), c.Valid...)}
	switch c.Type {
	case Numeric:
		cp.Floats = append([]float64(nil), c.Floats...)
	case Text:
		cp.Strings = append([]string(nil), c.Strings...)
	case Bool:
		cp.Bools = append([]bool(nil), c.Bools...)
	case Temporal:
		cp.Times = append([]time.Time(nil), c.Times...)
	}
	return cp
}

func (c *Column) payloadLen() int {
	switch c.Type {
	case Numeric:
		return len(c.Floats)
	case Text:
		return len(c.Strings)
	case Bool:
		return len(c.Bools)
	case Temporal:
		return len(c.Times)
	default:
		return -1
	}
}
