// Package choice records whether a value was inferred from the data or
// supplied explicitly by the user. Downstream code reads Value and never
// re-derives the inference.
package choice

import "fmt"

// Origin tells where a decided value came from.
type Origin int

const (
	FromInference Origin = iota
	FromOverride
)

func (o Origin) String() string {
	if o == FromOverride {
		return "overridden"
	}
	return "inferred"
}

// MarshalText renders the origin as "inferred" or "overridden".
func (o Origin) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

// Choice is a value tagged with its Origin.
type Choice[T any] struct {
	Value  T      `json:"value" yaml:"value"`
	Origin Origin `json:"origin" yaml:"origin"`
}

// Inferred wraps a value derived from the data.
func Inferred[T any](v T) Choice[T] { return Choice[T]{Value: v, Origin: FromInference} }

// Overridden wraps a value the user asked for explicitly.
func Overridden[T any](v T) Choice[T] { return Choice[T]{Value: v, Origin: FromOverride} }

// IsOverride reports whether the value was explicitly requested.
func (c Choice[T]) IsOverride() bool { return c.Origin == FromOverride }

func (c Choice[T]) String() string { return fmt.Sprintf("%v (%s)", c.Value, c.Origin) }
