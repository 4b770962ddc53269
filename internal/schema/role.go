package schema

import "fmt"

// Role is the semantic category assigned to a column.
type Role int

const (
	Numeric Role = iota
	Categorical
	Boolean
	Datetime
	Identifier
	Target
	Ignored
)

var roleNames = [...]string{"numeric", "categorical", "boolean", "datetime", "identifier", "target", "ignored"}

func (r Role) String() string {
	if r < 0 || int(r) >= len(roleNames) {
		return "unknown"
	}
	return roleNames[r]
}

// MarshalText renders the role by name.
func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText parses a role name.
func (r *Role) UnmarshalText(b []byte) error {
	p, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = p
	return nil
}

// ParseRole converts a role name into a Role.
func ParseRole(s string) (Role, error) {
	for i, n := range roleNames {
		if n == s {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// Analyzable reports whether the role takes part in correlation analysis.
func (r Role) Analyzable() bool {
	return r == Numeric || r == Categorical || r == Boolean
}

// Modeled reports whether the role produces model features.
func (r Role) Modeled() bool {
	return r == Numeric || r == Categorical || r == Boolean || r == Datetime
}
