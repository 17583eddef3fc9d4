package version

import (
	"fmt"
	"strings"

	"github.com/blimp-pm/blimp/pkg/blimperr"
)

// ConstraintKind tags the variant of a VersionConstraint.
type ConstraintKind int

const (
	Any ConstraintKind = iota
	Equal
	LessOrEqual
	Less
	GreaterOrEqual
	Greater
)

// Constraint is a version constraint: either Any, or an operator paired with
// a Version. The zero value is the Any constraint; use ParseConstraint or
// the constructor functions below for the others.
type Constraint struct {
	kind    ConstraintKind
	version Version
}

// AnyConstraint matches every version.
func AnyConstraint() Constraint { return Constraint{kind: Any} }

// EqualTo requires an exact version match (under Version.Compare's prefix rule).
func EqualTo(v Version) Constraint { return Constraint{kind: Equal, version: v} }

// LessOrEqualTo requires version <= v.
func LessOrEqualTo(v Version) Constraint { return Constraint{kind: LessOrEqual, version: v} }

// LessThan requires version < v.
func LessThan(v Version) Constraint { return Constraint{kind: Less, version: v} }

// GreaterOrEqualTo requires version >= v.
func GreaterOrEqualTo(v Version) Constraint { return Constraint{kind: GreaterOrEqual, version: v} }

// GreaterThan requires version > v.
func GreaterThan(v Version) Constraint { return Constraint{kind: Greater, version: v} }

// ParseConstraint parses a constraint string. The leading token is matched in
// priority order: "*", then the two-char operators "<=" and ">=", then the
// one-char operators "<", ">", "=". A bare version string (no operator) is
// Equal. Operand whitespace is trimmed, so ">= 1.0" is accepted.
func ParseConstraint(s string) (Constraint, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "*":
		return AnyConstraint(), nil
	case strings.HasPrefix(s, "<="):
		v, err := Parse(strings.TrimSpace(s[2:]))
		if err != nil {
			return Constraint{}, wrapConstraintErr(s, err)
		}
		return LessOrEqualTo(v), nil
	case strings.HasPrefix(s, ">="):
		v, err := Parse(strings.TrimSpace(s[2:]))
		if err != nil {
			return Constraint{}, wrapConstraintErr(s, err)
		}
		return GreaterOrEqualTo(v), nil
	case strings.HasPrefix(s, "<"):
		v, err := Parse(strings.TrimSpace(s[1:]))
		if err != nil {
			return Constraint{}, wrapConstraintErr(s, err)
		}
		return LessThan(v), nil
	case strings.HasPrefix(s, ">"):
		v, err := Parse(strings.TrimSpace(s[1:]))
		if err != nil {
			return Constraint{}, wrapConstraintErr(s, err)
		}
		return GreaterThan(v), nil
	case strings.HasPrefix(s, "="):
		v, err := Parse(strings.TrimSpace(s[1:]))
		if err != nil {
			return Constraint{}, wrapConstraintErr(s, err)
		}
		return EqualTo(v), nil
	default:
		v, err := Parse(s)
		if err != nil {
			return Constraint{}, wrapConstraintErr(s, err)
		}
		return EqualTo(v), nil
	}
}

func wrapConstraintErr(s string, err error) error {
	return fmt.Errorf("%w: %q: %s", blimperr.ErrInvalidConstraint, s, err)
}

// Kind returns the constraint's variant tag.
func (c Constraint) Kind() ConstraintKind { return c.kind }

// Version returns the constraint's operand version. Meaningless for Any.
func (c Constraint) Version() Version { return c.version }

// IsValid reports whether v satisfies the constraint.
func (c Constraint) IsValid(v Version) bool {
	switch c.kind {
	case Any:
		return true
	case Equal:
		return v.Equal(c.version)
	case LessOrEqual:
		return v.Compare(c.version) <= 0
	case Less:
		return v.Compare(c.version) < 0
	case GreaterOrEqual:
		return v.Compare(c.version) >= 0
	case Greater:
		return v.Compare(c.version) > 0
	default:
		return false
	}
}

// String renders the constraint in its textual form.
func (c Constraint) String() string {
	switch c.kind {
	case Any:
		return "*"
	case Equal:
		return "=" + c.version.String()
	case LessOrEqual:
		return "<=" + c.version.String()
	case Less:
		return "<" + c.version.String()
	case GreaterOrEqual:
		return ">=" + c.version.String()
	case Greater:
		return ">" + c.version.String()
	default:
		return ""
	}
}

// MarshalJSON renders the constraint as its textual JSON string form.
func (c Constraint) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// UnmarshalJSON parses the constraint from a JSON string.
func (c *Constraint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := ParseConstraint(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
