// Package version implements Blimp's package version scheme: an ordered
// tuple of unsigned 32-bit components parsed from a dot-separated decimal
// string, plus the constraint language used in dependency declarations.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blimp-pm/blimp/pkg/blimperr"
)

// Version is a package version: an ordered sequence of numeric components.
// Two versions with equal components over their common prefix compare equal
// regardless of trailing length ("1.0" == "1.0.0") — this is preserved
// verbatim from the source implementation (see DESIGN.md Open Questions).
type Version struct {
	components []uint32
}

// Parse parses a dot-separated decimal version string such as "1.2.3".
func Parse(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty version", blimperr.ErrInvalidVersion)
	}

	parts := strings.Split(s, ".")
	components := make([]uint32, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %s", blimperr.ErrInvalidVersion, s, err)
		}
		components[i] = uint32(n)
	}

	return Version{components: components}, nil
}

// MustParse parses s and panics on error. Intended for tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String renders the version as components joined by '.', with no padding.
func (v Version) String() string {
	parts := make([]string, len(v.components))
	for i, c := range v.components {
		parts[i] = strconv.FormatUint(uint64(c), 10)
	}
	return strings.Join(parts, ".")
}

// MarshalJSON renders the version as a JSON string.
func (v Version) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(v.String())), nil
}

// UnmarshalJSON parses the version from a JSON string.
func (v *Version) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("%w: %s", blimperr.ErrInvalidVersion, err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other. Components are compared pairwise over the common prefix; if the
// common prefix is all-equal, the versions compare equal even if one has
// extra trailing components.
func (v Version) Compare(other Version) int {
	n := len(v.components)
	if len(other.components) < n {
		n = len(other.components)
	}
	for i := 0; i < n; i++ {
		switch {
		case v.components[i] < other.components[i]:
			return -1
		case v.components[i] > other.components[i]:
			return 1
		}
	}
	return 0
}

// Less reports whether v < other.
func (v Version) Less(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v == other under Compare's prefix rule.
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// IsZero reports whether v is the unparsed zero value.
func (v Version) IsZero() bool { return v.components == nil }
