// Package version parses version literals and evaluates version-range
// predicates used throughout the installer's dependency algebra.
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	semver "github.com/Masterminds/semver/v3"
)

// ErrIllegalRange is returned by Merge when two ranges have no version in common.
var ErrIllegalRange = errors.New("version: illegal range")

// Version is a parsed numeric or dotted-decimal version literal, e.g. "1",
// "1.2", "5.038000". Comparison delegates to github.com/Masterminds/semver/v3
// once the literal has been normalized to at most three dot-separated
// components; the comma-clause range algebra below is spec-specific and not
// something that library exposes, so it is hand-written.
type Version struct {
	raw string
	sv  *semver.Version
}

// Parse parses a version literal. Accepts bare integers ("5") and
// dotted-decimal forms ("1.2", "5.38.0"). Leading/trailing whitespace is
// trimmed. Returns an error for anything that isn't numeric components
// separated by dots.
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, fmt.Errorf("version: empty literal")
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) > 3 {
		return Version{}, fmt.Errorf("version: %q has more than 3 dotted components", s)
	}

	nums := make([]string, 3)
	for i := range nums {
		nums[i] = "0"
	}

	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("version: invalid literal %q: %w", s, err)
		}

		nums[i] = strconv.FormatUint(n, 10)
	}

	sv, err := semver.NewVersion(strings.Join(nums, "."))
	if err != nil {
		return Version{}, fmt.Errorf("version: %q: %w", s, err)
	}

	return Version{raw: trimmed, sv: sv}, nil
}

// MustParse parses s and panics on error. Intended for literals known at
// compile time (tests, constants), not for untrusted input.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return v
}

// String returns the original literal as given to Parse.
func (v Version) String() string {
	return v.raw
}

// IsZero reports whether v is the zero Version (never parsed).
func (v Version) IsZero() bool {
	return v.sv == nil
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other. The zero Version (never parsed, e.g. an unset runtime version or a
// Provide with no declared version) sorts below every parsed Version, and
// equal to another zero Version; this keeps Compare total instead of
// panicking on a nil semver.Version.
func (v Version) Compare(other Version) int {
	if v.sv == nil || other.sv == nil {
		switch {
		case v.sv == nil && other.sv == nil:
			return 0
		case v.sv == nil:
			return -1
		default:
			return 1
		}
	}

	return v.sv.Compare(other.sv)
}

// Equal reports whether v and other compare equal.
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// LessThan reports whether v sorts before other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// GreaterThan reports whether v sorts after other.
func (v Version) GreaterThan(other Version) bool {
	return v.Compare(other) > 0
}

// Satisfies evaluates r against v.
func (v Version) Satisfies(r Range) bool {
	return r.Matches(v)
}
