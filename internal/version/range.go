package version

import (
	"fmt"
	"sort"
	"strings"
)

// bound is one side of an interval: a value plus whether it is inclusive.
type bound struct {
	v         Version
	inclusive bool
}

// Range is a parsed version-range predicate: a comma-separated list of
// clauses (">= 1.2, < 2.0", "== 1.0", or a bare "1.0" meaning ">= 1.0").
// Internally it is normalized to an interval plus a set of equality/
// inequality pins, which is what makes Merge both well-defined and
// idempotent: two syntactically different but semantically equal ranges
// normalize to the same struct.
type Range struct {
	raw string

	hasLower bool
	lower    bound // inclusive lower bound (v <= x, or v < x if !inclusive... see below)

	hasUpper bool
	upper    bound

	hasEq bool
	eq    Version

	neq []Version // sorted, de-duplicated
}

// clauseOp is one parsed comma-separated clause.
type clauseOp struct {
	op  string
	ver Version
}

// ParseRange parses a comma-separated version-range string.
func ParseRange(s string) (Range, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Range{}, fmt.Errorf("version: empty range")
	}

	var clauses []clauseOp

	for _, part := range strings.Split(trimmed, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		c, err := parseClause(part)
		if err != nil {
			return Range{}, err
		}

		clauses = append(clauses, c)
	}

	if len(clauses) == 0 {
		return Range{}, fmt.Errorf("version: empty range")
	}

	r, err := buildRange(clauses)
	if err != nil {
		return Range{}, err
	}

	r.raw = trimmed

	return r, nil
}

var opPrefixes = []string{">=", "<=", "==", "!=", ">", "<"}

// parseClause parses a single clause like ">= 1.2" or "1.0" (bare means ">=").
func parseClause(s string) (clauseOp, error) {
	op := ">="

	rest := s

	for _, p := range opPrefixes {
		if strings.HasPrefix(s, p) {
			op = p
			rest = strings.TrimSpace(strings.TrimPrefix(s, p))

			break
		}
	}

	v, err := Parse(rest)
	if err != nil {
		return clauseOp{}, fmt.Errorf("version: invalid clause %q: %w", s, err)
	}

	return clauseOp{op: op, ver: v}, nil
}

// buildRange folds a clause list into the normalized interval representation,
// failing with ErrIllegalRange if the clauses admit no version.
func buildRange(clauses []clauseOp) (Range, error) {
	var r Range

	for _, c := range clauses {
		switch c.op {
		case ">=":
			r.tightenLower(bound{v: c.ver, inclusive: true})
		case ">":
			r.tightenLower(bound{v: c.ver, inclusive: false})
		case "<=":
			r.tightenUpper(bound{v: c.ver, inclusive: true})
		case "<":
			r.tightenUpper(bound{v: c.ver, inclusive: false})
		case "==":
			if r.hasEq && !r.eq.Equal(c.ver) {
				return Range{}, fmt.Errorf("%w: conflicting ==%s and ==%s", ErrIllegalRange, r.eq, c.ver)
			}

			r.hasEq = true
			r.eq = c.ver
		case "!=":
			r.neq = appendUnique(r.neq, c.ver)
		default:
			return Range{}, fmt.Errorf("version: unknown operator %q", c.op)
		}
	}

	if err := r.validate(); err != nil {
		return Range{}, err
	}

	return r, nil
}

func (r *Range) tightenLower(b bound) {
	if !r.hasLower {
		r.hasLower = true
		r.lower = b

		return
	}

	switch cmp := b.v.Compare(r.lower.v); {
	case cmp > 0:
		r.lower = b
	case cmp == 0 && !b.inclusive:
		r.lower = b
	}
}

func (r *Range) tightenUpper(b bound) {
	if !r.hasUpper {
		r.hasUpper = true
		r.upper = b

		return
	}

	switch cmp := b.v.Compare(r.upper.v); {
	case cmp < 0:
		r.upper = b
	case cmp == 0 && !b.inclusive:
		r.upper = b
	}
}

// validate checks that the accumulated bounds admit at least one version.
func (r *Range) validate() error {
	if r.hasLower && r.hasUpper {
		cmp := r.lower.v.Compare(r.upper.v)
		if cmp > 0 || (cmp == 0 && !(r.lower.inclusive && r.upper.inclusive)) {
			return fmt.Errorf("%w: lower bound %s exceeds upper bound %s", ErrIllegalRange, r.lower.v, r.upper.v)
		}
	}

	if r.hasEq {
		if r.hasLower && !withinLower(r.eq, r.lower) {
			return fmt.Errorf("%w: ==%s violates lower bound %s", ErrIllegalRange, r.eq, r.lower.v)
		}

		if r.hasUpper && !withinUpper(r.eq, r.upper) {
			return fmt.Errorf("%w: ==%s violates upper bound %s", ErrIllegalRange, r.eq, r.upper.v)
		}

		for _, n := range r.neq {
			if r.eq.Equal(n) {
				return fmt.Errorf("%w: ==%s conflicts with !=%s", ErrIllegalRange, r.eq, n)
			}
		}
	}

	return nil
}

func withinLower(v Version, b bound) bool {
	cmp := v.Compare(b.v)
	if b.inclusive {
		return cmp >= 0
	}

	return cmp > 0
}

func withinUpper(v Version, b bound) bool {
	cmp := v.Compare(b.v)
	if b.inclusive {
		return cmp <= 0
	}

	return cmp < 0
}

func appendUnique(vs []Version, v Version) []Version {
	for _, existing := range vs {
		if existing.Equal(v) {
			return vs
		}
	}

	vs = append(vs, v)
	sort.Slice(vs, func(i, j int) bool { return vs[i].LessThan(vs[j]) })

	return vs
}

// Any returns the unconstrained range (matches every version). It is the
// identity element for Merge: merging Any() with r yields r.
func Any() Range {
	return Range{}
}

// Matches reports whether v satisfies every clause of r.
func (r Range) Matches(v Version) bool {
	if r.hasLower && !withinLower(v, r.lower) {
		return false
	}

	if r.hasUpper && !withinUpper(v, r.upper) {
		return false
	}

	if r.hasEq && !r.eq.Equal(v) {
		return false
	}

	for _, n := range r.neq {
		if v.Equal(n) {
			return false
		}
	}

	return true
}

// String renders the normalized range back to its comma-clause form.
func (r Range) String() string {
	var parts []string

	if r.hasEq {
		parts = append(parts, "=="+r.eq.String())
	}

	if r.hasLower {
		op := ">="
		if !r.lower.inclusive {
			op = ">"
		}

		parts = append(parts, op+r.lower.v.String())
	}

	if r.hasUpper {
		op := "<="
		if !r.upper.inclusive {
			op = "<"
		}

		parts = append(parts, op+r.upper.v.String())
	}

	for _, n := range r.neq {
		parts = append(parts, "!="+n.String())
	}

	if len(parts) == 0 {
		return ""
	}

	return strings.Join(parts, ", ")
}

// Equal reports whether r and other are structurally the same normalized range.
func (r Range) Equal(other Range) bool {
	return r.String() == other.String()
}

// Merge intersects a and b, returning a range equivalent to both holding at
// once. Fails with ErrIllegalRange when the intersection admits no version.
// Merge is commutative and idempotent: Merge(a,b) == Merge(b,a) and
// Merge(a,a) == a, because the result is rebuilt from the union of clauses
// rather than from whichever range's representation happened to come first.
func Merge(a, b Range) (Range, error) {
	clauses := rangeClauses(a)
	clauses = append(clauses, rangeClauses(b)...)

	return buildRange(clauses)
}

// rangeClauses reconstructs the clause list backing a normalized Range, so
// Merge can fold it back through buildRange alongside another range's clauses.
func rangeClauses(r Range) []clauseOp {
	var clauses []clauseOp

	if r.hasEq {
		clauses = append(clauses, clauseOp{op: "==", ver: r.eq})
	}

	if r.hasLower {
		op := ">="
		if !r.lower.inclusive {
			op = ">"
		}

		clauses = append(clauses, clauseOp{op: op, ver: r.lower.v})
	}

	if r.hasUpper {
		op := "<="
		if !r.upper.inclusive {
			op = "<"
		}

		clauses = append(clauses, clauseOp{op: op, ver: r.upper.v})
	}

	for _, n := range r.neq {
		clauses = append(clauses, clauseOp{op: "!=", ver: n})
	}

	return clauses
}
