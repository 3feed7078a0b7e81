// Package requirement implements the Requirement algebra: a
// {package, version_range, options} entry and an ordered, package-unique
// collection of entries with range-intersecting merge semantics.
package requirement

import (
	"fmt"

	"github.com/bilusteknoloji/cpm/internal/version"
)

// Options carries the optional alternate-source fields of a requirement entry.
type Options struct {
	Git      string   // git remote URI, empty for registry sources
	Ref      string   // branch/tag/commit, empty if unspecified
	Features []string // requested optional feature set
}

// IsGit reports whether the options pin a git source.
func (o Options) IsGit() bool {
	return o.Git != ""
}

// sourceConflict reports whether a and b name incompatible sources: one git
// and one registry, or two different git remotes.
func sourceConflict(a, b Options) bool {
	if a.IsGit() != b.IsGit() {
		return true
	}

	return a.IsGit() && b.IsGit() && a.Git != b.Git
}

// Entry is one {package, version_range, options} requirement.
type Entry struct {
	Package string
	Range   version.Range
	Options Options
}

// Collection is an ordered, package-unique sequence of requirement entries.
// Package names are case-sensitive literals; iteration order is insertion
// order.
type Collection struct {
	order   []string
	entries map[string]Entry
}

// New returns an empty Collection.
func New() *Collection {
	return &Collection{entries: make(map[string]Entry)}
}

// Empty reports whether the collection holds no entries.
func (c *Collection) Empty() bool {
	return c == nil || len(c.order) == 0
}

// Has reports whether pkg has an entry in the collection.
func (c *Collection) Has(pkg string) bool {
	if c == nil {
		return false
	}

	_, ok := c.entries[pkg]

	return ok
}

// Get returns the entry for pkg, if present.
func (c *Collection) Get(pkg string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}

	e, ok := c.entries[pkg]

	return e, ok
}

// AsSlice returns the entries in insertion order.
func (c *Collection) AsSlice() []Entry {
	if c == nil {
		return nil
	}

	out := make([]Entry, 0, len(c.order))
	for _, pkg := range c.order {
		out = append(out, c.entries[pkg])
	}

	return out
}

// Add merges each of entries into the collection. An entry for a package
// already present is merged by intersecting version ranges (requiring equal
// Ref when both carry one, and rejecting source conflicts); an entry for a
// new package is inserted as-is. On the first merge failure, Add stops,
// leaves the collection untouched, and returns a descriptive error — no
// partial mutation happens.
func (c *Collection) Add(entries ...Entry) error {
	if c == nil {
		return fmt.Errorf("requirement: nil collection")
	}

	// Work on a shadow copy so a mid-batch failure never leaves the
	// collection partially mutated.
	next := c.clone()

	for _, e := range entries {
		if err := next.addOne(e); err != nil {
			return err
		}
	}

	c.order = next.order
	c.entries = next.entries

	return nil
}

func (c *Collection) clone() *Collection {
	clone := &Collection{
		order:   append([]string(nil), c.order...),
		entries: make(map[string]Entry, len(c.entries)),
	}

	for k, v := range c.entries {
		clone.entries[k] = v
	}

	return clone
}

func (c *Collection) addOne(e Entry) error {
	existing, ok := c.entries[e.Package]
	if !ok {
		c.order = append(c.order, e.Package)
		c.entries[e.Package] = e

		return nil
	}

	if sourceConflict(existing.Options, e.Options) {
		return fmt.Errorf("requirement: source conflict for package %s (%+v vs %+v)",
			e.Package, existing.Options, e.Options)
	}

	if existing.Options.Ref != "" && e.Options.Ref != "" && existing.Options.Ref != e.Options.Ref {
		return fmt.Errorf("requirement: conflicting refs for package %s: %s vs %s",
			e.Package, existing.Options.Ref, e.Options.Ref)
	}

	merged, err := version.Merge(existing.Range, e.Range)
	if err != nil {
		return fmt.Errorf("Couldn't merge version range %s with %s for package %s: %w",
			existing.Range, e.Range, e.Package, err)
	}

	mergedOpts := existing.Options
	if mergedOpts.Ref == "" {
		mergedOpts.Ref = e.Options.Ref
	}

	if mergedOpts.Git == "" {
		mergedOpts.Git = e.Options.Git
	}

	mergedOpts.Features = mergeFeatures(existing.Options.Features, e.Options.Features)

	c.entries[e.Package] = Entry{Package: e.Package, Range: merged, Options: mergedOpts}

	return nil
}

func mergeFeatures(a, b []string) []string {
	if len(a) == 0 {
		return b
	}

	if len(b) == 0 {
		return a
	}

	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))

	for _, f := range append(append([]string(nil), a...), b...) {
		if !seen[f] {
			seen[f] = true

			out = append(out, f)
		}
	}

	return out
}

// Merge folds other's entries into c via repeated Add.
func (c *Collection) Merge(other *Collection) error {
	if other.Empty() {
		return nil
	}

	return c.Add(other.AsSlice()...)
}

// Delete removes the entries for the given packages, if present.
func (c *Collection) Delete(pkgs ...string) {
	if c == nil {
		return
	}

	remove := make(map[string]bool, len(pkgs))
	for _, p := range pkgs {
		remove[p] = true
	}

	if len(remove) == 0 {
		return
	}

	kept := c.order[:0:0]

	for _, pkg := range c.order {
		if remove[pkg] {
			delete(c.entries, pkg)

			continue
		}

		kept = append(kept, pkg)
	}

	c.order = kept
}
