// Package distribution implements the mutable per-distfile record that
// tracks one distribution's progress through the resolve/fetch/configure/
// install pipeline.
package distribution

import (
	"fmt"

	"github.com/bilusteknoloji/cpm/internal/job"
	"github.com/bilusteknoloji/cpm/internal/requirement"
	"github.com/bilusteknoloji/cpm/internal/version"
)

// Phase identifies one of the requirement phases a distribution carries.
type Phase int

const (
	PhaseConfigure Phase = iota
	PhaseBuild
	PhaseTest
	PhaseRuntime
)

// Provide is one package this distribution makes available in the current run.
type Provide struct {
	Package string
	Version version.Version
	Ref     string // optional, present for git-sourced provides
}

// Distribution is one record per unique distfile identifier. Stage flags are
// monotonic: once set, a flag is never cleared, and invariant (a) requires
// Resolved implied-by Fetched implied-by Configured implied-by Installed —
// the Set* methods below cascade accordingly so callers never have to
// remember to set the earlier flags themselves.
type Distribution struct {
	Distfile string
	Source   job.Source
	URI      string
	Rev      string
	Ref      string

	resolved   bool
	fetched    bool
	configured bool
	installed  bool
	prebuilt   bool

	// Per-stage "registered" latches: rather than one flag that gets
	// cleared and reused across stages, each stage gets its own latch,
	// set when that stage's follow-on job is queued and never reused
	// for a different stage.
	FetchRegistered     bool
	ConfigureRegistered bool
	InstallRegistered   bool

	// Per-stage one-shot "dependency resolve jobs already enqueued" latches.
	ConfigureDepsRegistered bool
	InstallDepsRegistered   bool

	Meta          map[string]string
	Provides      []Provide
	requirements  map[Phase]*requirement.Collection
	Directory     string
	Distdata      map[string]string
	Distvname     string
	StaticBuilder string
	Features      []string
}

// New constructs a Distribution for the given identity.
func New(distfile string, source job.Source, uri, rev, ref string) *Distribution {
	return &Distribution{
		Distfile:     distfile,
		Source:       source,
		URI:          uri,
		Rev:          rev,
		Ref:          ref,
		requirements: make(map[Phase]*requirement.Collection),
	}
}

func (d *Distribution) Resolved() bool   { return d.resolved }
func (d *Distribution) Fetched() bool    { return d.fetched }
func (d *Distribution) Configured() bool { return d.configured }
func (d *Distribution) Installed() bool  { return d.installed }
func (d *Distribution) Prebuilt() bool   { return d.prebuilt }

// SetResolved marks the distribution resolved. A no-op if already set.
func (d *Distribution) SetResolved() {
	d.resolved = true
}

// SetFetched marks the distribution fetched, cascading Resolved.
func (d *Distribution) SetFetched() {
	d.resolved = true
	d.fetched = true
}

// SetConfigured marks the distribution configured, cascading Fetched/Resolved.
func (d *Distribution) SetConfigured() {
	d.resolved = true
	d.fetched = true
	d.configured = true
}

// SetInstalled marks the distribution installed, cascading every earlier flag.
func (d *Distribution) SetInstalled() {
	d.resolved = true
	d.fetched = true
	d.configured = true
	d.installed = true
}

// SetPrebuilt marks the distribution prebuilt: its fetch result jumps
// straight to Configured and its Provides are taken from the fetch result,
// never re-derived afterward.
func (d *Distribution) SetPrebuilt() {
	d.prebuilt = true
}

// SetRequirements replaces the requirement collection for phase.
func (d *Distribution) SetRequirements(phase Phase, c *requirement.Collection) {
	d.requirements[phase] = c
}

// Requirements returns the requirement collection for phase, or an empty one
// if no data has been recorded for it yet.
func (d *Distribution) Requirements(phase Phase) *requirement.Collection {
	if c, ok := d.requirements[phase]; ok {
		return c
	}

	return requirement.New()
}

// RequirementsAcross merges the requirement collections of every given phase
// and returns the result as a flat, deterministically ordered entry slice.
func (d *Distribution) RequirementsAcross(phases []Phase) ([]requirement.Entry, error) {
	merged := requirement.New()

	for _, p := range phases {
		if err := merged.Merge(d.Requirements(p)); err != nil {
			return nil, fmt.Errorf("distribution %s: merging phase requirements: %w", d.Distfile, err)
		}
	}

	return merged.AsSlice(), nil
}

// Providing reports whether Provides contains an entry for pkg whose version
// satisfies rng and, when ref is non-empty, whose Ref matches it too.
func (d *Distribution) Providing(pkg string, rng version.Range, ref string) bool {
	for _, p := range d.Provides {
		if p.Package != pkg {
			continue
		}

		if !p.Version.Satisfies(rng) {
			continue
		}

		if ref != "" && p.Ref != ref {
			continue
		}

		return true
	}

	return false
}
