// Package job defines the immutable unit of work the Master hands to
// external workers, and the equality/identity rules used to deduplicate it.
package job

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Type identifies which pipeline stage a Job performs.
type Type int

const (
	Resolve Type = iota
	Fetch
	Configure
	Install
)

func (t Type) String() string {
	switch t {
	case Resolve:
		return "resolve"
	case Fetch:
		return "fetch"
	case Configure:
		return "configure"
	case Install:
		return "install"
	default:
		return "unknown"
	}
}

// Source identifies where a distribution's material comes from.
type Source int

const (
	SourceRegistry Source = iota
	SourceGit
	SourceLocal
)

func (s Source) String() string {
	switch s {
	case SourceRegistry:
		return "registry"
	case SourceGit:
		return "git"
	case SourceLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Job is an immutable descriptor of one unit of external work. Two jobs are
// Equal (and so deduplicate in the Master's pending set) iff their
// identifying fields are equal, independent of how UID happens to be
// formatted.
type Job struct {
	typ Type

	// Package identifies a resolve job's target; Distfile identifies every
	// other job type's target. Exactly one is set, depending on typ.
	Package  string
	Distfile string

	Source Source
	URI    string
	Ref    string

	// VersionRange and Reinstall are resolve-specific payload; they do not
	// participate in identity (two resolve jobs for the same package are
	// the same job regardless of which range first requested it, since the
	// Master de-duplicates by package, not by the requesting range).
	VersionRange string
	Reinstall    bool
	Features     []string

	// inCharge is observed and mutated by the Master only; it plays no part
	// in equality.
	inCharge bool
}

// New constructs a Job of the given type. Callers set the type-appropriate
// fields on the returned value (Package for Resolve, Distfile/Source/URI for
// the rest) before handing it to a Master.
func New(typ Type) Job {
	return Job{typ: typ}
}

// Type returns the job's pipeline stage.
func (j Job) Type() Type { return j.typ }

// InCharge reports whether a worker currently owns this job.
func (j Job) InCharge() bool { return j.inCharge }

// WithInCharge returns a copy of j with the in-charge flag set.
func (j Job) WithInCharge(v bool) Job {
	j.inCharge = v

	return j
}

// identity is the tuple that determines a Job's UID and its Equal result.
func (j Job) identity() []string {
	target := j.Package
	if j.typ != Resolve {
		target = j.Distfile
	}

	return []string{j.typ.String(), target, j.Source.String(), j.URI, j.Ref}
}

// UID derives a stable identifier from {type, package|distfile, source, uri,
// ref}. It is a content hash, not a counter, so the same logical job always
// gets the same UID across a run.
func (j Job) UID() string {
	h := sha256.New()
	h.Write([]byte(strings.Join(j.identity(), "\x00")))

	return hex.EncodeToString(h.Sum(nil))
}

// Equal reports whether j and other identify the same unit of work. This
// compares identifying fields directly rather than comparing UID strings, so
// it stays correct independent of how UID happens to be formatted.
func (j Job) Equal(other Job) bool {
	a, b := j.identity(), other.identity()
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
