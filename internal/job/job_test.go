package job_test

import (
	"testing"

	"github.com/bilusteknoloji/cpm/internal/job"
)

func TestEqualIndependentOfUIDFormatting(t *testing.T) {
	a := job.New(job.Fetch)
	a.Distfile = "Foo-1.0.tar.gz"
	a.Source = job.SourceRegistry
	a.URI = "https://example.com/Foo-1.0.tar.gz"

	b := a
	b.Reinstall = true      // payload-only field, not identity
	b = b.WithInCharge(true) // mutable flag, not identity

	if !a.Equal(b) {
		t.Errorf("jobs differing only in payload/in-charge should be Equal")
	}

	if a.UID() != b.UID() {
		t.Errorf("UID should be stable across payload-only differences")
	}
}

func TestNotEqualDifferentSource(t *testing.T) {
	a := job.New(job.Resolve)
	a.Package = "Foo"
	a.Source = job.SourceRegistry

	b := a
	b.Source = job.SourceGit
	b.URI = "https://example.com/foo.git"

	if a.Equal(b) {
		t.Error("jobs with different sources should not be Equal")
	}

	if a.UID() == b.UID() {
		t.Error("UIDs should differ when identity differs")
	}
}

func TestResolveJobsKeyOnPackageNotDistfile(t *testing.T) {
	a := job.New(job.Resolve)
	a.Package = "Foo"

	b := job.New(job.Resolve)
	b.Package = "Foo"
	b.Distfile = "should-be-ignored"

	if !a.Equal(b) {
		t.Error("resolve jobs should key on Package, ignoring Distfile")
	}
}

func TestUIDDeterministic(t *testing.T) {
	a := job.New(job.Install)
	a.Distfile = "Foo-1.0.tar.gz"

	b := job.New(job.Install)
	b.Distfile = "Foo-1.0.tar.gz"

	if a.UID() != b.UID() {
		t.Error("identical jobs constructed separately should share a UID")
	}
}
