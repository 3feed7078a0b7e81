// Package oracle implements master.Oracle: a filesystem probe that looks
// for an already-installed module under a set of search directories (the
// `@INC`-style search_inc list) and reports its declared $VERSION. It also
// detects the running perl interpreter's own version, the way the teacher's
// Python environment detector shells out to the interpreter it's probing.
package oracle

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bilusteknoloji/cpm/internal/master"
	"github.com/bilusteknoloji/cpm/internal/version"
)

// versionLine matches a module's `our $VERSION = '1.23';` declaration (or
// the unadorned `$VERSION = 1.23;` form), the de facto way a Perl
// distribution advertises its installed version.
var versionLine = regexp.MustCompile(`\$VERSION\s*=\s*['"]?v?([0-9]+(?:\.[0-9]+)*)['"]?\s*;`)

// perlVersionOutput matches the `v5.38.2` style output of `perl -e 'print $^V'`.
var perlVersionOutput = regexp.MustCompile(`^v?([0-9]+(?:\.[0-9]+)*)`)

// CommandRunner executes a command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Option configures a Service.
type Option func(*Service)

// WithRev sets the revision string reported for every probed module.
// Defaults to "", meaning "not tracked at this revision".
func WithRev(rev string) Option {
	return func(s *Service) {
		s.rev = rev
	}
}

// WithPerlBin sets the perl binary used to detect the running interpreter's
// version. Defaults to "perl".
func WithPerlBin(bin string) Option {
	return func(s *Service) {
		if bin != "" {
			s.perlBin = bin
		}
	}
}

// WithCommandRunner sets the function used to run the perl binary.
// Defaults to exec.CommandContext.
func WithCommandRunner(fn CommandRunner) Option {
	return func(s *Service) {
		if fn != nil {
			s.runCmd = fn
		}
	}
}

// Service probes a search_inc path list for an installed module file, and
// can detect the running perl interpreter's own version.
type Service struct {
	rev     string
	perlBin string
	runCmd  CommandRunner
}

var _ master.Oracle = (*Service)(nil)

// New creates a Service.
func New(opts ...Option) *Service {
	s := &Service{
		perlBin: "perl",
		runCmd:  defaultRunCmd,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Probe looks for pkg (a "::"-separated module name) under each directory
// in searchInc, in order, and reports the first match's declared version.
func (s *Service) Probe(pkg string, searchInc []string) (master.InstalledInfo, bool) {
	rel := modulePath(pkg)

	for _, dir := range searchInc {
		path := filepath.Join(dir, rel)

		v, ok := readDeclaredVersion(path)
		if !ok {
			continue
		}

		return master.InstalledInfo{Name: pkg, Version: v, Rev: s.rev}, true
	}

	return master.InstalledInfo{}, false
}

// RuntimeVersion runs the configured perl binary and parses its reported
// version, for callers that need to gate a requirement against the running
// interpreter rather than a hypothetical --target-perl.
func (s *Service) RuntimeVersion(ctx context.Context) (version.Version, error) {
	output, err := s.runCmd(ctx, s.perlBin, "-e", "print $^V")
	if err != nil {
		return version.Version{}, fmt.Errorf("running %s: %w", s.perlBin, err)
	}

	m := perlVersionOutput.FindStringSubmatch(strings.TrimSpace(string(output)))
	if m == nil {
		return version.Version{}, fmt.Errorf("unexpected output from %s: %q", s.perlBin, output)
	}

	return version.Parse(m[1])
}

// defaultRunCmd executes a command using exec.CommandContext.
func defaultRunCmd(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// modulePath converts "Foo::Bar" to "Foo/Bar.pm".
func modulePath(pkg string) string {
	return filepath.Join(strings.Split(pkg, "::")...) + ".pm"
}

// readDeclaredVersion opens path and scans it for a $VERSION assignment,
// returning the parsed version if one is found and valid.
func readDeclaredVersion(path string) (version.Version, bool) {
	f, err := os.Open(path)
	if err != nil {
		return version.Version{}, false
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := versionLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}

		v, err := version.Parse(m[1])
		if err != nil {
			continue
		}

		return v, true
	}

	return version.Version{}, false
}
