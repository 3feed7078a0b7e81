// Package builder implements the configure and install workers: given a
// fetched distribution's directory, it extracts the distfile archive,
// reads its manifest for build-phase requirements and provided packages,
// and (simulated, per the build's Non-goals — no Makefile.PL/make/make
// install subprocess is ever actually invoked) produces the Distdata and
// StaticBuilder a configure JobResult carries, then marks installation.
package builder

import (
	"archive/tar"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/bilusteknoloji/cpm/internal/distribution"
	"github.com/bilusteknoloji/cpm/internal/requirement"
	"github.com/bilusteknoloji/cpm/internal/version"
)

// manifestName is the metadata file a distfile carries at its archive root,
// analogous to CPAN's META.json: declares the phase requirements and the
// packages the distribution provides.
const manifestName = "META.json"

// manifest is the on-disk shape of manifestName.
type manifest struct {
	Provides map[string]string `json:"provides"` // package -> version
	Requires struct {
		Configure map[string]string `json:"configure_requires"`
		Build     map[string]string `json:"build_requires"`
		Test      map[string]string `json:"test_requires"`
		Runtime   map[string]string `json:"runtime_requires"`
	} `json:"requires"`
	StaticBuilder string            `json:"static_builder"`
	Distdata      map[string]string `json:"distdata"`
}

// ConfigureRequest is one configure job's payload.
type ConfigureRequest struct {
	Distfile  string
	Directory string // the directory fetch populated; holds the archive or, for prebuilt/local sources, an already-extracted tree
	Prebuilt  bool
}

// ConfigureResult is what a configure run produces for the Master to absorb.
type ConfigureResult struct {
	Distfile      string
	Directory     string // the extracted source tree
	Requirements  map[distribution.Phase]*requirement.Collection
	Provides      []distribution.Provide
	StaticBuilder string
	Distdata      map[string]string
}

// InstallRequest is one install job's payload.
type InstallRequest struct {
	Distfile  string
	Directory string
}

// InstallResult is what an install run produces for the Master to absorb.
type InstallResult struct {
	Distfile string
}

// Builder runs the configure and install stage workers.
type Builder interface {
	Configure(ctx context.Context, req ConfigureRequest) (ConfigureResult, error)
	Install(ctx context.Context, req InstallRequest) (InstallResult, error)
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithInstallRoot sets the directory installed distributions are copied
// into. Defaults to an "installed" subdirectory of the current directory.
func WithInstallRoot(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.installRoot = dir
		}
	}
}

// Service extracts distfiles and simulates their configure/build/install
// phases.
type Service struct {
	installRoot string
	logger      *slog.Logger
}

var _ Builder = (*Service)(nil)

// New creates a Service.
func New(opts ...Option) *Service {
	s := &Service{
		installRoot: "installed",
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Configure extracts req's archive (skipped for already-extracted prebuilt
// or local trees), reads its manifest, and reports the phase requirements
// and provided packages it declares.
func (s *Service) Configure(ctx context.Context, req ConfigureRequest) (ConfigureResult, error) {
	if err := ctx.Err(); err != nil {
		return ConfigureResult{}, fmt.Errorf("configure canceled: %w", err)
	}

	srcDir := req.Directory

	if !req.Prebuilt {
		extracted, err := s.extract(req.Directory)
		if err != nil {
			return ConfigureResult{}, fmt.Errorf("extracting %s: %w", req.Distfile, err)
		}

		srcDir = extracted
	}

	m, err := readManifest(srcDir)
	if err != nil {
		return ConfigureResult{}, fmt.Errorf("reading manifest for %s: %w", req.Distfile, err)
	}

	reqs, err := manifestRequirements(m)
	if err != nil {
		return ConfigureResult{}, fmt.Errorf("parsing requirements for %s: %w", req.Distfile, err)
	}

	provides, err := manifestProvides(m)
	if err != nil {
		return ConfigureResult{}, fmt.Errorf("parsing provides for %s: %w", req.Distfile, err)
	}

	s.logger.Debug("configured", slog.String("distfile", req.Distfile), slog.Int("provides", len(provides)))

	return ConfigureResult{
		Distfile:      req.Distfile,
		Directory:     srcDir,
		Requirements:  reqs,
		Provides:      provides,
		StaticBuilder: m.StaticBuilder,
		Distdata:      m.Distdata,
	}, nil
}

// Install simulates "make install": the configured tree is copied into the
// install root. No subprocess is ever invoked.
func (s *Service) Install(ctx context.Context, req InstallRequest) (InstallResult, error) {
	if err := ctx.Err(); err != nil {
		return InstallResult{}, fmt.Errorf("install canceled: %w", err)
	}

	dest := filepath.Join(s.installRoot, req.Distfile)
	if err := copyTree(req.Directory, dest); err != nil {
		return InstallResult{}, fmt.Errorf("installing %s: %w", req.Distfile, err)
	}

	s.logger.Debug("installed", slog.String("distfile", req.Distfile))

	return InstallResult{Distfile: req.Distfile}, nil
}

// extract finds the first *.tar.gz in dir and unpacks it alongside it,
// returning the directory the archive's entries were written under.
func (s *Service) extract(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", dir, err)
	}

	var archive string

	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".tar.gz") {
			archive = filepath.Join(dir, e.Name())

			break
		}
	}

	if archive == "" {
		// Nothing to extract: the fetch step already produced a tree
		// (e.g. a git checkout).
		return dir, nil
	}

	destDir := filepath.Join(dir, "src")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("creating extraction directory: %w", err)
	}

	f, err := os.Open(archive)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", archive, err)
	}
	defer func() { _ = f.Close() }()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return "", fmt.Errorf("opening gzip stream: %w", err)
	}
	defer func() { _ = gzr.Close() }()

	tr := tar.NewReader(gzr)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return "", fmt.Errorf("reading tar entry: %w", err)
		}

		destPath := filepath.Join(destDir, hdr.Name)

		if !isInsideDir(destPath, destDir) {
			return "", fmt.Errorf("tar slip detected: %s resolves outside %s", hdr.Name, destDir)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return "", fmt.Errorf("creating directory %s: %w", destPath, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
				return "", fmt.Errorf("creating directory for %s: %w", hdr.Name, err)
			}

			if err := extractFile(tr, destPath, os.FileMode(hdr.Mode)); err != nil {
				return "", fmt.Errorf("extracting %s: %w", hdr.Name, err)
			}
		}
	}

	return destDir, nil
}

func extractFile(r io.Reader, destPath string, mode os.FileMode) error {
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, r)

	return err
}

func isInsideDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func readManifest(dir string) (manifest, error) {
	path := filepath.Join(dir, manifestName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return manifest{}, nil
		}

		return manifest{}, err
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return manifest{}, fmt.Errorf("decoding %s: %w", path, err)
	}

	return m, nil
}

func manifestRequirements(m manifest) (map[distribution.Phase]*requirement.Collection, error) {
	out := make(map[distribution.Phase]*requirement.Collection)

	phases := []struct {
		phase distribution.Phase
		deps  map[string]string
	}{
		{distribution.PhaseConfigure, m.Requires.Configure},
		{distribution.PhaseBuild, m.Requires.Build},
		{distribution.PhaseTest, m.Requires.Test},
		{distribution.PhaseRuntime, m.Requires.Runtime},
	}

	for _, p := range phases {
		if len(p.deps) == 0 {
			continue
		}

		c := requirement.New()

		entries := make([]requirement.Entry, 0, len(p.deps))
		for pkg, rangeStr := range p.deps {
			rng, err := version.ParseRange(rangeStr)
			if err != nil {
				return nil, fmt.Errorf("parsing range %q for %s: %w", rangeStr, pkg, err)
			}

			entries = append(entries, requirement.Entry{Package: pkg, Range: rng})
		}

		sort.Slice(entries, func(i, j int) bool { return entries[i].Package < entries[j].Package })

		if err := c.Add(entries...); err != nil {
			return nil, err
		}

		out[p.phase] = c
	}

	return out, nil
}

func manifestProvides(m manifest) ([]distribution.Provide, error) {
	if len(m.Provides) == 0 {
		return nil, nil
	}

	out := make([]distribution.Provide, 0, len(m.Provides))

	for pkg, v := range m.Provides {
		ver, err := version.Parse(v)
		if err != nil {
			return nil, fmt.Errorf("parsing version %q for %s: %w", v, pkg, err)
		}

		out = append(out, distribution.Provide{Package: pkg, Version: ver})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Package < out[j].Package })

	return out, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}

		destPath := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(destPath, 0o755)
		}

		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()

		if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
		if err != nil {
			return err
		}
		defer func() { _ = out.Close() }()

		_, err = io.Copy(out, in)

		return err
	})
}
