package builder_test

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/bilusteknoloji/cpm/internal/builder"
	"github.com/bilusteknoloji/cpm/internal/distribution"
)

type manifestFixture struct {
	Provides map[string]string `json:"provides"`
	Requires struct {
		Runtime map[string]string `json:"runtime_requires"`
	} `json:"requires"`
	StaticBuilder string            `json:"static_builder"`
	Distdata      map[string]string `json:"distdata"`
}

func writeArchive(t *testing.T, dir, name string, m manifestFixture) string {
	t.Helper()

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshaling manifest: %v", err)
	}

	var buf bytes.Buffer

	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)

	if err := tw.WriteHeader(&tar.Header{Name: "META.json", Mode: 0o644, Size: int64(len(manifestJSON))}); err != nil {
		t.Fatalf("writing tar header: %v", err)
	}

	if _, err := tw.Write(manifestJSON); err != nil {
		t.Fatalf("writing tar content: %v", err)
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}

	if err := gzw.Close(); err != nil {
		t.Fatalf("closing gzip writer: %v", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("writing archive: %v", err)
	}

	return path
}

func TestConfigureExtractsAndParsesManifest(t *testing.T) {
	fetchDir := t.TempDir()

	writeArchive(t, fetchDir, "Foo-1.0.tar.gz", manifestFixture{
		Provides: map[string]string{"Foo": "1.0"},
		Requires: struct {
			Runtime map[string]string `json:"runtime_requires"`
		}{Runtime: map[string]string{"Bar": ">=2.0"}},
		StaticBuilder: "ExtUtils::MakeMaker",
		Distdata:      map[string]string{"name": "Foo"},
	})

	b := builder.New()

	result, err := b.Configure(context.Background(), builder.ConfigureRequest{
		Distfile:  "Foo-1.0.tar.gz",
		Directory: fetchDir,
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if len(result.Provides) != 1 || result.Provides[0].Package != "Foo" {
		t.Errorf("Provides = %+v, want [Foo]", result.Provides)
	}

	runtime := result.Requirements[distribution.PhaseRuntime]
	if runtime == nil || !runtime.Has("Bar") {
		t.Errorf("runtime requirements missing Bar: %+v", result.Requirements)
	}

	if result.StaticBuilder != "ExtUtils::MakeMaker" {
		t.Errorf("StaticBuilder = %q, want ExtUtils::MakeMaker", result.StaticBuilder)
	}

	if _, err := os.Stat(filepath.Join(result.Directory, "META.json")); err != nil {
		t.Errorf("extracted tree missing META.json: %v", err)
	}
}

func TestConfigurePrebuiltSkipsExtraction(t *testing.T) {
	dir := t.TempDir()

	manifestJSON, _ := json.Marshal(manifestFixture{Provides: map[string]string{"Baz": "3.0"}})
	if err := os.WriteFile(filepath.Join(dir, "META.json"), manifestJSON, 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	b := builder.New()

	result, err := b.Configure(context.Background(), builder.ConfigureRequest{
		Distfile:  "Baz-3.0",
		Directory: dir,
		Prebuilt:  true,
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if result.Directory != dir {
		t.Errorf("Directory = %q, want %q (unchanged for prebuilt)", result.Directory, dir)
	}

	if len(result.Provides) != 1 || result.Provides[0].Package != "Baz" {
		t.Errorf("Provides = %+v, want [Baz]", result.Provides)
	}
}

func TestInstallCopiesConfiguredTree(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "lib.pm"), []byte("1;\n"), 0o644); err != nil {
		t.Fatalf("writing fixture file: %v", err)
	}

	installRoot := t.TempDir()
	b := builder.New(builder.WithInstallRoot(installRoot))

	_, err := b.Install(context.Background(), builder.InstallRequest{
		Distfile:  "Foo-1.0.tar.gz",
		Directory: srcDir,
	})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	if _, err := os.Stat(filepath.Join(installRoot, "Foo-1.0.tar.gz", "lib.pm")); err != nil {
		t.Errorf("installed tree missing lib.pm: %v", err)
	}
}

func TestConfigureMissingManifestProducesNoRequirements(t *testing.T) {
	fetchDir := t.TempDir()

	b := builder.New()

	result, err := b.Configure(context.Background(), builder.ConfigureRequest{
		Distfile:  "Empty-0.1",
		Directory: fetchDir,
		Prebuilt:  true,
	})
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if len(result.Provides) != 0 {
		t.Errorf("Provides = %+v, want none", result.Provides)
	}

	if len(result.Requirements) != 0 {
		t.Errorf("Requirements = %+v, want none", result.Requirements)
	}
}
