package packager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"

	"github.com/cruciblehq/hap/internal/artifact"
	"github.com/cruciblehq/hap/internal/build"
	"github.com/cruciblehq/hap/internal/config"
	"github.com/cruciblehq/hap/internal/manifest"
	"github.com/cruciblehq/hap/internal/paths"
	"github.com/cruciblehq/hap/internal/plan"
)

// Records the build options it was called with and optionally fails.
type fakeEngine struct {
	opts    build.Options
	called  bool
	cleaned bool
	err     error
}

func (f *fakeEngine) Build(_ context.Context, opts build.Options) error {
	f.called = true
	f.opts = opts
	return f.err
}

func (f *fakeEngine) Cleanup(_ context.Context, _ build.Options) {
	f.cleaned = true
}

// Points the staging root at a temp dir and puts a fake hap-tool on
// PATH so staging can complete without an installed toolchain.
func setupStaging(t *testing.T) {
	t.Helper()

	t.Setenv("XDG_STATE_HOME", t.TempDir())
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	binDir := t.TempDir()
	tool := filepath.Join(binDir, "hap-tool")
	if err := os.WriteFile(tool, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func packagerConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	app := filepath.Join(dir, "app.py")
	if err := os.WriteFile(app, []byte("print('ok')\n"), 0644); err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		ApplicationType: config.PythonFile,
		ApplicationPath: app,
		Title:           "demo",
		Version:         "1.0.0",
		Architecture:    "amd64",
		GPUClass:        config.DGPU,
		DevicePlatform:  "x64-workstation",
		Tag:             "my-app",
		PipPackages:     []string{"numpy==1.26.0"},
	}
}

func newTestPackager(t *testing.T, eng BuildEngine) *Packager {
	t.Helper()

	matrix, err := artifact.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return New(eng, matrix)
}

func TestPackageProducesTaggedImage(t *testing.T) {
	setupStaging(t)

	eng := &fakeEngine{}
	p := newTestPackager(t, eng)

	result, err := p.Package(context.Background(), packagerConfig(t))
	if err != nil {
		t.Fatalf("Package: %v", err)
	}

	if result.Tag != "my-app:1.0.0" {
		t.Errorf("tag = %q, want my-app:1.0.0", result.Tag)
	}
	if !eng.called {
		t.Fatal("build engine never invoked")
	}
	if !eng.cleaned {
		t.Error("intermediate images not cleaned up")
	}
	if eng.opts.Tag != result.Tag {
		t.Errorf("build tag = %q, want %q", eng.opts.Tag, result.Tag)
	}
	if eng.opts.Platform != "linux/amd64" {
		t.Errorf("platform = %q, want linux/amd64", eng.opts.Platform)
	}
	if eng.opts.Plan.Target != plan.StageRelease {
		t.Errorf("plan target = %q", eng.opts.Plan.Target)
	}
	if result.AppManifest == nil || result.PkgManifest == nil {
		t.Fatal("manifests missing from result")
	}
	if result.StagingDir != "" {
		t.Errorf("staging dir %q not removed", result.StagingDir)
	}
}

func TestPackageStagesContext(t *testing.T) {
	setupStaging(t)

	eng := &fakeEngine{}
	p := newTestPackager(t, eng)
	p.KeepStaging = true

	cfg := packagerConfig(t)
	modelDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(modelDir, "weights.bin"), []byte{1, 2}, 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Models = []config.Model{{Name: "seg", Path: modelDir}}

	result, err := p.Package(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if result.StagingDir == "" {
		t.Fatal("staging dir not kept")
	}

	for _, entry := range []string{
		filepath.Join(paths.ContextApp, "app.py"),
		paths.ContextAppManifest,
		paths.ContextPkgManifest,
		paths.ContextRequirements,
		paths.ContextTool,
		filepath.Join(paths.ContextModels, "seg", "weights.bin"),
	} {
		if _, err := os.Stat(filepath.Join(result.StagingDir, entry)); err != nil {
			t.Errorf("staged context missing %s: %v", entry, err)
		}
	}

	req, err := os.ReadFile(filepath.Join(result.StagingDir, paths.ContextRequirements))
	if err != nil {
		t.Fatal(err)
	}
	if string(req) != "numpy==1.26.0\n" {
		t.Errorf("requirements = %q", req)
	}

	appJSON, err := os.ReadFile(filepath.Join(result.StagingDir, paths.ContextAppManifest))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := manifest.ParseApplication(appJSON); err != nil {
		t.Errorf("staged application manifest does not parse: %v", err)
	}
}

func TestPackageFailureNamesPhase(t *testing.T) {
	setupStaging(t)

	eng := &fakeEngine{err: errors.New("boom")}
	p := newTestPackager(t, eng)

	_, err := p.Package(context.Background(), packagerConfig(t))
	if !errors.Is(err, ErrPackaging) {
		t.Fatalf("err = %v, want ErrPackaging", err)
	}
	if !strings.Contains(err.Error(), string(PhaseBuild)) {
		t.Errorf("err = %v, want phase %q named", err, PhaseBuild)
	}
}

func TestPackageInvalidConfig(t *testing.T) {
	setupStaging(t)

	eng := &fakeEngine{}
	p := newTestPackager(t, eng)

	cfg := packagerConfig(t)
	cfg.GPUClass = "tpu"

	_, err := p.Package(context.Background(), cfg)
	if !errors.Is(err, ErrPackaging) || !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrPackaging wrapping ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), string(PhaseValidate)) {
		t.Errorf("err = %v, want phase %q named", err, PhaseValidate)
	}
	if eng.called {
		t.Error("engine invoked for invalid configuration")
	}
}

func TestPackageUnresolvableVersion(t *testing.T) {
	setupStaging(t)

	p := newTestPackager(t, &fakeEngine{})

	cfg := packagerConfig(t)
	cfg.SDKVersion = "9.9.9"

	_, err := p.Package(context.Background(), cfg)
	if !errors.Is(err, artifact.ErrResolution) {
		t.Fatalf("err = %v, want ErrResolution", err)
	}
	if !strings.Contains(err.Error(), string(PhaseResolve)) {
		t.Errorf("err = %v, want phase %q named", err, PhaseResolve)
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := []struct {
		name    string
		tag     string
		version string
		want    string
	}{
		{
			name:    "version appended",
			tag:     "my-app",
			version: "1.2.3",
			want:    "my-app:1.2.3",
		},
		{
			name:    "no version defaults to latest",
			tag:     "my-app",
			version: "",
			want:    "my-app:latest",
		},
		{
			name:    "explicit tag kept",
			tag:     "my-app:2.0",
			version: "1.2.3",
			want:    "my-app:2.0",
		},
		{
			name:    "registry port is not a version",
			tag:     "localhost:5000/my-app",
			version: "1.2.3",
			want:    "localhost:5000/my-app:1.2.3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeTag(tt.tag, tt.version)
			if err != nil {
				t.Fatalf("normalizeTag: %v", err)
			}
			if got != tt.want {
				t.Errorf("normalizeTag = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVerifyContextMissingSource(t *testing.T) {
	p := &plan.Plan{
		Stages: []plan.Stage{
			{Name: "release", Copies: []plan.Copy{{Src: "app", Dst: "/opt/hap/app"}}},
		},
		Target: "release",
	}

	if err := verifyContext(p, t.TempDir()); err == nil {
		t.Fatal("verifyContext accepted missing context source")
	}
}
