package packager

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/cruciblehq/hap/internal/artifact"
	"github.com/cruciblehq/hap/internal/build"
	"github.com/cruciblehq/hap/internal/config"
	"github.com/cruciblehq/hap/internal/manifest"
	"github.com/cruciblehq/hap/internal/paths"
	"github.com/cruciblehq/hap/internal/plan"
)

// Phase of the packaging pipeline a failure is attributed to.
type Phase string

const (
	PhaseValidate Phase = "validate"
	PhaseResolve  Phase = "resolve"
	PhaseStage    Phase = "stage"
	PhaseRender   Phase = "render"
	PhaseBuild    Phase = "build"
	PhaseTag      Phase = "tag"
)

// Executes rendered plans. Satisfied by the containerd-backed builder;
// tests substitute a fake to exercise the pipeline without a daemon.
type BuildEngine interface {
	Build(ctx context.Context, opts build.Options) error
	Cleanup(ctx context.Context, opts build.Options)
}

// Packages applications into versioned container images.
type Packager struct {
	engine BuildEngine
	matrix *artifact.Matrix

	// Kept after a successful build for inspection when set. Failed
	// builds always keep their staging directory.
	KeepStaging bool
}

// Outcome of a successful packaging run.
type Result struct {
	Tag         string // Final image reference, including the version tag.
	SDKVersion  string
	StagingDir  string // Build context directory; removed unless KeepStaging is set.
	AppManifest *manifest.Application
	PkgManifest *manifest.Package
}

func New(eng BuildEngine, matrix *artifact.Matrix) *Packager {
	return &Packager{engine: eng, matrix: matrix}
}

// Packages one application into a container image.
//
// The pipeline runs validate, resolve, stage, render, build, tag in
// order. A failure in any phase stops the pipeline; the returned error
// wraps [ErrPackaging] and names the phase so callers can report where
// packaging stopped. No image is produced on failure.
func (p *Packager) Package(ctx context.Context, cfg *config.Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fail(PhaseValidate, err)
	}

	version, res, err := p.resolve(cfg)
	if err != nil {
		return nil, fail(PhaseResolve, err)
	}

	appMan, pkgMan, err := manifest.Generate(cfg, version)
	if err != nil {
		return nil, fail(PhaseStage, err)
	}

	stagingDir, err := p.stage(cfg, appMan, pkgMan)
	if err != nil {
		return nil, fail(PhaseStage, err)
	}

	buildPlan, err := plan.Render(cfg, res)
	if err != nil {
		return nil, fail(PhaseRender, err)
	}

	if err := verifyContext(buildPlan, stagingDir); err != nil {
		return nil, fail(PhaseStage, err)
	}

	tag, err := normalizeTag(cfg.Tag, cfg.Version)
	if err != nil {
		return nil, fail(PhaseTag, err)
	}

	opts := build.Options{
		Plan:     buildPlan,
		Job:      "hap-" + uuid.NewString(),
		Context:  stagingDir,
		Platform: "linux/" + cfg.Architecture,
		Tag:      tag,
		Mutation: releaseMutation(appMan, pkgMan),
	}

	if err := p.engine.Build(ctx, opts); err != nil {
		return nil, fail(PhaseBuild, err)
	}
	p.engine.Cleanup(ctx, opts)

	if !p.KeepStaging {
		if err := os.RemoveAll(stagingDir); err != nil {
			slog.Warn("failed to remove staging directory", "dir", stagingDir, "error", err)
		}
		stagingDir = ""
	}

	slog.Info("package built", "tag", tag, "sdk-version", version)

	return &Result{
		Tag:         tag,
		SDKVersion:  version,
		StagingDir:  stagingDir,
		AppManifest: appMan,
		PkgManifest: pkgMan,
	}, nil
}

// Resolves the SDK version and its artifact set.
//
// An empty configured version selects the newest version the matrix
// declares. A custom SDK artifact replaces the install artifact but the
// base and build images still come from the resolved version.
func (p *Packager) resolve(cfg *config.Config) (string, *artifact.Resolution, error) {
	version := cfg.SDKVersion
	if version == "" {
		versions := p.matrix.Versions()
		version = versions[len(versions)-1]
	}

	res, err := p.matrix.Resolve(version, string(cfg.GPUClass), cfg.Architecture, cfg.DevicePlatform)
	if err != nil {
		return "", nil, err
	}
	return version, res, nil
}

// Builds the image mutation applied to the release stage: entrypoint,
// working directory, and the manifests as image labels so they can be
// inspected without starting a container.
func releaseMutation(appMan *manifest.Application, pkgMan *manifest.Package) func(*ocispec.Manifest, *ocispec.Image) {
	return func(_ *ocispec.Manifest, img *ocispec.Image) {
		img.Config.Entrypoint = []string{paths.ToolPath}
		img.Config.Cmd = nil
		img.Config.WorkingDir = paths.WorkDir

		appJSON, err := appMan.JSON()
		if err != nil {
			return
		}
		pkgJSON, err := pkgMan.JSON()
		if err != nil {
			return
		}

		if img.Config.Labels == nil {
			img.Config.Labels = make(map[string]string, 2)
		}
		img.Config.Labels[manifest.AppManifestLabel] = string(appJSON)
		img.Config.Labels[manifest.PkgManifestLabel] = string(pkgJSON)
	}
}

// Checks that every context source the plan references exists in the
// staging directory. Catches staging and rendering drifting apart
// before any engine work starts.
func verifyContext(p *plan.Plan, stagingDir string) error {
	for _, stage := range p.Stages {
		for _, c := range stage.Copies {
			if c.Stage != "" {
				continue
			}
			if _, err := os.Stat(filepath.Join(stagingDir, c.Src)); err != nil {
				return fmt.Errorf("staged context is missing %q: %w", c.Src, err)
			}
		}
	}
	return nil
}

// Produces the final image reference from the configured tag and the
// application version.
//
// A tag without an explicit version gets the application version
// appended, or "latest" when no version is configured. A tag that
// already carries a version is used as-is.
func normalizeTag(tag, version string) (string, error) {
	if tag == "" {
		return "", fmt.Errorf("empty image tag")
	}

	// A colon in the last path segment is a version suffix; earlier
	// colons belong to a registry port.
	last := tag
	if i := strings.LastIndexByte(tag, '/'); i >= 0 {
		last = tag[i+1:]
	}
	if strings.ContainsRune(last, ':') {
		return tag, nil
	}

	if version == "" {
		version = "latest"
	}
	return tag + ":" + version, nil
}

func fail(phase Phase, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPackaging, phase, err)
}
