package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/cruciblehq/hap/internal/engine"
	"github.com/cruciblehq/hap/internal/manifest"
	"github.com/cruciblehq/hap/internal/paths"
)

// Controls a single launch of a packaged application.
type Options struct {
	Image      string
	InputDir   string // Host directory mounted read-only at the manifest's input path.
	OutputDir  string // Host directory mounted read-write at the manifest's output path; created if missing.
	ModelDir   string // Host directory mounted read-only over the package's model root.
	DocsDir    string // Host directory mounted read-only over the manifest's docs path.
	ConfigPath string // Host file mounted over the baked-in application config.
	Env        []string
	Timeout    time.Duration // Overrides the manifest timeout when positive.

	KeepContainer bool // Leave the exited container in place for inspection.

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Launches packaged applications against the container engine.
type Runner struct {
	eng *engine.Engine
}

func New(eng *engine.Engine) *Runner {
	return &Runner{eng: eng}
}

// Reads both manifests from the image's labels.
//
// The manifests were baked in at packaging time, so no container is
// started. An image without both labels is not a package.
func (r *Runner) Manifests(ctx context.Context, image string) (*manifest.Application, *manifest.Package, error) {
	exists, err := r.eng.HasImage(ctx, image)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	if !exists {
		return nil, nil, fmt.Errorf("%w: image %q not found in the store", ErrLaunch, image)
	}

	labels, err := r.eng.ImageLabels(ctx, image, engine.DefaultPlatform())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	appJSON, ok := labels[manifest.AppManifestLabel]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotAPackage, image)
	}
	pkgJSON, ok := labels[manifest.PkgManifestLabel]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotAPackage, image)
	}

	appMan, err := manifest.ParseApplication([]byte(appJSON))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	pkgMan, err := manifest.ParsePackage([]byte(pkgJSON))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	return appMan, pkgMan, nil
}

// Runs a packaged application to completion and returns its exit code.
//
// The launch command, environment, and working directory come from the
// application manifest; host data directories are bind-mounted over the
// manifest's input and output paths. A GPU package on a host without an
// accelerator launches CPU-only with no device request. Cancellation
// and timeout surface as [ErrLaunch] with the cause attached; an
// application that runs to completion has its exit code passed through
// untouched.
func (r *Runner) Run(ctx context.Context, opts *Options) (int, error) {
	appMan, pkgMan, err := r.Manifests(ctx, opts.Image)
	if err != nil {
		return 0, err
	}

	hostDevices := deviceRequest(pkgMan, hasAccelerator())
	if !hostDevices && pkgMan.Resources.GPU > 0 && pkgMan.PlatformConfig != "cpu" {
		slog.Warn("no accelerator available, launching CPU-only",
			"requested-gpus", pkgMan.Resources.GPU)
	}

	mounts, err := composeMounts(opts, appMan, pkgMan)
	if err != nil {
		return 0, err
	}

	timeout := opts.Timeout
	if timeout <= 0 && appMan.Timeout > 0 {
		timeout = time.Duration(appMan.Timeout) * time.Second
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	id := "hap-run-" + uuid.NewString()

	spec := &engine.RunSpec{
		Image:       opts.Image,
		ID:          id,
		Platform:    engine.DefaultPlatform(),
		Command:     appMan.Command,
		Env:         runEnv(appMan, opts.Env),
		Mounts:      mounts,
		WorkDir:     appMan.WorkingDirectory,
		HostDevices: hostDevices,
		Keep:        opts.KeepContainer,
		Stdin:       opts.Stdin,
		Stdout:      opts.Stdout,
		Stderr:      opts.Stderr,
	}

	if appMan.Readiness != nil {
		stopReady := r.watchReadiness(ctx, id, appMan.Readiness)
		defer stopReady()
	}

	slog.Info("launching application", "image", opts.Image, "id", id)

	code, err := r.eng.Run(ctx, spec)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return 0, fmt.Errorf("%w: application exceeded its %s timeout", ErrLaunch, timeout)
	case errors.Is(err, context.Canceled):
		return 0, fmt.Errorf("%w: launch cancelled: %w", ErrLaunch, err)
	case err != nil:
		return 0, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	slog.Info("application exited", "id", id, "code", code)
	return code, nil
}

// Assembles the host bind mounts for a launch.
//
// The output directory is created when missing and mounted read-write.
// The input, model, and docs directories must already exist and are
// mounted read-only, as is the optional config override.
func composeMounts(opts *Options, appMan *manifest.Application, pkgMan *manifest.Package) ([]engine.Mount, error) {
	var mounts []engine.Mount

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, paths.DefaultDirMode); err != nil {
			return nil, fmt.Errorf("%w: output directory: %w", ErrLaunch, err)
		}
		mounts = append(mounts, engine.Mount{
			Source: opts.OutputDir,
			Target: outputPath(appMan),
		})
	}

	if opts.InputDir != "" {
		m, err := readOnlyDirMount(opts.InputDir, inputPath(appMan), "input")
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}

	if opts.ModelDir != "" {
		target := pkgMan.ModelRoot
		if target == "" {
			target = paths.ModelDir
		}
		m, err := readOnlyDirMount(opts.ModelDir, target, "model")
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}

	if opts.DocsDir != "" {
		target := appMan.DocsPath
		if target == "" {
			target = paths.DocsDir
		}
		m, err := readOnlyDirMount(opts.DocsDir, target, "docs")
		if err != nil {
			return nil, err
		}
		mounts = append(mounts, m)
	}

	if opts.ConfigPath != "" {
		if _, err := os.Stat(opts.ConfigPath); err != nil {
			return nil, fmt.Errorf("%w: config override: %w", ErrLaunch, err)
		}
		target := appMan.Environment[paths.EnvConfigPath]
		if target == "" {
			target = paths.ConfigPath
		}
		mounts = append(mounts, engine.Mount{
			Source:   opts.ConfigPath,
			Target:   target,
			ReadOnly: true,
		})
	}

	return mounts, nil
}

// Validates a host directory and returns a read-only bind for it.
func readOnlyDirMount(source, target, label string) (engine.Mount, error) {
	info, err := os.Stat(source)
	if err != nil {
		return engine.Mount{}, fmt.Errorf("%w: %s directory: %w", ErrLaunch, label, err)
	}
	if !info.IsDir() {
		return engine.Mount{}, fmt.Errorf("%w: %s path %q is not a directory", ErrLaunch, label, source)
	}
	return engine.Mount{Source: source, Target: target, ReadOnly: true}, nil
}

// Builds the process environment: the manifest's variables first, then
// caller overrides, sorted for deterministic container specs.
func runEnv(appMan *manifest.Application, overrides []string) []string {
	env := make([]string, 0, len(appMan.Environment)+len(overrides))
	for k, v := range appMan.Environment {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return append(env, overrides...)
}

func inputPath(appMan *manifest.Application) string {
	if appMan.Input.Path != "" {
		return appMan.Input.Path
	}
	return paths.InputDir
}

func outputPath(appMan *manifest.Application) string {
	if appMan.Output.Path != "" {
		return appMan.Output.Path
	}
	return paths.OutputDir
}

// Decides whether the container gets a host device request.
//
// Devices are passed through only when the package asks for GPUs, was
// not built for the CPU platform, and the host actually has an
// accelerator. Anything else launches CPU-only.
func deviceRequest(pkgMan *manifest.Package, accelerator bool) bool {
	return pkgMan.Resources.GPU > 0 && pkgMan.PlatformConfig != "cpu" && accelerator
}

// Reports whether the host exposes an NVIDIA accelerator toolchain.
func hasAccelerator() bool {
	for _, tool := range []string{"nvidia-smi", "nvidia-ctk"} {
		if _, err := exec.LookPath(tool); err == nil {
			return true
		}
	}
	return false
}
