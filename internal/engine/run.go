package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/pkg/cio"
	"github.com/containerd/containerd/v2/pkg/oci"
	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// A bind mount from the host into a run container.
type Mount struct {
	Source   string
	Target   string
	ReadOnly bool
}

// Everything needed to run a packaged application once.
type RunSpec struct {
	Image       string
	ID          string
	Platform    string
	Command     []string // Overrides the image entrypoint when non-empty.
	Env         []string
	Mounts      []Mount
	WorkDir     string
	HostDevices bool // Expose host devices, required for GPU access.
	Keep        bool // Leave the exited container and its snapshot in place.
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
}

// Runs a container to completion and returns its exit code.
//
// The container is created from the image, the task is started with the
// given IO streams attached, and the call blocks until the process
// exits. When the context is cancelled the task is killed with SIGTERM
// and the context error is returned alongside the eventual exit code.
// The container and its snapshot are removed before returning unless
// the spec asks to keep them.
func (e *Engine) Run(ctx context.Context, spec *RunSpec) (int, error) {
	c := &Container{
		client:   e.client,
		id:       spec.ID,
		platform: spec.Platform,
	}
	c.remove(ctx)

	image, err := e.resolveImage(ctx, spec.Image, spec.Platform)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	ctr, err := e.client.NewContainer(ctx, spec.ID,
		containerd.WithImage(image),
		containerd.WithSnapshotter(snapshotter),
		containerd.WithNewSnapshot(spec.ID, image),
		containerd.WithRuntime(ociRuntime, nil),
		containerd.WithNewSpec(runSpecOpts(image, spec)...),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	defer func() {
		if !spec.Keep {
			ctr.Delete(context.WithoutCancel(ctx), containerd.WithSnapshotCleanup)
		}
	}()

	task, err := ctr.NewTask(ctx, cio.NewCreator(
		cio.WithStreams(spec.Stdin, spec.Stdout, spec.Stderr),
	))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	defer task.Delete(context.WithoutCancel(ctx), containerd.WithProcessKill)

	statusC, err := task.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	if err := task.Start(ctx); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	slog.Debug("application started", "id", spec.ID, "image", spec.Image)

	select {
	case exitStatus := <-statusC:
		code, _, err := exitStatus.Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrEngine, err)
		}
		return int(code), nil

	case <-ctx.Done():
		task.Kill(context.WithoutCancel(ctx), syscall.SIGTERM)
		<-statusC
		return 0, ctx.Err()
	}
}

// Assembles the OCI spec options for a run container.
func runSpecOpts(image containerd.Image, spec *RunSpec) []oci.SpecOpts {
	opts := []oci.SpecOpts{
		oci.WithDefaultSpecForPlatform(spec.Platform),
		oci.WithImageConfig(image),
		oci.WithHostNamespace(specs.NetworkNamespace),
		oci.WithHostResolvconf,
	}

	if len(spec.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(spec.Command...))
	}
	if spec.WorkDir != "" {
		opts = append(opts, oci.WithProcessCwd(spec.WorkDir))
	}
	if len(spec.Env) > 0 {
		opts = append(opts, oci.WithEnv(spec.Env))
	}
	if spec.HostDevices {
		opts = append(opts, oci.WithHostDevices, oci.WithAllDevicesAllowed)
	}

	if len(spec.Mounts) > 0 {
		mounts := make([]specs.Mount, 0, len(spec.Mounts))
		for _, m := range spec.Mounts {
			options := []string{"rbind"}
			if m.ReadOnly {
				options = append(options, "ro")
			} else {
				options = append(options, "rw")
			}
			mounts = append(mounts, specs.Mount{
				Type:        "bind",
				Source:      m.Source,
				Destination: m.Target,
				Options:     options,
			})
		}
		opts = append(opts, oci.WithMounts(mounts))
	}

	return opts
}
