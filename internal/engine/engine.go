package engine

import (
	"context"
	"fmt"
	"log/slog"
	goruntime "runtime"
	"syscall"

	containerd "github.com/containerd/containerd/v2/client"
	"github.com/containerd/containerd/v2/core/images"
	"github.com/containerd/errdefs"
	"github.com/containerd/platforms"
)

const (

	// Snapshotter used for container filesystems. fuse-overlayfs provides
	// overlay semantics without requiring root privileges (no mount(2)),
	// allowing hap to run as a regular user.
	snapshotter = "fuse-overlayfs"

	// OCI runtime shim for running containers.
	ociRuntime = "io.containerd.runc.v2"
)

// Manages the containerd client and provides the image and container
// operations the packager and the launcher are built on.
type Engine struct {
	client *containerd.Client
}

// Connects to the containerd socket at the given address.
//
// The namespace scopes all containerd operations to a single tenant. A
// connection failure surfaces as [ErrUnavailable] so callers can fall
// back to engine-free behavior. The engine must be closed when no
// longer needed.
func New(address, namespace string) (*Engine, error) {
	client, err := containerd.New(address, containerd.WithDefaultNamespace(namespace))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, address, err)
	}
	return &Engine{client: client}, nil
}

// Closes the containerd client connection.
func (e *Engine) Close() error {
	return e.client.Close()
}

// Pulls an image from its registry and unpacks it for the target
// platform.
//
// Already-present images are not re-fetched; containerd's content store
// deduplicates by digest. Pulling for a platform other than the host is
// supported, running such images requires QEMU / binfmt_misc support in
// the kernel.
func (e *Engine) Pull(ctx context.Context, ref, platform string) error {
	p, err := platforms.Parse(platform)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEngine, err)
	}

	_, err = e.client.Pull(ctx, ref,
		containerd.WithPlatform(platform),
		containerd.WithPlatformMatcher(platforms.Only(p)),
		containerd.WithPullUnpack,
		containerd.WithPullSnapshotter(snapshotter),
	)
	if err != nil {
		return fmt.Errorf("%w: pull %s: %w", ErrEngine, ref, err)
	}

	slog.Debug("image pulled", "ref", ref, "platform", platform)
	return nil
}

// Tags an image under an additional name.
//
// Updates the tag if it already exists.
func (e *Engine) Tag(ctx context.Context, source, tag string) error {
	is := e.client.ImageService()

	src, err := is.Get(ctx, source)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEngine, err)
	}

	img := images.Image{
		Name:   tag,
		Target: src.Target,
	}

	if _, err := is.Create(ctx, img); err != nil {
		if !errdefs.IsAlreadyExists(err) {
			return fmt.Errorf("%w: %w", ErrEngine, err)
		}
		if _, err := is.Update(ctx, img, "target"); err != nil {
			return fmt.Errorf("%w: %w", ErrEngine, err)
		}
	}

	return nil
}

// Reports whether an image with the given reference exists in the store.
func (e *Engine) HasImage(ctx context.Context, ref string) (bool, error) {
	_, err := e.client.ImageService().Get(ctx, ref)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	return true, nil
}

// Starts a container from an image in the store.
//
// The layers for the target platform must already be unpacked (Pull and
// Commit both unpack). A long-running task (sleep infinity) is started
// so that subsequent Exec calls have a running process to attach to.
// Any existing container with the same ID is removed first.
func (e *Engine) StartContainer(ctx context.Context, ref, id, platform string) (*Container, error) {
	c := &Container{
		client:   e.client,
		id:       id,
		platform: platform,
	}

	// Remove any stale container from a previous build with the same ID.
	c.remove(ctx)

	image, err := e.resolveImage(ctx, ref, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	ctr, err := c.create(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	if err := c.startTask(ctx, ctr); err != nil {
		ctr.Delete(ctx, containerd.WithSnapshotCleanup)
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}

	slog.Debug("container started", "id", id, "image", ref)

	return c, nil
}

// Removes an image and all containers created from it.
//
// Containers are discovered by querying containerd for records whose
// image field matches the reference. Each container's task is killed
// before the container and its snapshot are deleted.
func (e *Engine) RemoveImage(ctx context.Context, ref string) error {
	ctrs, err := e.client.Containers(ctx, fmt.Sprintf("image==%s", ref))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEngine, err)
	}

	for _, ctr := range ctrs {
		if task, taskErr := ctr.Task(ctx, nil); taskErr == nil {
			task.Kill(ctx, syscall.SIGKILL)
			task.Delete(ctx, containerd.WithProcessKill)
		}
		if err := ctr.Delete(ctx, containerd.WithSnapshotCleanup); err != nil && !errdefs.IsNotFound(err) {
			return fmt.Errorf("%w: %w", ErrEngine, err)
		}
	}

	if err := e.client.ImageService().Delete(ctx, ref); err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("%w: %w", ErrEngine, err)
	}

	slog.Debug("image removed", "ref", ref)
	return nil
}

// Looks up an image and selects the manifest for the given platform.
//
// Multi-platform images contain manifests for multiple architectures.
// This method selects one, so that subsequent operations target the
// correct architecture.
func (e *Engine) resolveImage(ctx context.Context, ref, platform string) (containerd.Image, error) {
	p, err := platforms.Parse(platform)
	if err != nil {
		return nil, err
	}

	img, err := e.client.ImageService().Get(ctx, ref)
	if err != nil {
		return nil, err
	}

	return containerd.NewImageWithPlatform(e.client, img, platforms.Only(p)), nil
}

// Returns a handle for an existing container.
//
// The container is not loaded or verified; the handle is a lightweight
// reference that resolves the container lazily on subsequent calls.
func (e *Engine) Container(id, platform string) *Container {
	return &Container{
		client:   e.client,
		id:       id,
		platform: platform,
	}
}

// Returns the default OCI platform for the host architecture.
func DefaultPlatform() string {
	return "linux/" + goruntime.GOARCH
}
