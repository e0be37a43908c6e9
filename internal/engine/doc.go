// Package engine manages images and containers backed by containerd.
//
// An [Engine] connects to a containerd daemon and provides image pulls,
// tagging, export, and container creation. Build stages run as
// long-lived containers whose filesystem changes are committed back to
// the image store; packaged applications run as one-shot containers
// with attached IO and host mounts.
//
// Each [Container] wraps a running containerd task. Commands can be
// executed inside the container, files can be copied in and out as tar
// streams, and the filesystem state can be committed as a new image.
// When the container is no longer needed it should be destroyed to
// release its snapshot and task resources.
//
// Example usage:
//
//	eng, err := engine.New("/run/containerd/containerd.sock", "hap")
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//
//	if err := eng.Pull(ctx, "ghcr.io/cruciblehq/hap-base:3.2.0-dgpu", "linux/amd64"); err != nil {
//	    return err
//	}
//
//	ctr, err := eng.StartContainer(ctx, "ghcr.io/cruciblehq/hap-base:3.2.0-dgpu", "stage-1", "linux/amd64")
//	if err != nil {
//	    return err
//	}
//	defer ctr.Destroy(ctx)
//
//	if _, err := ctr.Exec(ctx, "echo hello", nil, ""); err != nil {
//	    return err
//	}
//
//	if err := ctr.Commit(ctx, "my-app:1.0", nil); err != nil {
//	    return err
//	}
package engine
