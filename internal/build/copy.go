package build

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cruciblehq/hap/internal/engine"
	"github.com/cruciblehq/hap/internal/plan"
)

// Executes a copy operation, transferring files into the stage
// container.
//
// Context sources are resolved relative to the staging directory.
// Cross-stage sources are read from the named stage container's
// filesystem and piped straight into the target container.
func executeCopy(ctx context.Context, ctr *engine.Container, c plan.Copy, stagingDir string, stages map[string]*engine.Container) error {
	destDir := filepath.Dir(c.Dst)
	if destDir != "" {
		if err := ctr.MkdirAll(ctx, destDir); err != nil {
			return fmt.Errorf("%w: %w", ErrCopy, err)
		}
	}

	if c.Stage != "" {
		return executeStageCopy(ctx, ctr, stages, c)
	}

	return executeContextCopy(ctx, ctr, c, stagingDir)
}

// Copies a file or directory from the staging directory into the
// container.
func executeContextCopy(ctx context.Context, ctr *engine.Container, c plan.Copy, stagingDir string) error {
	src := filepath.Join(stagingDir, c.Src)

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	slog.Debug("copy", "src", c.Src, "dest", c.Dst, "dir", info.IsDir())

	pr, pw := io.Pipe()

	go func() {
		tw := tar.NewWriter(pw)
		var writeErr error

		if info.IsDir() {
			writeErr = writeDirToTar(tw, src, filepath.Base(c.Dst))
		} else {
			writeErr = writeFileToTar(tw, src, filepath.Base(c.Dst))
		}

		tw.Close()
		pw.CloseWithError(writeErr)
	}()

	if err := ctr.CopyTo(ctx, pr, filepath.Dir(c.Dst)); err != nil {
		// Unblock the tar writer goroutine.
		pr.CloseWithError(err)
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	return nil
}

// Copies a path from a named stage container into the target container.
//
// The tar stream is piped directly from the source container's CopyFrom
// to the target container's CopyTo.
func executeStageCopy(ctx context.Context, ctr *engine.Container, stages map[string]*engine.Container, c plan.Copy) error {
	srcCtr, ok := stages[c.Stage]
	if !ok {
		return fmt.Errorf("%w: unknown stage %q", ErrCopy, c.Stage)
	}

	slog.Debug("cross-stage copy", "stage", c.Stage, "src", c.Src, "dest", c.Dst)

	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		errc <- srcCtr.CopyFrom(ctx, pw, c.Src)
		pw.Close()
	}()

	if err := ctr.CopyTo(ctx, pr, filepath.Dir(c.Dst)); err != nil {
		// Unblock the source container's writer before collecting its result.
		pr.CloseWithError(err)
		<-errc
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	if err := <-errc; err != nil {
		return fmt.Errorf("%w: %w", ErrCopy, err)
	}

	return nil
}

// Writes a single file to a tar writer with the given archive name.
func writeFileToTar(tw *tar.Writer, hostPath, name string) error {
	info, err := os.Stat(hostPath)
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(tw, f)
	return err
}

// Writes a directory tree to a tar writer rooted at the given archive
// prefix.
func writeDirToTar(tw *tar.Writer, hostDir, prefix string) error {
	return filepath.WalkDir(hostDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(hostDir, path)
		if err != nil {
			return err
		}

		archivePath := filepath.ToSlash(filepath.Join(prefix, relPath))
		return writeTarEntry(tw, path, archivePath, d)
	})
}

// Writes a single file or directory entry to a tar writer.
func writeTarEntry(tw *tar.Writer, hostPath, archivePath string, d os.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	header.Name = archivePath

	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	if info.Mode().IsRegular() {
		f, err := os.Open(hostPath)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	}

	return nil
}
