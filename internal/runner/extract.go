package runner

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cruciblehq/hap/internal/engine"
	"github.com/cruciblehq/hap/internal/manifest"
	"github.com/cruciblehq/hap/internal/paths"
)

// Selects which parts of a package to extract.
type Selection struct {
	App       bool
	Models    bool
	Docs      bool
	Config    bool
	Manifests bool
}

func (s Selection) empty() bool {
	return !s.App && !s.Models && !s.Docs && !s.Config && !s.Manifests
}

// Copies manifest-declared contents of a package out of the image into
// a host directory.
//
// The destination directory must already exist and be writable; it is
// never created, so a typoed path fails instead of silently spraying
// files. Manifests are written straight from the image labels; other
// selections stream out of a short-lived container as tar archives. A
// selection the package has no content for is an error, not a no-op.
func (r *Runner) Extract(ctx context.Context, image string, sel Selection, destDir string) error {
	if sel.empty() {
		return fmt.Errorf("%w: nothing selected to extract", ErrLaunch)
	}

	if err := checkWritableDir(destDir); err != nil {
		return err
	}

	appMan, pkgMan, err := r.Manifests(ctx, image)
	if err != nil {
		return err
	}

	if sel.Manifests {
		if err := writeManifestFiles(destDir, appMan, pkgMan); err != nil {
			return fmt.Errorf("%w: %w", ErrLaunch, err)
		}
	}

	srcs := containerSources(sel, appMan, pkgMan)
	if len(srcs) == 0 {
		if sel.Manifests {
			return nil
		}
		return fmt.Errorf("%w: package has nothing to extract for this selection", ErrLaunch)
	}

	id := "hap-extract-" + uuid.NewString()
	ctr, err := r.eng.StartContainer(ctx, image, id, engine.DefaultPlatform())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	defer ctr.Destroy(ctx)

	for _, src := range srcs {
		slog.Info("extracting", "path", src, "dest", destDir)
		if err := copyOut(ctx, ctr, src, destDir); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrLaunch, src, err)
		}
	}

	return nil
}

// Resolves the selection to in-image paths. Selections the manifests
// declare no content for are dropped.
func containerSources(sel Selection, appMan *manifest.Application, pkgMan *manifest.Package) []string {
	var srcs []string

	if sel.App {
		root := pkgMan.ApplicationRoot
		if root == "" {
			root = paths.AppDir
		}
		srcs = append(srcs, root)
	}
	if sel.Models && len(pkgMan.Models) > 0 {
		root := pkgMan.ModelRoot
		if root == "" {
			root = paths.ModelDir
		}
		srcs = append(srcs, root)
	}
	if sel.Docs && appMan.DocsPath != "" {
		srcs = append(srcs, appMan.DocsPath)
	}
	if sel.Config {
		if p := appMan.Environment[paths.EnvConfigPath]; p != "" {
			srcs = append(srcs, p)
		}
	}

	return srcs
}

// Writes the label-carried manifests as JSON files into the
// destination.
func writeManifestFiles(destDir string, appMan *manifest.Application, pkgMan *manifest.Package) error {
	appJSON, err := appMan.JSON()
	if err != nil {
		return err
	}
	pkgJSON, err := pkgMan.JSON()
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(destDir, "app.json"), appJSON, paths.DefaultFileMode); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(destDir, "pkg.json"), pkgJSON, paths.DefaultFileMode)
}

// Streams a container path into the destination directory.
func copyOut(ctx context.Context, ctr *engine.Container, src, destDir string) error {
	pr, pw := io.Pipe()

	errc := make(chan error, 1)
	go func() {
		errc <- ctr.CopyFrom(ctx, pw, src)
		pw.Close()
	}()

	if err := untar(pr, destDir); err != nil {
		// Unblock the writer before collecting its result.
		pr.CloseWithError(err)
		<-errc
		return err
	}
	return <-errc
}

// Verifies that dir exists, is a directory, and is writable.
func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("%w: destination: %w", ErrLaunch, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: destination %q is not a directory", ErrLaunch, dir)
	}

	probe, err := os.CreateTemp(dir, ".hap-write-probe-*")
	if err != nil {
		return fmt.Errorf("%w: destination %q is not writable: %w", ErrLaunch, dir, err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return nil
}

// Unpacks a tar stream into a host directory.
//
// Entry names are cleaned and must stay inside the destination; links
// and device nodes are skipped.
func untar(r io.Reader, destDir string) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := filepath.Clean(hdr.Name)
		if name == ".." || strings.HasPrefix(name, ".."+string(os.PathSeparator)) || filepath.IsAbs(name) {
			return fmt.Errorf("archive entry %q escapes the destination", hdr.Name)
		}
		target := filepath.Join(destDir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, paths.DefaultDirMode); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), paths.DefaultDirMode); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		default:
			slog.Debug("skipping archive entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}
