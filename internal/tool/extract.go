package tool

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cruciblehq/hap/internal/paths"
)

// Copies package contents for one scope into the export mount.
//
// The launcher (or a plain engine run) bind-mounts a host directory at
// the export location; the scope selects what lands in it: app, models,
// docs, config, or all. A named scope the package has no content for is
// an error, as is a missing mount, so a silent no-op extraction cannot
// be mistaken for success. With "all", entries the package lacks are
// skipped, but exporting nothing at all is still an error.
func (t *Tool) Extract(scope string) error {
	if scope == "" {
		scope = "all"
	}

	info, err := os.Stat(t.ExportDir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: no export directory mounted at %s", ErrTool, t.ExportDir)
	}

	appMan, pkgMan, err := t.manifests()
	if err != nil {
		return err
	}

	exports := []struct {
		entry string
		src   string
	}{
		{"app", pkgMan.ApplicationRoot},
		{"models", pkgMan.ModelRoot},
		{"docs", appMan.DocsPath},
		{"config", appMan.Environment[paths.EnvConfigPath]},
	}

	if scope != "all" {
		known := false
		for _, e := range exports {
			if e.entry == scope {
				known = true
			}
		}
		if !known {
			return fmt.Errorf("%w: unknown extract scope %q", ErrTool, scope)
		}
	}

	exported := 0
	for _, e := range exports {
		if scope != "all" && e.entry != scope {
			continue
		}
		if e.src == "" {
			if scope == "all" {
				continue
			}
			return fmt.Errorf("%w: package has no %s to export", ErrTool, e.entry)
		}
		if _, err := os.Stat(e.src); err != nil {
			if scope == "all" {
				continue
			}
			return fmt.Errorf("%w: %s: %w", ErrTool, e.entry, err)
		}
		dest := filepath.Join(t.ExportDir, e.entry)
		if err := os.MkdirAll(dest, paths.DefaultDirMode); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTool, e.entry, err)
		}
		slog.Info("exporting", "entry", e.entry, "src", e.src)
		if err := exportPath(e.src, dest); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrTool, e.entry, err)
		}
		exported++
	}

	if exported == 0 {
		return fmt.Errorf("%w: nothing to extract, package has no exportable content", ErrTool)
	}
	return nil
}

// Copies a file or directory tree into an export entry.
func exportPath(src, destDir string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return exportFile(src, filepath.Join(destDir, filepath.Base(src)), info.Mode())
	}

	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)

		if d.IsDir() {
			return os.MkdirAll(target, paths.DefaultDirMode)
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return exportFile(path, target, fi.Mode())
	})
}

func exportFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
