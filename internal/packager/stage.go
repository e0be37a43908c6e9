package packager

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/cruciblehq/hap/internal/config"
	"github.com/cruciblehq/hap/internal/manifest"
	"github.com/cruciblehq/hap/internal/paths"
)

// Assembles the build context in a fresh staging directory.
//
// Every file the rendered plan copies from the context is placed at its
// context-relative location: the application tree, models by name, the
// optional docs, input, lib, and config entries, the generated
// manifests, the pip requirements, the in-image tooling binary, and the
// custom SDK artifact when one is configured.
func (p *Packager) stage(cfg *config.Config, appMan *manifest.Application, pkgMan *manifest.Package) (string, error) {
	dir := filepath.Join(paths.Staging(), uuid.NewString())
	if err := os.MkdirAll(dir, paths.DefaultDirMode); err != nil {
		return "", err
	}

	if err := stageApplication(cfg, dir); err != nil {
		return "", err
	}

	for _, m := range cfg.Models {
		dst := filepath.Join(dir, paths.ContextModels, m.Name)
		if err := copyPath(m.Path, dst); err != nil {
			return "", fmt.Errorf("model %q: %w", m.Name, err)
		}
	}

	optional := []struct {
		src string
		dst string
	}{
		{cfg.DocsPath, paths.ContextDocs},
		{cfg.InputDataPath, paths.ContextInput},
		{cfg.ConfigFilePath, paths.ContextConfig},
	}
	for _, o := range optional {
		if o.src == "" {
			continue
		}
		if err := copyPath(o.src, filepath.Join(dir, o.dst)); err != nil {
			return "", err
		}
	}

	for _, lib := range cfg.AdditionalLibs {
		dst := filepath.Join(dir, paths.ContextLib, filepath.Base(lib))
		if err := copyPath(lib, dst); err != nil {
			return "", fmt.Errorf("lib %q: %w", lib, err)
		}
	}

	if cfg.CustomSDKArtifact != "" {
		dst := filepath.Join(dir, paths.ContextSDK, filepath.Base(cfg.CustomSDKArtifact))
		if err := copyPath(cfg.CustomSDKArtifact, dst); err != nil {
			return "", err
		}
	}

	if err := writeManifests(dir, appMan, pkgMan); err != nil {
		return "", err
	}

	python := cfg.ApplicationType == config.PythonModule || cfg.ApplicationType == config.PythonFile
	if python {
		if err := writeRequirements(dir, cfg.PipPackages); err != nil {
			return "", err
		}
	}

	if err := stageToolBinary(dir); err != nil {
		return "", err
	}

	return dir, nil
}

// Stages the application source under the context's app entry. A
// single-file application is placed inside the app directory; a
// directory application becomes the directory itself.
func stageApplication(cfg *config.Config, dir string) error {
	appDst := filepath.Join(dir, paths.ContextApp)

	info, err := os.Stat(cfg.ApplicationPath)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return copyPath(cfg.ApplicationPath, appDst)
	}

	if err := os.MkdirAll(appDst, paths.DefaultDirMode); err != nil {
		return err
	}
	return copyPath(cfg.ApplicationPath, filepath.Join(appDst, filepath.Base(cfg.ApplicationPath)))
}

// Writes the generated manifests into the context's map entry.
func writeManifests(dir string, appMan *manifest.Application, pkgMan *manifest.Package) error {
	appJSON, err := appMan.JSON()
	if err != nil {
		return err
	}
	pkgJSON, err := pkgMan.JSON()
	if err != nil {
		return err
	}

	appPath := filepath.Join(dir, paths.ContextAppManifest)
	if err := os.MkdirAll(filepath.Dir(appPath), paths.DefaultDirMode); err != nil {
		return err
	}
	if err := os.WriteFile(appPath, appJSON, paths.DefaultFileMode); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, paths.ContextPkgManifest), pkgJSON, paths.DefaultFileMode)
}

// Writes the pinned pip requirements for Python application types. The
// file is written even when no packages are configured so the plan's
// copy always has a source.
func writeRequirements(dir string, packages []string) error {
	path := filepath.Join(dir, paths.ContextRequirements)
	if err := os.MkdirAll(filepath.Dir(path), paths.DefaultDirMode); err != nil {
		return err
	}

	var b strings.Builder
	for _, pkg := range packages {
		b.WriteString(pkg)
		b.WriteByte('\n')
	}
	return os.WriteFile(path, []byte(b.String()), paths.DefaultFileMode)
}

// Stages the in-image tooling binary that becomes the released image's
// entrypoint.
//
// The binary is looked up next to the running executable first, then on
// PATH. Cross-architecture builds expect a binary matching the target
// to be installed alongside hap.
func stageToolBinary(dir string) error {
	src, err := findToolBinary()
	if err != nil {
		return err
	}

	dst := filepath.Join(dir, paths.ContextTool)
	if err := os.MkdirAll(filepath.Dir(dst), paths.DefaultDirMode); err != nil {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Chmod(dst, 0755)
}

func findToolBinary() (string, error) {
	self, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(self), "hap-tool")
		if _, statErr := os.Stat(candidate); statErr == nil {
			return candidate, nil
		}
	}

	path, err := exec.LookPath("hap-tool")
	if err != nil {
		return "", fmt.Errorf("hap-tool binary not found next to the executable or on PATH: %w", err)
	}
	return path, nil
}

// Copies a file or directory tree, preserving file modes.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if err := os.MkdirAll(filepath.Dir(dst), paths.DefaultDirMode); err != nil {
			return err
		}
		return copyFile(src, dst)
	}

	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, paths.DefaultDirMode)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
