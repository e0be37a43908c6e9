package tool

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cruciblehq/hap/internal/manifest"
	"github.com/cruciblehq/hap/internal/paths"
)

var ErrTool = errors.New("tool error")

// In-image tooling operating on the manifests baked into the package.
// The zero paths default to the conventional in-image locations; tests
// point them elsewhere.
type Tool struct {
	AppManifestPath string
	PkgManifestPath string
	ExportDir       string

	Stdout io.Writer
	Stderr io.Writer
}

func New(stdout, stderr io.Writer) *Tool {
	return &Tool{
		AppManifestPath: paths.AppManifestPath,
		PkgManifestPath: paths.PkgManifestPath,
		ExportDir:       paths.ExportDir,
		Stdout:          stdout,
		Stderr:          stderr,
	}
}

// Loads both manifests from their baked-in locations.
func (t *Tool) manifests() (*manifest.Application, *manifest.Package, error) {
	appJSON, err := os.ReadFile(t.AppManifestPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTool, err)
	}
	pkgJSON, err := os.ReadFile(t.PkgManifestPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTool, err)
	}

	appMan, err := manifest.ParseApplication(appJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTool, err)
	}
	pkgMan, err := manifest.ParsePackage(pkgJSON)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrTool, err)
	}

	return appMan, pkgMan, nil
}

// Prints the selected manifests as JSON. An empty selection prints
// both, application first.
func (t *Tool) Show(which string) error {
	appMan, pkgMan, err := t.manifests()
	if err != nil {
		return err
	}

	if which != "pkg" {
		appJSON, err := appMan.JSON()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTool, err)
		}
		fmt.Fprintln(t.Stdout, string(appJSON))
	}
	if which != "app" {
		pkgJSON, err := pkgMan.JSON()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrTool, err)
		}
		fmt.Fprintln(t.Stdout, string(pkgJSON))
	}
	return nil
}

// Prints the manifest environment contract, one KEY=value per line in
// key order, with secret-looking values redacted.
func (t *Tool) Env() error {
	appMan, _, err := t.manifests()
	if err != nil {
		return err
	}

	for _, entry := range redactedEnv(appMan.Environment) {
		fmt.Fprintln(t.Stdout, entry)
	}
	return nil
}
