package manifest

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/cruciblehq/hap/internal/config"
	"github.com/cruciblehq/hap/internal/paths"
)

// Produces the application and package manifests for a validated
// configuration.
//
// The command is derived deterministically from the application type; the
// resource block is copied verbatim from the configuration; liveness and
// readiness probes are present only when the health-probe feature is
// requested. Model name collisions fail here even if earlier validation
// was skipped, because an image with an ambiguous model map is unusable.
func Generate(cfg *config.Config, sdkVersion string) (*Application, *Package, error) {
	command, err := deriveCommand(cfg)
	if err != nil {
		return nil, nil, err
	}

	app := &Application{
		APIVersion:       APIVersion,
		Command:          command,
		Environment:      environment(cfg),
		Input:            IO{Path: paths.InputDir},
		Output:           IO{Path: paths.OutputDir},
		SDK:              "hap",
		SDKVersion:       sdkVersion,
		Timeout:          cfg.Timeout,
		WorkingDirectory: paths.WorkDir,
	}
	if cfg.DocsPath != "" {
		app.DocsPath = paths.DocsDir
	}
	if cfg.HasFeature(config.FeatureHealthProbe) {
		app.Liveness = &Probe{
			Command:       []string{paths.HealthProbePath, "-addr=localhost:8765"},
			PeriodSeconds: 10,
		}
		app.Readiness = &Probe{
			Command:       []string{paths.HealthProbePath, "-addr=localhost:8765"},
			PeriodSeconds: 5,
		}
	}

	models := make(map[string]string, len(cfg.Models))
	sources := make(map[string]string, len(cfg.Models))
	for _, m := range cfg.Models {
		if src, ok := sources[m.Name]; ok && src != m.Path {
			return nil, nil, fmt.Errorf("%w: model name %q maps to both %q and %q",
				config.ErrConfiguration, m.Name, src, m.Path)
		}
		sources[m.Name] = m.Path
		models[m.Name] = path.Join(paths.ModelDir, m.Name)
	}

	pkg := &Package{
		APIVersion:      APIVersion,
		ApplicationRoot: paths.AppDir,
		ModelRoot:       paths.ModelDir,
		Models:          models,
		Resources:       cfg.Resources,
		PlatformConfig:  string(cfg.GPUClass),
	}

	return app, pkg, nil
}

// Derives the launch command from the application type.
func deriveCommand(cfg *config.Config) ([]string, error) {
	switch cfg.ApplicationType {
	case config.PythonModule:
		return []string{"python3", paths.AppDir}, nil

	case config.PythonFile:
		entry, err := config.ApplicationEntry(cfg.ApplicationPath, cfg.ApplicationType)
		if err != nil {
			return nil, err
		}
		return []string{"python3", path.Join(paths.AppDir, entry)}, nil

	case config.CppCMake:
		// The compiled binary is installed under the project's name.
		name := filepath.Base(filepath.Clean(cfg.ApplicationPath))
		return []string{path.Join(paths.AppDir, name)}, nil

	case config.Binary:
		entry, err := config.ApplicationEntry(cfg.ApplicationPath, cfg.ApplicationType)
		if err != nil {
			return nil, err
		}
		return []string{path.Join(paths.AppDir, entry)}, nil
	}

	return nil, fmt.Errorf("%w: unknown application type %q", config.ErrConfiguration, cfg.ApplicationType)
}

// Builds the environment map declared in the application manifest.
func environment(cfg *config.Config) map[string]string {
	env := map[string]string{
		paths.EnvInputPath:       paths.InputDir,
		paths.EnvOutputPath:      paths.OutputDir,
		paths.EnvModelPath:       paths.ModelDir,
		paths.EnvConfigPath:      paths.ConfigPath,
		paths.EnvAppManifestPath: paths.AppManifestPath,
		paths.EnvPkgManifestPath: paths.PkgManifestPath,
	}
	if cfg.DocsPath != "" {
		env[paths.EnvDocsPath] = paths.DocsDir
	}
	return env
}
