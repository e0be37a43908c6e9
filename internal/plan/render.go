package plan

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/cruciblehq/hap/internal/artifact"
	"github.com/cruciblehq/hap/internal/config"
	"github.com/cruciblehq/hap/internal/paths"
)

// Renders the build plan for a validated configuration and a resolved
// artifact set.
//
// Rendering is pure: it inspects the configuration and resolution but
// touches neither the filesystem nor any engine, so the same inputs
// always produce the same plan. Stage order is builder (C++ only),
// base, one collection stage per heavyweight feature, release.
func Render(cfg *config.Config, res *artifact.Resolution) (*Plan, error) {
	for _, f := range cfg.Includes {
		switch f {
		case config.FeatureTorch, config.FeatureONNX, config.FeatureHoloviz,
			config.FeatureDebug, config.FeatureHealthProbe:
		default:
			return nil, fmt.Errorf("%w: unknown feature %q", ErrPlan, f)
		}
	}

	p := &Plan{Target: StageRelease}

	if cfg.ApplicationType == config.CppCMake {
		p.Stages = append(p.Stages, builderStage(res.BuildImage))
	}

	base, err := baseStage(cfg, res)
	if err != nil {
		return nil, err
	}
	p.Stages = append(p.Stages, base)

	// Fixed iteration order keeps rendering deterministic regardless of
	// the order features were requested in.
	for _, f := range []config.Feature{config.FeatureTorch, config.FeatureONNX} {
		if !cfg.HasFeature(f) {
			continue
		}
		stage, err := collectionStage(f, res.BaseImage, cfg.Architecture)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, stage)
	}

	release, err := releaseStage(cfg, res)
	if err != nil {
		return nil, err
	}
	p.Stages = append(p.Stages, release)

	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Builds the compilation stage for CMake applications. The build image
// carries the toolchain and SDK headers; the compiled tree is installed
// under /install and copied into the release stage from there.
func builderStage(buildImage string) Stage {
	return Stage{
		Name: StageBuilder,
		From: buildImage,
		Copies: []Copy{
			{Src: paths.ContextApp, Dst: "/src"},
		},
		Steps: []InstallStep{
			{
				ID: "cmake:configure",
				Run: "cmake -S /src -B /build -D CMAKE_BUILD_TYPE=Release" +
					" -D CMAKE_INSTALL_PREFIX=/install",
			},
			{
				ID:  "cmake:build",
				Run: "cmake --build /build --parallel && cmake --install /build",
			},
		},
	}
}

// Builds the base stage: resolved base image plus the SDK install and
// the interpreter the application type needs.
func baseStage(cfg *config.Config, res *artifact.Resolution) (Stage, error) {
	s := Stage{
		Name: StageBase,
		From: res.BaseImage,
		Steps: []InstallStep{
			{
				ID: "layout",
				Run: "mkdir -p " + paths.AppDir + " " + paths.ModelDir + " " +
					paths.LibDir + " " + path.Dir(paths.HealthProbePath) + " " +
					path.Dir(paths.AppManifestPath) + " " + paths.WorkDir,
			},
		},
	}

	python := cfg.ApplicationType == config.PythonModule || cfg.ApplicationType == config.PythonFile
	bundled := python && bundledInterpreter(cfg)

	// torch ships its own interpreter; installing a second python on top
	// of it breaks the bundled site-packages resolution. With no pip in
	// this stage, wheel installs move to the release stage, where the
	// bundled toolchain has been copied in.
	if python && !bundled {
		s.Steps = append(s.Steps, aptInstall("python3", "python3-pip"))
	}

	switch {
	case cfg.CustomSDKArtifact != "":
		name := filepath.Base(cfg.CustomSDKArtifact)
		switch filepath.Ext(name) {
		case ".whl":
			if bundled {
				break
			}
			s.Copies = append(s.Copies, Copy{Src: path.Join(paths.ContextSDK, name), Dst: "/tmp/" + name})
			s.Steps = append(s.Steps, InstallStep{
				ID:  "sdk:custom",
				Run: "pip install --no-cache-dir /tmp/" + name + " && rm /tmp/" + name,
			})
		case ".deb":
			s.Copies = append(s.Copies, Copy{Src: path.Join(paths.ContextSDK, name), Dst: "/tmp/" + name})
			s.Steps = append(s.Steps, InstallStep{
				ID:  "sdk:custom",
				Run: "apt-get update && apt-get install -y --no-install-recommends /tmp/" + name + " && rm /tmp/" + name + " && rm -rf /var/lib/apt/lists/*",
			})
		default:
			return Stage{}, fmt.Errorf("%w: custom SDK artifact %q is neither a wheel nor a debian package", ErrPlan, name)
		}

	case python:
		if bundled {
			break
		}
		s.Steps = append(s.Steps, InstallStep{
			ID:  "sdk:wheel",
			Run: "pip install --no-cache-dir hap==" + res.WheelVersion,
		})

	default:
		s.Steps = append(s.Steps, InstallStep{
			ID:  "sdk:debian",
			Run: "apt-get update && apt-get install -y --no-install-recommends hap=" + res.DebianVersion + " && rm -rf /var/lib/apt/lists/*",
		})
	}

	return s, nil
}

// Builds the release stage: everything the final image ships, copied
// from the context and the earlier stages, plus the feature install
// steps deduplicated by step ID.
func releaseStage(cfg *config.Config, res *artifact.Resolution) (Stage, error) {
	s := Stage{
		Name:      StageRelease,
		From:      StageBase,
		FromStage: true,
		Env: map[string]string{
			paths.EnvInputPath:       paths.InputDir,
			paths.EnvOutputPath:      paths.OutputDir,
			paths.EnvModelPath:       paths.ModelDir,
			paths.EnvAppManifestPath: paths.AppManifestPath,
			paths.EnvPkgManifestPath: paths.PkgManifestPath,
		},
	}

	if cfg.ApplicationType == config.CppCMake {
		s.Copies = append(s.Copies, Copy{Stage: StageBuilder, Src: "/install", Dst: paths.AppDir})
	} else {
		s.Copies = append(s.Copies, Copy{Src: paths.ContextApp, Dst: paths.AppDir})
	}

	if cfg.HasFeature(config.FeatureTorch) {
		s.Copies = append(s.Copies, Copy{Stage: "torch", Src: "/opt/torch", Dst: paths.LibDir + "/torch"})
	}
	if cfg.HasFeature(config.FeatureONNX) {
		s.Copies = append(s.Copies, Copy{Stage: "onnx", Src: "/opt/onnxruntime", Dst: paths.LibDir + "/onnxruntime"})
	}

	seen := make(map[string]bool, len(cfg.Models))
	for _, m := range cfg.Models {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		s.Copies = append(s.Copies, Copy{
			Src: path.Join(paths.ContextModels, m.Name),
			Dst: paths.ModelDir + "/" + m.Name,
		})
	}

	if cfg.ConfigFilePath != "" {
		s.Copies = append(s.Copies, Copy{Src: paths.ContextConfig, Dst: paths.ConfigPath})
		s.Env[paths.EnvConfigPath] = paths.ConfigPath
	}
	if cfg.DocsPath != "" {
		s.Copies = append(s.Copies, Copy{Src: paths.ContextDocs, Dst: paths.DocsDir})
		s.Env[paths.EnvDocsPath] = paths.DocsDir
	}
	if cfg.InputDataPath != "" {
		s.Copies = append(s.Copies, Copy{Src: paths.ContextInput, Dst: paths.InputDir})
	}
	// All additional libraries are staged under one lib/ tree, so a
	// single copy covers them.
	if len(cfg.AdditionalLibs) > 0 {
		s.Copies = append(s.Copies, Copy{Src: paths.ContextLib, Dst: paths.LibDir})
	}

	s.Copies = append(s.Copies,
		Copy{Src: paths.ContextAppManifest, Dst: paths.AppManifestPath},
		Copy{Src: paths.ContextPkgManifest, Dst: paths.PkgManifestPath},
		Copy{Src: paths.ContextTool, Dst: paths.ToolPath},
	)

	python := cfg.ApplicationType == config.PythonModule || cfg.ApplicationType == config.PythonFile
	if python {
		pip := "pip"
		// When a feature bundles the interpreter, the base stage carries
		// no pip; wheel installs run here against the bundled toolchain,
		// which the stage copies have already put in place.
		if bundledInterpreter(cfg) {
			pip = bundledPip
			switch {
			case cfg.CustomSDKArtifact != "" && filepath.Ext(cfg.CustomSDKArtifact) == ".whl":
				name := filepath.Base(cfg.CustomSDKArtifact)
				s.Copies = append(s.Copies, Copy{Src: path.Join(paths.ContextSDK, name), Dst: "/tmp/" + name})
				s.Steps = append(s.Steps, InstallStep{
					ID:  "sdk:custom",
					Run: pip + " install --no-cache-dir /tmp/" + name + " && rm /tmp/" + name,
				})
			case cfg.CustomSDKArtifact == "":
				s.Steps = append(s.Steps, InstallStep{
					ID:  "sdk:wheel",
					Run: pip + " install --no-cache-dir hap==" + res.WheelVersion,
				})
			}
		}
		s.Copies = append(s.Copies, Copy{Src: paths.ContextRequirements, Dst: paths.RequirementsPath})
		s.Steps = append(s.Steps, InstallStep{
			ID:  "pip:requirements",
			Run: pip + " install --no-cache-dir -r " + paths.RequirementsPath,
		})
	}

	// Vendor performance libraries only exist for the arm64 discrete-GPU
	// target.
	if cfg.Architecture == "arm64" && cfg.GPUClass == config.DGPU {
		s.Steps = append(s.Steps, aptInstall("nvpl"))
	}

	ids := make(map[string]bool)
	for _, f := range cfg.Includes {
		for _, step := range featureSteps(f, cfg, res.HealthProbe) {
			if ids[step.ID] {
				continue
			}
			ids[step.ID] = true
			s.Steps = append(s.Steps, step)
		}
	}

	return s, nil
}

// Pip from the torch collection tree, used when the feature's bundled
// interpreter replaces the distribution python.
const bundledPip = paths.LibDir + "/torch/bin/pip"

// Reports whether an enabled feature ships its own Python interpreter.
func bundledInterpreter(cfg *config.Config) bool {
	for _, f := range cfg.Includes {
		if collectionFeatures[f].bundlesInterpreter {
			return true
		}
	}
	return false
}
