package config

import (
	"fmt"
	"os"
)

// Kind of application being packaged. Determines the build plan shape and
// the manifest's launch command.
type ApplicationType string

const (
	PythonModule ApplicationType = "python-module"
	PythonFile   ApplicationType = "python-file"
	CppCMake     ApplicationType = "cpp-cmake"
	Binary       ApplicationType = "binary"
)

// Accelerator tier a build or run targets.
type GPUClass string

const (
	DGPU GPUClass = "dgpu"
	IGPU GPUClass = "igpu"
	CPU  GPUClass = "cpu"
)

// Named optional capability gating extra build stages and install steps.
type Feature string

const (
	FeatureTorch       Feature = "torch"
	FeatureONNX        Feature = "onnx"
	FeatureHoloviz     Feature = "holoviz"
	FeatureDebug       Feature = "debug"
	FeatureHealthProbe Feature = "health-probe"
)

var knownFeatures = map[Feature]bool{
	FeatureTorch:       true,
	FeatureONNX:        true,
	FeatureHoloviz:     true,
	FeatureDebug:       true,
	FeatureHealthProbe: true,
}

// Compute resources requested for the packaged application. Recorded in
// the package manifest verbatim; no inference or rounding is applied.
type Resources struct {
	CPU            int   `yaml:"cpu" json:"cpu"`
	GPU            int   `yaml:"gpu" json:"gpu"`
	MemoryBytes    int64 `yaml:"memory-bytes" json:"memoryBytes"`
	GPUMemoryBytes int64 `yaml:"gpu-memory-bytes" json:"gpuMemoryBytes,omitempty"`
}

// A named model source staged into the package.
type Model struct {
	Name string
	Path string
}

// Immutable description of one packaging invocation, merged from CLI flags
// and the optional application config file. Validated once; never mutated
// afterwards.
type Config struct {
	ApplicationType   ApplicationType
	ApplicationPath   string
	Title             string
	Version           string // Application version, used in the image tag.
	SDKVersion        string // Empty selects the latest matrix version.
	Architecture      string // Target architecture (amd64, arm64).
	GPUClass          GPUClass
	DevicePlatform    string
	Includes          []Feature
	Resources         Resources
	Models            []Model
	AdditionalLibs    []string // Shared library paths staged into the image.
	DocsPath          string
	InputDataPath     string
	ConfigFilePath    string // Application config staged into the image.
	Tag               string
	Timeout           int // Application timeout in seconds; zero means none.
	CustomSDKArtifact string // Local SDK package overriding the matrix artifact.
	PipPackages       []string
}

// Validates the configuration before any resolution or staging happens.
//
// All failures are [ErrConfiguration]; detection happens here so that no
// external engine call is ever made for a configuration that cannot
// package (fail fast, no partial side effects).
func (c *Config) Validate() error {
	switch c.ApplicationType {
	case PythonModule, PythonFile, CppCMake, Binary:
	default:
		return fmt.Errorf("%w: unknown application type %q", ErrConfiguration, c.ApplicationType)
	}

	if c.ApplicationPath == "" {
		return fmt.Errorf("%w: application path is required", ErrConfiguration)
	}
	if _, err := os.Stat(c.ApplicationPath); err != nil {
		return fmt.Errorf("%w: application path: %w", ErrConfiguration, err)
	}

	switch c.GPUClass {
	case DGPU, IGPU, CPU:
	default:
		return fmt.Errorf("%w: unknown GPU class %q", ErrConfiguration, c.GPUClass)
	}

	if c.Architecture != "amd64" && c.Architecture != "arm64" {
		return fmt.Errorf("%w: unsupported architecture %q", ErrConfiguration, c.Architecture)
	}
	if c.DevicePlatform == "" {
		return fmt.Errorf("%w: device platform is required", ErrConfiguration)
	}
	if c.Tag == "" {
		return fmt.Errorf("%w: image tag is required", ErrConfiguration)
	}

	for _, f := range c.Includes {
		if !knownFeatures[f] {
			return fmt.Errorf("%w: unknown feature %q", ErrConfiguration, f)
		}
	}

	// The matrix artifact and a custom SDK artifact are mutually exclusive;
	// exactly one resolves per build. Pinning a matrix version while also
	// supplying a custom artifact is a conflict, not a precedence decision.
	if c.CustomSDKArtifact != "" && c.SDKVersion != "" {
		return fmt.Errorf("%w: --sdk-version and a custom SDK artifact are mutually exclusive", ErrConfiguration)
	}
	if c.CustomSDKArtifact != "" {
		if _, err := os.Stat(c.CustomSDKArtifact); err != nil {
			return fmt.Errorf("%w: custom SDK artifact: %w", ErrConfiguration, err)
		}
	}

	seen := make(map[string]string, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" || m.Path == "" {
			return fmt.Errorf("%w: model entries require both name and path", ErrConfiguration)
		}
		if prev, ok := seen[m.Name]; ok && prev != m.Path {
			return fmt.Errorf("%w: model name %q maps to both %q and %q", ErrConfiguration, m.Name, prev, m.Path)
		}
		seen[m.Name] = m.Path
	}

	if c.Resources.CPU < 0 || c.Resources.GPU < 0 || c.Resources.MemoryBytes < 0 || c.Resources.GPUMemoryBytes < 0 {
		return fmt.Errorf("%w: resource requests must be non-negative", ErrConfiguration)
	}

	return nil
}

// Reports whether the feature is enabled in this configuration.
func (c *Config) HasFeature(f Feature) bool {
	for _, enabled := range c.Includes {
		if enabled == f {
			return true
		}
	}
	return false
}
