package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/cruciblehq/hap/internal/artifact"
	"github.com/cruciblehq/hap/internal/config"
	"github.com/cruciblehq/hap/internal/packager"
)

// Represents the 'hap package' command.
type PackageCmd struct {
	Path string `arg:"" help:"Application file or directory to package." type:"path"`
	Tag  string `short:"t" required:"" help:"Image name, with an optional explicit tag."`

	Platform string `required:"" help:"Target device platform (e.g. x64-workstation, igx-orin-devkit)."`
	GPU      string `help:"GPU class the package targets." enum:"dgpu,igpu,cpu" default:"dgpu"`
	Arch     string `help:"Target architecture." enum:"amd64,arm64" default:"amd64"`

	Type       string `help:"Application type (python-module, python-file, cpp-cmake, binary); detected when omitted."`
	Title      string `help:"Human-readable application title."`
	AppVersion string `help:"Application version, used in the image tag."`

	SDKVersion  string `help:"SDK version to package against; defaults to the newest known."`
	SDKArtifact string `help:"Local SDK package installed instead of the released artifact." type:"path"`
	Artifacts   string `help:"Override the built-in artifact matrix file." type:"path"`

	AppConfig string            `help:"Application config YAML staged into the image." type:"path"`
	Docs      string            `help:"Documentation directory staged into the image." type:"path"`
	InputData string            `help:"Input data directory baked into the image." type:"path"`
	Model     map[string]string `help:"Model name to source path mappings." placeholder:"NAME=PATH"`
	Lib       []string          `help:"Additional shared library paths staged into the image." type:"path"`
	Pip       []string          `help:"Additional pinned pip packages (Python applications)."`
	Includes  []string          `help:"Optional features to include (torch, onnx, holoviz, debug, health-probe)."`

	CPU       int   `help:"CPUs the application requests."`
	GPUs      int   `help:"GPUs the application requests."`
	Memory    int64 `help:"Memory request in bytes."`
	GPUMemory int64 `help:"GPU memory request in bytes."`
	Timeout   int   `help:"Application timeout in seconds."`

	Output      string `short:"o" help:"Also export the image as an OCI archive to this path." type:"path"`
	KeepStaging bool   `help:"Keep the staging directory after a successful build."`
}

// Executes the package command.
func (c *PackageCmd) Run(ctx context.Context) error {
	cfg, err := c.buildConfig()
	if err != nil {
		return err
	}

	matrix, err := c.loadMatrix()
	if err != nil {
		return err
	}

	eng, err := connect()
	if err != nil {
		return err
	}
	defer eng.Close()

	p := packager.New(packager.NewEngineBuilder(eng), matrix)
	p.KeepStaging = c.KeepStaging

	result, err := p.Package(ctx, cfg)
	if err != nil {
		return err
	}

	if c.Output != "" {
		if err := eng.Export(ctx, result.Tag, c.Output, "linux/"+cfg.Architecture); err != nil {
			return err
		}
	}

	fmt.Println(result.Tag)
	return nil
}

// Assembles the packaging configuration from flags and the optional
// application config file.
func (c *PackageCmd) buildConfig() (*config.Config, error) {
	appType := config.ApplicationType(c.Type)
	if c.Type == "" {
		detected, err := config.DetectApplicationType(c.Path)
		if err != nil {
			return nil, err
		}
		appType = detected
	}

	features := make([]config.Feature, 0, len(c.Includes))
	for _, f := range c.Includes {
		features = append(features, config.Feature(f))
	}

	models := make([]config.Model, 0, len(c.Model))
	for name, path := range c.Model {
		models = append(models, config.Model{Name: name, Path: path})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	cfg := &config.Config{
		ApplicationType:   appType,
		ApplicationPath:   c.Path,
		Title:             c.Title,
		Version:           c.AppVersion,
		SDKVersion:        c.SDKVersion,
		Architecture:      c.Arch,
		GPUClass:          config.GPUClass(c.GPU),
		DevicePlatform:    c.Platform,
		Includes:          features,
		Models:            models,
		AdditionalLibs:    c.Lib,
		DocsPath:          c.Docs,
		InputDataPath:     c.InputData,
		ConfigFilePath:    c.AppConfig,
		Tag:               c.Tag,
		Timeout:           c.Timeout,
		CustomSDKArtifact: c.SDKArtifact,
		PipPackages:       c.Pip,
		Resources: config.Resources{
			CPU:            c.CPU,
			GPU:            c.GPUs,
			MemoryBytes:    c.Memory,
			GPUMemoryBytes: c.GPUMemory,
		},
	}

	if c.AppConfig != "" {
		fc, err := config.ReadFile(c.AppConfig)
		if err != nil {
			return nil, err
		}
		cfg.ApplyFile(fc)
	}

	return cfg, nil
}

func (c *PackageCmd) loadMatrix() (*artifact.Matrix, error) {
	if c.Artifacts != "" {
		return artifact.LoadFile(c.Artifacts)
	}
	return artifact.Load()
}
