package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Application config file contents, read from the YAML file the
// application ships alongside its source. Contributes metadata and
// resource requests the CLI flags do not carry.
type FileConfig struct {
	Application struct {
		Title       string   `yaml:"title"`
		Version     string   `yaml:"version"`
		PipPackages []string `yaml:"pip-packages"`
	} `yaml:"application"`
	Resources Resources `yaml:"resources"`
}

// Reads and parses an application config file.
func ReadFile(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: application config: %w", ErrConfiguration, err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("%w: application config: %w", ErrConfiguration, err)
	}

	return &fc, nil
}

// Merges file-provided values into the configuration.
//
// CLI flags win: only fields the configuration leaves empty are filled
// from the file.
func (c *Config) ApplyFile(fc *FileConfig) {
	if c.Title == "" {
		c.Title = fc.Application.Title
	}
	if c.Version == "" {
		c.Version = fc.Application.Version
	}
	if len(c.PipPackages) == 0 {
		c.PipPackages = fc.Application.PipPackages
	}
	if c.Resources == (Resources{}) {
		c.Resources = fc.Resources
	}
}
