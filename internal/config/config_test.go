package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// Returns a minimal valid configuration rooted at a real temp file.
func validConfig(t *testing.T) *Config {
	t.Helper()

	dir := t.TempDir()
	app := filepath.Join(dir, "app.py")
	if err := os.WriteFile(app, []byte("print('ok')\n"), 0644); err != nil {
		t.Fatal(err)
	}

	return &Config{
		ApplicationType: PythonFile,
		ApplicationPath: app,
		Architecture:    "amd64",
		GPUClass:        DGPU,
		DevicePlatform:  "x64-workstation",
		Tag:             "my-app",
	}
}

func TestValidateAccepts(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "unknown application type",
			mutate: func(c *Config) { c.ApplicationType = "cobol" },
		},
		{
			name:   "missing application path",
			mutate: func(c *Config) { c.ApplicationPath = "" },
		},
		{
			name:   "nonexistent application path",
			mutate: func(c *Config) { c.ApplicationPath = "/no/such/path" },
		},
		{
			name:   "unknown gpu class",
			mutate: func(c *Config) { c.GPUClass = "tpu" },
		},
		{
			name:   "unsupported architecture",
			mutate: func(c *Config) { c.Architecture = "mips" },
		},
		{
			name:   "missing device platform",
			mutate: func(c *Config) { c.DevicePlatform = "" },
		},
		{
			name:   "missing tag",
			mutate: func(c *Config) { c.Tag = "" },
		},
		{
			name:   "unknown feature",
			mutate: func(c *Config) { c.Includes = []Feature{"quantum"} },
		},
		{
			name: "sdk version with custom artifact",
			mutate: func(c *Config) {
				c.SDKVersion = "3.2.0"
				c.CustomSDKArtifact = "/tmp/sdk.deb"
			},
		},
		{
			name: "colliding model names",
			mutate: func(c *Config) {
				c.Models = []Model{
					{Name: "seg", Path: "/models/a"},
					{Name: "seg", Path: "/models/b"},
				}
			},
		},
		{
			name:   "negative gpu request",
			mutate: func(c *Config) { c.Resources.GPU = -1 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("error %v is not ErrConfiguration", err)
			}
		})
	}
}

func TestValidateAllowsRepeatedIdenticalModel(t *testing.T) {
	cfg := validConfig(t)
	cfg.Models = []Model{
		{Name: "seg", Path: "/models/a"},
		{Name: "seg", Path: "/models/a"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("identical duplicate should pass: %v", err)
	}
}

func TestHasFeature(t *testing.T) {
	cfg := validConfig(t)
	cfg.Includes = []Feature{FeatureTorch, FeatureDebug}

	if !cfg.HasFeature(FeatureTorch) {
		t.Error("HasFeature(torch) = false, want true")
	}
	if cfg.HasFeature(FeatureONNX) {
		t.Error("HasFeature(onnx) = true, want false")
	}
}

func TestDetectApplicationType(t *testing.T) {
	dir := t.TempDir()

	moduleDir := filepath.Join(dir, "module")
	os.MkdirAll(moduleDir, 0755)
	os.WriteFile(filepath.Join(moduleDir, "__main__.py"), nil, 0644)

	cmakeDir := filepath.Join(dir, "cmake")
	os.MkdirAll(cmakeDir, 0755)
	os.WriteFile(filepath.Join(cmakeDir, "CMakeLists.txt"), nil, 0644)

	pyFile := filepath.Join(dir, "app.py")
	os.WriteFile(pyFile, nil, 0644)

	binFile := filepath.Join(dir, "server")
	os.WriteFile(binFile, []byte{0x7f}, 0755)

	emptyDir := filepath.Join(dir, "empty")
	os.MkdirAll(emptyDir, 0755)

	tests := []struct {
		name    string
		path    string
		want    ApplicationType
		wantErr bool
	}{
		{name: "python module dir", path: moduleDir, want: PythonModule},
		{name: "cmake dir", path: cmakeDir, want: CppCMake},
		{name: "python file", path: pyFile, want: PythonFile},
		{name: "executable binary", path: binFile, want: Binary},
		{name: "undeterminable", path: emptyDir, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectApplicationType(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrConfiguration) {
					t.Fatalf("err = %v, want ErrConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("type = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestApplyFile(t *testing.T) {
	cfg := validConfig(t)
	cfg.Title = "from-flags"

	fc := &FileConfig{}
	fc.Application.Title = "from-file"
	fc.Application.Version = "0.4.0"
	fc.Application.PipPackages = []string{"numpy==1.26.0"}
	fc.Resources = Resources{CPU: 2, GPU: 1, MemoryBytes: 1 << 30}

	cfg.ApplyFile(fc)

	if cfg.Title != "from-flags" {
		t.Errorf("title = %q, flag value should win", cfg.Title)
	}
	if cfg.Version != "0.4.0" {
		t.Errorf("version = %q, want 0.4.0", cfg.Version)
	}
	if len(cfg.PipPackages) != 1 {
		t.Errorf("pip packages = %v, want one entry", cfg.PipPackages)
	}
	if cfg.Resources.GPU != 1 {
		t.Errorf("resources.gpu = %d, want 1", cfg.Resources.GPU)
	}
}
