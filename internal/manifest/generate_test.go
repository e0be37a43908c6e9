package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cruciblehq/hap/internal/config"
	"github.com/cruciblehq/hap/internal/paths"
)

func pythonFileConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	app := filepath.Join(dir, "app.py")
	if err := os.WriteFile(app, []byte("print('ok')\n"), 0644); err != nil {
		t.Fatal(err)
	}

	return &config.Config{
		ApplicationType: config.PythonFile,
		ApplicationPath: app,
		Architecture:    "amd64",
		GPUClass:        config.DGPU,
		DevicePlatform:  "x64-workstation",
		Tag:             "my-app",
		Resources:       config.Resources{CPU: 2, GPU: 1, MemoryBytes: 1 << 30},
	}
}

func TestGenerateCommandByType(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "__main__.py"), nil, 0644)

	binDir := t.TempDir()
	os.WriteFile(filepath.Join(binDir, "inference-server"), []byte{0x7f}, 0755)

	cmakeDir := filepath.Join(t.TempDir(), "segmenter")
	os.MkdirAll(cmakeDir, 0755)
	os.WriteFile(filepath.Join(cmakeDir, "CMakeLists.txt"), nil, 0644)

	tests := []struct {
		name    string
		appType config.ApplicationType
		path    string
		want    []string
	}{
		{
			name:    "python module",
			appType: config.PythonModule,
			path:    dir,
			want:    []string{"python3", paths.AppDir},
		},
		{
			name:    "binary",
			appType: config.Binary,
			path:    binDir,
			want:    []string{paths.AppDir + "/inference-server"},
		},
		{
			name:    "cmake project",
			appType: config.CppCMake,
			path:    cmakeDir,
			want:    []string{paths.AppDir + "/segmenter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := pythonFileConfig(t)
			cfg.ApplicationType = tt.appType
			cfg.ApplicationPath = tt.path

			app, _, err := Generate(cfg, "3.2.0")
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if len(app.Command) != len(tt.want) {
				t.Fatalf("command = %v, want %v", app.Command, tt.want)
			}
			for i := range tt.want {
				if app.Command[i] != tt.want[i] {
					t.Fatalf("command = %v, want %v", app.Command, tt.want)
				}
			}
		})
	}
}

func TestGeneratePythonFileCommand(t *testing.T) {
	cfg := pythonFileConfig(t)

	app, _, err := Generate(cfg, "3.2.0")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if app.Command[0] != "python3" {
		t.Errorf("command[0] = %q, want python3", app.Command[0])
	}
	if !strings.HasPrefix(app.Command[1], paths.AppDir) || !strings.HasSuffix(app.Command[1], ".py") {
		t.Errorf("command[1] = %q, want %s/<file>.py", app.Command[1], paths.AppDir)
	}
}

func TestGenerateProbesOnlyWithFeature(t *testing.T) {
	cfg := pythonFileConfig(t)

	app, _, err := Generate(cfg, "3.2.0")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if app.Liveness != nil || app.Readiness != nil {
		t.Fatal("probes present without health-probe feature")
	}

	b, err := app.JSON()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "liveness") || strings.Contains(string(b), "readiness") {
		t.Fatalf("serialized manifest contains probe placeholders:\n%s", b)
	}

	cfg.Includes = []config.Feature{config.FeatureHealthProbe}
	app, _, err = Generate(cfg, "3.2.0")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if app.Liveness == nil || app.Readiness == nil {
		t.Fatal("probes absent with health-probe feature")
	}
	if app.Liveness.Command[0] != paths.HealthProbePath {
		t.Errorf("liveness command = %v, want %s", app.Liveness.Command, paths.HealthProbePath)
	}
}

func TestGenerateResourcesVerbatim(t *testing.T) {
	cfg := pythonFileConfig(t)
	cfg.Resources = config.Resources{CPU: 3, GPU: 2, MemoryBytes: 123456789, GPUMemoryBytes: 42}

	_, pkg, err := Generate(cfg, "3.2.0")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if pkg.Resources != cfg.Resources {
		t.Fatalf("resources = %+v, want %+v", pkg.Resources, cfg.Resources)
	}
}

func TestGenerateModelMap(t *testing.T) {
	cfg := pythonFileConfig(t)
	cfg.Models = []config.Model{
		{Name: "liver-seg", Path: "/models/liver"},
		{Name: "lung-seg", Path: "/models/lung"},
	}

	_, pkg, err := Generate(cfg, "3.2.0")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := pkg.Models["liver-seg"]; got != paths.ModelDir+"/liver-seg" {
		t.Errorf("models[liver-seg] = %q, want %s/liver-seg", got, paths.ModelDir)
	}
	if len(pkg.Models) != 2 {
		t.Errorf("len(models) = %d, want 2", len(pkg.Models))
	}
}

func TestGenerateModelCollision(t *testing.T) {
	cfg := pythonFileConfig(t)
	cfg.Models = []config.Model{
		{Name: "seg", Path: "/models/liver"},
		{Name: "seg", Path: "/models/lung"},
	}

	_, _, err := Generate(cfg, "3.2.0")
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}

	// The same entry repeated is not a collision.
	cfg.Models = []config.Model{
		{Name: "seg", Path: "/models/liver"},
		{Name: "seg", Path: "/models/liver"},
	}
	if _, _, err := Generate(cfg, "3.2.0"); err != nil {
		t.Fatalf("Generate: %v", err)
	}
}

func TestGenerateRoundTrip(t *testing.T) {
	cfg := pythonFileConfig(t)
	cfg.Includes = []config.Feature{config.FeatureHealthProbe}

	app, pkg, err := Generate(cfg, "3.2.0")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	appJSON, err := app.JSON()
	if err != nil {
		t.Fatal(err)
	}
	parsedApp, err := ParseApplication(appJSON)
	if err != nil {
		t.Fatalf("ParseApplication: %v", err)
	}
	if parsedApp.SDKVersion != "3.2.0" {
		t.Errorf("sdkVersion = %q, want 3.2.0", parsedApp.SDKVersion)
	}
	if parsedApp.Readiness == nil {
		t.Error("readiness probe lost in round trip")
	}

	pkgJSON, err := pkg.JSON()
	if err != nil {
		t.Fatal(err)
	}
	parsedPkg, err := ParsePackage(pkgJSON)
	if err != nil {
		t.Fatalf("ParsePackage: %v", err)
	}
	if parsedPkg.PlatformConfig != "dgpu" {
		t.Errorf("platformConfig = %q, want dgpu", parsedPkg.PlatformConfig)
	}
}

func TestParseRejectsMissingAPIVersion(t *testing.T) {
	if _, err := ParseApplication([]byte(`{}`)); err == nil {
		t.Error("ParseApplication accepted manifest without apiVersion")
	}
	if _, err := ParsePackage([]byte(`{}`)); err == nil {
		t.Error("ParsePackage accepted manifest without apiVersion")
	}
}
