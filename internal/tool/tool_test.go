package tool

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/cruciblehq/hap/internal/config"
	"github.com/cruciblehq/hap/internal/manifest"
	"github.com/cruciblehq/hap/internal/paths"
)

// Writes a manifest pair into a temp layout and returns a tool wired
// to it.
func testTool(t *testing.T, env map[string]string) (*Tool, *bytes.Buffer) {
	t.Helper()

	dir := t.TempDir()

	appMan := &manifest.Application{
		APIVersion:  manifest.APIVersion,
		Command:     []string{"python3", paths.AppDir + "/app.py"},
		Environment: env,
		SDK:         "hap",
		SDKVersion:  "3.2.0",
	}
	pkgMan := &manifest.Package{
		APIVersion:      manifest.APIVersion,
		ApplicationRoot: paths.AppDir,
		Resources:       config.Resources{CPU: 1},
		PlatformConfig:  "dgpu",
	}

	appJSON, err := appMan.JSON()
	if err != nil {
		t.Fatal(err)
	}
	pkgJSON, err := pkgMan.JSON()
	if err != nil {
		t.Fatal(err)
	}

	appPath := filepath.Join(dir, "app.json")
	pkgPath := filepath.Join(dir, "pkg.json")
	if err := os.WriteFile(appPath, appJSON, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pkgPath, pkgJSON, 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	return &Tool{
		AppManifestPath: appPath,
		PkgManifestPath: pkgPath,
		ExportDir:       filepath.Join(dir, "export"),
		Stdout:          &out,
		Stderr:          &out,
	}, &out
}

func TestShow(t *testing.T) {
	tl, out := testTool(t, map[string]string{paths.EnvOutputPath: paths.OutputDir})

	if err := tl.Show(""); err != nil {
		t.Fatalf("Show: %v", err)
	}

	s := out.String()
	if !strings.Contains(s, `"sdkVersion": "3.2.0"`) {
		t.Errorf("application manifest missing from output:\n%s", s)
	}
	if !strings.Contains(s, `"platformConfig": "dgpu"`) {
		t.Errorf("package manifest missing from output:\n%s", s)
	}
}

func TestShowSelectsManifest(t *testing.T) {
	tl, out := testTool(t, nil)

	if err := tl.Show("pkg"); err != nil {
		t.Fatalf("Show: %v", err)
	}

	s := out.String()
	if strings.Contains(s, `"sdkVersion"`) {
		t.Errorf("application manifest printed for pkg selection:\n%s", s)
	}
	if !strings.Contains(s, `"platformConfig": "dgpu"`) {
		t.Errorf("package manifest missing from output:\n%s", s)
	}
}

func TestShowMissingManifest(t *testing.T) {
	tl, _ := testTool(t, nil)
	tl.AppManifestPath = filepath.Join(t.TempDir(), "nope.json")

	if err := tl.Env(); err == nil {
		t.Fatal("missing manifest accepted")
	}
}

func TestEnvRedactsSecrets(t *testing.T) {
	tl, out := testTool(t, map[string]string{
		paths.EnvOutputPath: paths.OutputDir,
		"MODEL_API_TOKEN":   "tok-12345",
		"DB_PASSWORD":       "hunter2",
	})

	if err := tl.Env(); err != nil {
		t.Fatalf("Env: %v", err)
	}

	s := out.String()
	if strings.Contains(s, "tok-12345") || strings.Contains(s, "hunter2") {
		t.Fatalf("secret value printed:\n%s", s)
	}
	if !strings.Contains(s, "MODEL_API_TOKEN="+redacted) {
		t.Errorf("token not redacted:\n%s", s)
	}
	if !strings.Contains(s, paths.EnvOutputPath+"="+paths.OutputDir) {
		t.Errorf("plain value missing:\n%s", s)
	}
}

func TestIsSecretKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"HAP_OUTPUT_PATH", false},
		{"MODEL_API_TOKEN", true},
		{"db_password", true},
		{"AWS_SECRET_ACCESS_KEY", true},
		{"REGISTRY_CREDENTIALS", true},
		{"TIMEOUT", false},
	}

	for _, tt := range tests {
		if got := isSecretKey(tt.key); got != tt.want {
			t.Errorf("isSecretKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestRedactedEnvSorted(t *testing.T) {
	got := redactedEnv(map[string]string{"B": "2", "A": "1", "C": "3"})
	want := []string{"A=1", "B=2", "C=3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("redactedEnv = %v, want %v", got, want)
	}
}

func TestExtractNoMount(t *testing.T) {
	tl, _ := testTool(t, nil)

	if err := tl.Extract("all"); err == nil {
		t.Fatal("Extract succeeded without an export mount")
	}
}

// Points the pkg manifest's application root at a real tree and mounts
// an empty export directory.
func extractFixture(t *testing.T, tl *Tool) {
	t.Helper()

	appRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(appRoot, "app.py"), []byte("print('hi')\n"), 0644); err != nil {
		t.Fatal(err)
	}

	pkgMan := &manifest.Package{
		APIVersion:      manifest.APIVersion,
		ApplicationRoot: appRoot,
	}
	pkgJSON, err := pkgMan.JSON()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tl.PkgManifestPath, pkgJSON, 0644); err != nil {
		t.Fatal(err)
	}

	if err := os.MkdirAll(tl.ExportDir, 0755); err != nil {
		t.Fatal(err)
	}
}

func TestExtractApp(t *testing.T) {
	tl, _ := testTool(t, nil)
	extractFixture(t, tl)

	if err := tl.Extract("app"); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(tl.ExportDir, "app", "app.py"))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "print('hi')\n" {
		t.Errorf("exported content = %q", b)
	}
}

func TestExtractAll(t *testing.T) {
	tl, _ := testTool(t, nil)
	extractFixture(t, tl)

	// Only the application exists; the other entries are skipped.
	if err := tl.Extract("all"); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tl.ExportDir, "app", "app.py")); err != nil {
		t.Errorf("application not exported: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tl.ExportDir, "docs")); !os.IsNotExist(err) {
		t.Error("docs entry created for a package without docs")
	}
}

func TestExtractMissingScopeContent(t *testing.T) {
	tl, _ := testTool(t, nil)
	extractFixture(t, tl)

	if err := tl.Extract("docs"); err == nil {
		t.Fatal("Extract succeeded for a scope the package has no content for")
	}
}

func TestExtractUnknownScope(t *testing.T) {
	tl, _ := testTool(t, nil)
	extractFixture(t, tl)

	if err := tl.Extract("everything"); err == nil {
		t.Fatal("Extract accepted an unknown scope")
	}
}
