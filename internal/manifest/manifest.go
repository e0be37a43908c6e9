package manifest

import (
	"encoding/json"
	"fmt"

	"github.com/cruciblehq/hap/internal/config"
)

// Schema version written into every generated manifest.
const APIVersion = "hap.cruciblehq.com/v1"

// Image label keys the manifests are attached under, allowing the launcher
// to read them with an image inspect instead of a container start.
const (
	AppManifestLabel = "com.cruciblehq.hap.app-manifest"
	PkgManifestLabel = "com.cruciblehq.hap.pkg-manifest"
)

// A health probe command executed inside the running container.
type Probe struct {
	Command       []string `json:"command"`
	PeriodSeconds int      `json:"periodSeconds,omitempty"`
}

// A data endpoint the application reads from or writes to.
type IO struct {
	Path    string   `json:"path"`
	Formats []string `json:"formats,omitempty"`
}

// Runtime contract between the packaged application, the launcher, and the
// in-image tooling. Baked into the image at a conventional path and as an
// image label.
type Application struct {
	APIVersion       string            `json:"apiVersion"`
	Command          []string          `json:"command"`
	Environment      map[string]string `json:"environment"`
	Input            IO                `json:"input"`
	Output           IO                `json:"output"`
	Liveness         *Probe            `json:"liveness,omitempty"`
	Readiness        *Probe            `json:"readiness,omitempty"`
	SDK              string            `json:"sdk"`
	SDKVersion       string            `json:"sdkVersion"`
	Timeout          int               `json:"timeout"`
	WorkingDirectory string            `json:"workingDirectory"`
	DocsPath         string            `json:"docsPath,omitempty"`
}

// Describes the package contents and the resources it requests.
type Package struct {
	APIVersion      string            `json:"apiVersion"`
	ApplicationRoot string            `json:"applicationRoot"`
	ModelRoot       string            `json:"modelRoot"`
	Models          map[string]string `json:"models"`
	Resources       config.Resources  `json:"resources"`
	PlatformConfig  string            `json:"platformConfig"`
}

// Serializes the application manifest as indented JSON.
func (a *Application) JSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// Serializes the package manifest as indented JSON.
func (p *Package) JSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// Parses an application manifest document.
func ParseApplication(b []byte) (*Application, error) {
	var a Application
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("application manifest: %w", err)
	}
	if a.APIVersion == "" {
		return nil, fmt.Errorf("application manifest: missing apiVersion")
	}
	return &a, nil
}

// Parses a package manifest document.
func ParsePackage(b []byte) (*Package, error) {
	var p Package
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("package manifest: %w", err)
	}
	if p.APIVersion == "" {
		return nil, fmt.Errorf("package manifest: missing apiVersion")
	}
	return &p, nil
}
