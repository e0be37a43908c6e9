package artifact

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Version matrix compiled into the binary. Updated alongside SDK releases.
//
//go:embed artifacts.json
var embedded []byte

// Maps an SDK version to its pinned artifact versions and image references.
type entry struct {
	PackageVersions packageVersions              `json:"package-versions"`
	BaseImages      map[string]string            `json:"base-images"`
	BuildImages     map[string]map[string]string `json:"build-images"`
	HealthProbes    map[string]string            `json:"health-probes"`
}

// Pinned SDK package versions for one matrix entry.
type packageVersions struct {
	Debian string `json:"debian"`
	Wheel  string `json:"wheel"`
}

// Immutable lookup table from SDK version to build-time and run-time
// artifact references.
//
// The matrix is loaded once at process start and shared read-only across
// all resolutions. Lookups never fall back to a default: a combination
// absent from the matrix is a hard resolution failure.
type Matrix struct {
	entries map[string]entry
}

// GPU classes every matrix entry must provide a base image for.
var requiredClasses = []string{"dgpu", "igpu", "cpu"}

// Loads the embedded version matrix.
func Load() (*Matrix, error) {
	return parse(embedded)
}

// Loads a version matrix from a JSON document on disk.
//
// Used to override the embedded matrix, e.g. for SDK versions released
// after this binary was built.
func LoadFile(path string) (*Matrix, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMatrix, err)
	}
	return parse(b)
}

// Parses and validates a version matrix document.
func parse(b []byte) (*Matrix, error) {
	var entries map[string]entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMatrix, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no versions declared", ErrMatrix)
	}

	for version, e := range entries {
		for _, class := range requiredClasses {
			if e.BaseImages[class] == "" {
				return nil, fmt.Errorf("%w: version %s has no base image for GPU class %s", ErrMatrix, version, class)
			}
		}
	}

	return &Matrix{entries: entries}, nil
}

// Returns the declared SDK versions in ascending order.
func (m *Matrix) Versions() []string {
	versions := make([]string, 0, len(m.entries))
	for v := range m.entries {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions
}
