package artifact

import (
	"fmt"
	"strings"
)

// Concrete references resolved from the version matrix for one build.
type Resolution struct {
	BaseImage     string // Run-time base image for the target GPU class.
	BuildImage    string // Build-time image for the target device platform.
	DebianVersion string // Pinned SDK debian package version.
	WheelVersion  string // Pinned SDK wheel version.
	HealthProbe   string // Health probe binary URL for the target architecture.
}

// Looks up the concrete artifact references for an SDK version, GPU class,
// architecture, and device platform.
//
// Every axis requires an exact match. A miss on any axis fails with
// [ErrResolution] identifying the axis; a silently substituted image would
// build successfully and fail at run time in ways that are hard to
// diagnose, so no default is ever returned.
func (m *Matrix) Resolve(version, gpuClass, arch, devicePlatform string) (*Resolution, error) {
	e, ok := m.entries[version]
	if !ok {
		return nil, fmt.Errorf("%w: unknown SDK version %q (declared versions: %s)",
			ErrResolution, version, strings.Join(m.Versions(), ", "))
	}

	base, ok := e.BaseImages[gpuClass]
	if !ok {
		return nil, fmt.Errorf("%w: version %s declares no base image for GPU class %q",
			ErrResolution, version, gpuClass)
	}

	byDevice, ok := e.BuildImages[gpuClass]
	if !ok {
		return nil, fmt.Errorf("%w: version %s declares no build images for GPU class %q",
			ErrResolution, version, gpuClass)
	}
	build, ok := byDevice[devicePlatform]
	if !ok {
		return nil, fmt.Errorf("%w: version %s declares no build image for device platform %q (GPU class %s)",
			ErrResolution, version, devicePlatform, gpuClass)
	}

	probe, ok := e.HealthProbes[arch]
	if !ok {
		return nil, fmt.Errorf("%w: version %s declares no health probe for architecture %q",
			ErrResolution, version, arch)
	}

	return &Resolution{
		BaseImage:     base,
		BuildImage:    build,
		DebianVersion: e.PackageVersions.Debian,
		WheelVersion:  e.PackageVersions.Wheel,
		HealthProbe:   probe,
	}, nil
}
