package runner

import "errors"

var (
	ErrLaunch = errors.New("launch failed")

	// The image carries no package manifests and cannot be launched.
	ErrNotAPackage = errors.New("image is not an application package")
)
