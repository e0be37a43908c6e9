// Package artifact resolves SDK versions to concrete artifact references.
//
// A [Matrix] maps each supported SDK version to pinned package versions,
// per-GPU-class base images, per-device-platform build images, and
// per-architecture health probe URLs. The matrix ships embedded in the
// binary and can be overridden with an on-disk JSON document.
//
// Resolution is a pure lookup: every axis requires an exact match and a
// miss fails with [ErrResolution] naming the failed axis. No fuzzy or
// semver matching is performed.
package artifact
