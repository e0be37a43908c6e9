// Package runner launches packaged applications from their baked-in
// manifests: the launch command, environment, data paths, timeout, and
// resource requests all come from the image rather than from flags. It
// also extracts package contents and manifests back out of an image.
package runner
