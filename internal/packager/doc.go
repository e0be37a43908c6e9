// Package packager orchestrates the packaging pipeline: validate the
// configuration, resolve SDK artifacts, generate manifests, stage the
// build context, render the build plan, and execute it against the
// container engine. Failures name the phase they occurred in and leave
// no image behind.
package packager
