// Package manifest defines the runtime contract written into every image.
//
// Two JSON documents are generated per package: the application manifest
// (launch command, environment, input/output paths, probes) and the
// package manifest (content roots, model map, resources). The launcher
// and the in-image tooling both consume these documents and neither ever
// reads build-time state, which keeps build and run concerns decoupled.
package manifest
