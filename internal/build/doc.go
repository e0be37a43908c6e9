// Package build executes rendered build plans against the container
// engine.
//
// Each stage of a plan runs as a live container: copies stream in from
// the staging directory or from earlier stage containers as tar pipes,
// install steps run as shell execs, and the resulting filesystem is
// committed back to the image store so later stages and the final tag
// can start from it. Intermediate stage images are job-scoped and
// removed by [Cleanup] once the target image exists.
package build
