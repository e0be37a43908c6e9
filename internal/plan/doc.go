// Package plan renders a validated packaging configuration and a
// resolved artifact set into a multi-stage build plan. Rendering is a
// pure function of its inputs; the build executor is what turns a plan
// into containers and images.
package plan
