// Package paths centralizes filesystem path construction.
//
// Host-side paths (staging contexts, caches, runtime files) follow the XDG
// Base Directory specification. In-image paths define the packaged
// application layout; they are the contract between the build context
// staged by the packager, the manifests generated for the image, and the
// mounts composed by the launcher.
package paths
