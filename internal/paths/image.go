package paths

// In-image filesystem layout shared by the packager, the launcher, and the
// in-image tooling. Every path staged into the build context maps 1:1 onto
// one of these locations, and the generated manifests reference them; the
// three components must never disagree on this mapping.
const (

	// Root of the application files copied from the build context's app/ entry.
	AppDir = "/opt/hap/app"

	// Application configuration file, from the build context root.
	ConfigPath = "/var/hap/app.yaml"

	// Root of the model files, one subdirectory per model name.
	ModelDir = "/opt/hap/models"

	// Optional documentation tree.
	DocsDir = "/opt/hap/docs"

	// Additional shared libraries shipped with the package.
	LibDir = "/opt/hap/lib"

	// Optional input data baked into the image.
	InputDir = "/var/hap/input"

	// Directory the application writes results to; bind-mounted at run time.
	OutputDir = "/var/hap/output"

	// Application manifest consumed by the launcher and the tooling.
	AppManifestPath = "/etc/hap/app.json"

	// Package manifest consumed by the launcher and the tooling.
	PkgManifestPath = "/etc/hap/pkg.json"

	// Pinned pip requirements for Python application types.
	RequirementsPath = "/opt/hap/pip/requirements.txt"

	// Working directory the application is launched from.
	WorkDir = "/var/hap"

	// Mount point the extract subcommand copies manifest-declared paths to.
	ExportDir = "/var/run/hap/export"

	// Health probe binary installed when the health-probe feature is enabled.
	HealthProbePath = "/opt/hap/bin/health-probe"

	// Location of the in-image tooling binary, set as the image entrypoint.
	ToolPath = "/usr/local/bin/hap-tool"
)

// Environment variables injected into the application manifest so the
// packaged application can locate its inputs without hard-coded paths.
const (
	EnvInputPath       = "HAP_INPUT_PATH"
	EnvOutputPath      = "HAP_OUTPUT_PATH"
	EnvModelPath       = "HAP_MODEL_PATH"
	EnvConfigPath      = "HAP_CONFIG_PATH"
	EnvDocsPath        = "HAP_DOCS_PATH"
	EnvAppManifestPath = "HAP_APP_MANIFEST_PATH"
	EnvPkgManifestPath = "HAP_PKG_MANIFEST_PATH"
)

// Build context entries, relative to the staging directory root. The
// packager stages files at these locations and the build plan copies each
// entry to its in-image counterpart.
const (
	ContextApp          = "app"
	ContextModels       = "models"
	ContextDocs         = "docs"
	ContextLib          = "lib"
	ContextInput        = "input"
	ContextConfig       = "app.yaml"
	ContextAppManifest  = "map/app.json"
	ContextPkgManifest  = "map/pkg.json"
	ContextRequirements = "pip/requirements.txt"
	ContextSDK          = "sdk"
	ContextTool         = "bin/hap-tool"
)
