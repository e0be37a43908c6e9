package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	toolName = "hap"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Path to the directory for per-invocation build staging contexts.
//
//	Linux:   ~/.local/state/hap/staging
//	macOS:   ~/Library/Application Support/hap/staging
func Staging() string {
	return filepath.Join(xdg.StateHome, toolName, "staging")
}

// Path to the cache directory for downloaded artifacts and version matrices.
//
//	Linux:   ~/.cache/hap
//	macOS:   ~/Library/Caches/hap
func Cache() string {
	return filepath.Join(xdg.CacheHome, toolName)
}

// Path to the directory for runtime files (container state, probes).
//
//	Linux:   $XDG_RUNTIME_DIR/hap or ~/.cache/hap/run
func Runtime() string {
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, toolName)
	}
	return filepath.Join(xdg.CacheHome, toolName, "run")
}
