package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	toolName = "kiln"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Permission mode for generated scripts.
	ScriptFileMode os.FileMode = 0755
)

// Path to the directory for fetched repository checkouts.
//
//	Linux:   ~/.cache/kiln/checkouts
//	macOS:   ~/Library/Caches/kiln/checkouts
func Checkouts() string {
	return filepath.Join(xdg.CacheHome, toolName, "checkouts")
}

// Default path to the user-level configuration file.
//
//	Linux:   ~/.config/kiln/kiln.yaml
//	macOS:   ~/Library/Application Support/kiln/kiln.yaml
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, toolName, toolName+".yaml")
}
