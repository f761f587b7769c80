// Package filex resolves and prepares the on-disk locations used by the
// client: the data directory holding the local store and the log file.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirName is the directory created under the user's config dir.
const DataDirName = "nutrisync"

// EnsureParentDir creates the directory that will hold path and returns
// path made absolute.
func EnsureParentDir(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("abs %s: %w", path, err)
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return abs, nil
}

// DefaultDataPath returns name inside the per-user data directory, falling
// back to the working directory when the user config dir is unknown.
func DefaultDataPath(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(base, DataDirName, name)
}
