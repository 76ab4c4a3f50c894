package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the log directory (~/.vana/logs). Falls back to
// the temp directory when the home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".vana", "logs")
	}
	return filepath.Join(home, ".vana", "logs")
}

// DefaultLogPath returns the server log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "vana.log")
}

// EnsureLogDir creates the log directory if it does not exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
