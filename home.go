package nbslot

import (
	"os"
	"path/filepath"
)

// Home returns the nbslot home directory.
// It defaults to ~/.nbslot but can be overridden with the NBSLOT_HOME environment variable.
func Home() string {
	if v := os.Getenv("NBSLOT_HOME"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".nbslot")
}

// DefaultConfigPath returns the default configuration file path (~/.nbslot/config.yaml).
func DefaultConfigPath() string {
	return filepath.Join(Home(), "config.yaml")
}
