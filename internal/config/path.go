// Package config loads and validates pipeline configuration.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath resolves a leading ~ to the home directory and expands $VAR
// references. In-memory SQLite paths are returned unchanged.
func ExpandPath(path string) string {
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	return os.ExpandEnv(path)
}
