package util

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDir returns the per-application data directory (sqlite store, logs).
// It honours XDG_DATA_HOME and falls back to ~/.local/share/<app>.
func DataDir(appName string) string {
	base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			home = "."
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, sanitizeAppName(appName))
}

// DefaultDBPath is where the command id store lives unless configured otherwise.
func DefaultDBPath(appName string) string {
	return filepath.Join(DataDir(appName), "commands.db")
}

// sanitizeAppName normalizes an application name so it is safe as a single
// directory segment.
func sanitizeAppName(name string) string {
	n := strings.TrimSpace(name)
	n = strings.ReplaceAll(n, "/", "-")
	n = strings.ReplaceAll(n, "\\", "-")
	n = strings.ReplaceAll(n, "\x00", "")
	if n == "" {
		return "discordui"
	}
	return n
}
