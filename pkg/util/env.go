package util

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadEnvWithLocalBinFallback ensures the specified environment variable is present.
// It always attempts to load $HOME/.local/bin/.env to populate variables missing from
// the environment (already-set variables are never overwritten), then returns the
// requested variable.
//
// Returns a non-nil error if the variable remains unset after the fallback attempt.
func LoadEnvWithLocalBinFallback(tokenEnvName string) (string, error) {
	envPath := LoadLocalBinEnv()

	if v := os.Getenv(tokenEnvName); v != "" {
		return v, nil
	}

	if envPath == "" {
		return "", fmt.Errorf("environment variable %q not set and home directory unresolved", tokenEnvName)
	}
	return "", fmt.Errorf("environment variable %q not set; attempted to load fallback file %s", tokenEnvName, envPath)
}

// LoadLocalBinEnv loads $HOME/.local/bin/.env without overriding set variables and
// returns the path it looked at ("" when the home directory is unknown).
func LoadLocalBinEnv() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	envPath := filepath.Join(home, ".local", "bin", ".env")
	if info, statErr := os.Stat(envPath); statErr == nil && !info.IsDir() {
		// godotenv.Load will NOT override variables that are already set.
		_ = godotenv.Load(envPath)
	}
	return envPath
}
