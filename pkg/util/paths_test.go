package util

import (
	"path/filepath"
	"testing"
)

func TestDataDirHonoursXDG(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_DATA_HOME", base)

	if got, want := DataDir("my/bot"), filepath.Join(base, "my-bot"); got != want {
		t.Fatalf("DataDir = %q, want %q", got, want)
	}
	if got := DefaultDBPath(" "); filepath.Base(filepath.Dir(got)) != "discordui" {
		t.Fatalf("expected fallback app name, got %q", got)
	}
}
