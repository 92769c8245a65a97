//go:build !windows

package log

import (
	"path/filepath"
	"runtime"
	"testing"
)

func TestDefaultDirUsesXDGConfig(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("darwin logs under ~/Library/Logs")
	}
	cfg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfg)
	t.Setenv("XDG_STATE_HOME", t.TempDir())

	got, err := getDefaultDir()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(cfg, "keytap", "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestDefaultDirFallsBackToDotConfig(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("darwin logs under ~/Library/Logs")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")

	got, err := getDefaultDir()
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(home, ".config", "keytap", "logs")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
