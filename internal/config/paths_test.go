package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigDir_NonEmpty(t *testing.T) {
	dir := DefaultConfigDir()
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, appName)
}

func TestDefaultDataDir_NonEmpty(t *testing.T) {
	dir := DefaultDataDir()
	assert.NotEmpty(t, dir)
	assert.Contains(t, dir, appName)
}

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	assert.True(t, strings.HasSuffix(DefaultConfigPath(), "config.toml"))
}

func TestDefaultDirs_LinuxXDG(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	t.Setenv("XDG_DATA_HOME", "/custom/data")

	assert.Equal(t, filepath.Join("/custom/config", appName), DefaultConfigDir())
	assert.Equal(t, filepath.Join("/custom/data", appName), DefaultDataDir())
}

func TestDefaultDirs_LinuxFallback(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-only test")
	}

	t.Setenv("HOME", "/home/testuser")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")

	assert.Equal(t, "/home/testuser/.config/cloudexplorer", DefaultConfigDir())
	assert.Equal(t, "/home/testuser/.local/share/cloudexplorer", DefaultDataDir())
}

func TestDefaultConfigDir_MacOS(t *testing.T) {
	if runtime.GOOS != platformDarwin {
		t.Skip("macOS-only test")
	}

	assert.Contains(t, DefaultConfigDir(), "Library/Application Support")
}

func TestTokenPath(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_DATA_HOME", "/data")

	assert.Equal(t, "/data/cloudexplorer/tokens/work.json", TokenPath("work"))
}
