package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	if path == "" {
		t.Skip("no home directory")
	}

	assert.True(t, strings.HasSuffix(path, filepath.Join(appName, "config.toml")))
}

func TestDefaultDirs_RespectXDGOnLinux(t *testing.T) {
	if runtime.GOOS != platformLinux {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-config")
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	assert.Equal(t, filepath.Join("/tmp/xdg-config", appName), DefaultConfigDir())
	assert.Equal(t, filepath.Join("/tmp/xdg-data", appName), DefaultDataDir())
}

func TestExpandTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}

	assert.Equal(t, filepath.Join(home, "data", "token.json"), expandTilde("~/data/token.json"))
	assert.Equal(t, "/abs/path", expandTilde("/abs/path"))
	assert.Equal(t, "rel/~/path", expandTilde("rel/~/path"))
}
