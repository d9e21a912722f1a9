package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `
watch_paths = ["./src", "./docs"]
debounce_ms = 150
file_handle_cap = 512
concurrency = 4
backend = "portable"

[traffic_policy]
green_globs = ["**/*.md"]
red_globs = ["**/*.secret"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"./src", "./docs"}, cfg.WatchPaths)
	assert.Equal(t, 150, cfg.DebounceMS)
	assert.Equal(t, 512, cfg.FileHandleCap)
	assert.Equal(t, []string{"**/*.md"}, cfg.TrafficPolicy.GreenGlobs)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
watch_paths = ["."]
totally_unknown_key = 42
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsOutOfRangeDebounce(t *testing.T) {
	path := writeConfig(t, `
watch_paths = ["."]
debounce_ms = 999999
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "debounce_ms")
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfig(t, `
watch_paths = ["."]
backend = "not-a-real-backend"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestEmptyPathLoadsDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
