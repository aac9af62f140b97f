package edenconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUT_CF_01_01_LoadConfig_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Equal(t, "/usr/local/libexec/eden/edenfs", cfg.EdenfsPath)
	assert.Equal(t, 5000, cfg.PollIntervalMs)
}

func TestUT_CF_01_02_LoadConfig_PartialFile_MergesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, (Config{PollIntervalMs: 9000}).WriteConfig(path))

	cfg := LoadConfig(path)
	assert.Equal(t, 9000, cfg.PollIntervalMs)
	assert.Equal(t, "/bin/cat", cfg.CatExePath)
}

func TestUT_CF_01_03_WriteConfig_ThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yml")
	original := Config{
		EdenfsPath:     "/opt/eden/edenfs",
		PollIntervalMs: 1234,
		CatExePath:     "/bin/cat",
	}
	require.NoError(t, original.WriteConfig(path))

	loaded := LoadConfig(path)
	assert.Equal(t, "/opt/eden/edenfs", loaded.EdenfsPath)
	assert.Equal(t, 1234, loaded.PollIntervalMs)
}
