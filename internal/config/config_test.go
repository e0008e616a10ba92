package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "info", cfg.Log.Level)
	require.Zero(t, cfg.MaxTransferSize)
	require.NotEmpty(t, cfg.InstanceID)
}

func TestLoadPersistsInstanceID(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	first, err := Load("")
	require.NoError(t, err)
	second, err := Load("")
	require.NoError(t, err)
	require.Equal(t, first.InstanceID, second.InstanceID)
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"instance_id: fixed\nlog:\n  level: debug\nmax_transfer_size: 16\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "fixed", cfg.InstanceID)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 16, cfg.MaxTransferSize)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	require.Error(t, err)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log: ["), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}
