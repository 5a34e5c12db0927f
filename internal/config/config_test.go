package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "munged.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
socket:
  path: /tmp/test.socket
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/tmp/test.socket", cfg.Socket.Path)
	require.Equal(t, Default().Socket.Backlog, cfg.Socket.Backlog)
	require.Equal(t, Default().Key.File, cfg.Key.File)
	require.Equal(t, Default().Runtime.NumThreads, cfg.Runtime.NumThreads)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "munged.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
socket:
  bogus_field: 1
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/munged.yaml")
	require.Error(t, err)
}

func TestLoadOverridesRuntimeTTLs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "munged.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runtime:
  default_ttl: 10s
  max_ttl: 30s
  num_threads: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.Runtime.DefaultTTL)
	require.Equal(t, 30*time.Second, cfg.Runtime.MaxTTL)
	require.Equal(t, 4, cfg.Runtime.NumThreads)
}

func TestValidateRejectsMaxTTLBelowDefault(t *testing.T) {
	cfg := Default()
	cfg.Runtime.DefaultTTL = 60 * time.Second
	cfg.Runtime.MaxTTL = 30 * time.Second
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptySocketPath(t *testing.T) {
	cfg := Default()
	cfg.Socket.Path = ""
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveThreads(t *testing.T) {
	cfg := Default()
	cfg.Runtime.NumThreads = 0
	require.Error(t, cfg.Validate())
}
