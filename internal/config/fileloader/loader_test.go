package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestFileLoaderLayersOverDefaults(t *testing.T) {
	path := writeConfigFile(t, `
api:
  url: https://api.quantum.example.com/v1
  token: file-token
tracking:
  wait_timeout: "90s"
`)

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "https://api.quantum.example.com/v1", cfg.API.URL)
	assert.Equal(t, "file-token", cfg.API.Token)
	assert.Equal(t, 90*time.Second, cfg.Tracking.WaitTimeout.Std())

	// Untouched keys carry the defaults through.
	assert.Equal(t, 30*time.Second, cfg.API.RequestTimeout.Std())
	assert.Equal(t, 32, cfg.Tracking.MaxConcurrent)
}

func TestFileLoaderMissingFileIsFatal(t *testing.T) {
	loader := NewFileLoader(filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := loader.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestOptionalFileLoaderMissingFileYieldsDefaults(t *testing.T) {
	loader := NewOptionalFileLoader(filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := loader.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.Tracking.WaitTimeout.Std())
	assert.Empty(t, cfg.API.Token)
}

func TestOptionalFileLoaderStillRejectsMalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "api: [unterminated")

	_, err := NewOptionalFileLoader(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestFileLoaderRejectsUnitlessDurations(t *testing.T) {
	path := writeConfigFile(t, `
tracking:
  wait_timeout: "300"
`)

	_, err := NewFileLoader(path).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration")
}
