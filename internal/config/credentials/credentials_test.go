package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCredentialsFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesDefaultSection(t *testing.T) {
	path := writeCredentialsFile(t, `
[default]
token = abc123
url = https://api.quantum.example.com/v1
websocket_url = wss://api.quantum.example.com/v1
verify = true
`)

	creds, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, creds)

	assert.Equal(t, "abc123", creds.Token)
	assert.Equal(t, "https://api.quantum.example.com/v1", creds.URL)
	assert.Equal(t, "wss://api.quantum.example.com/v1", creds.WebsocketURL)
	assert.True(t, creds.Verify)
}

func TestLoadParsesSectionlessFile(t *testing.T) {
	path := writeCredentialsFile(t, `
token = xyz789
url = https://api.quantum.example.com/v1
`)

	creds, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, creds)

	assert.Equal(t, "xyz789", creds.Token)
	assert.Equal(t, "https://api.quantum.example.com/v1", creds.URL)
	assert.Empty(t, creds.WebsocketURL)
}

func TestLoadMissingFileReturnsNil(t *testing.T) {
	creds, err := Load(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := writeCredentialsFile(t, "[unclosed\ntoken = zzz")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing credentials file")
}

func TestDefaultPathUnderHome(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".qbeacon", "credentials"), path)
}
