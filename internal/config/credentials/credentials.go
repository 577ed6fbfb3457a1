// Package credentials reads saved account credentials from the INI file
// at ~/.qbeacon/credentials. The file mirrors what an account setup
// writes once, so scripts never need to inline tokens:
//
//	[default]
//	token = abc123
//	url = https://api.quantum.example.com/v1
//	websocket_url = wss://api.quantum.example.com/v1
package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// DefaultSection is the INI section holding the active account.
const DefaultSection = "default"

// Credentials holds a saved account's token and endpoints.
type Credentials struct {
	Token        string `mapstructure:"token"`
	URL          string `mapstructure:"url"`
	WebsocketURL string `mapstructure:"websocket_url"`

	// Verify toggles TLS certificate verification for the endpoints.
	Verify bool `mapstructure:"verify"`
}

// DefaultPath returns the conventional credentials file location,
// ~/.qbeacon/credentials.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".qbeacon", "credentials"), nil
}

// Load parses the credentials file at path. A missing file is not an
// error; it returns (nil, nil) so callers fall through to other sources.
func Load(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading credentials file %s: %w", path, err)
	}
	return parse(data, path)
}

func parse(data []byte, path string) (*Credentials, error) {
	v := viper.New()
	v.SetConfigType("ini")
	if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parsing credentials file %s: %w", path, err)
	}

	// Prefer the [default] section; fall back to top-level keys for
	// files written without a section header.
	section := v.Sub(DefaultSection)
	if section == nil {
		section = v
	}

	var creds Credentials
	if err := section.Unmarshal(&creds); err != nil {
		return nil, fmt.Errorf("decoding credentials file %s: %w", path, err)
	}
	return &creds, nil
}
