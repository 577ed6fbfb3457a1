// Package fileloader loads client configuration from a YAML file,
// layered over the built-in defaults.
package fileloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/quantum-beacon/internal/config"
)

// FileLoader loads configuration from a file on disk. It implements the
// config.Loader interface.
type FileLoader struct {
	// path is the filesystem path to the configuration file.
	path string

	// optional makes a missing file non-fatal; defaults are returned
	// instead. Parse errors are always fatal.
	optional bool
}

// NewFileLoader creates a FileLoader that reads configuration from the
// specified file path. A missing file is an error.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// NewOptionalFileLoader creates a FileLoader that falls back to the
// built-in defaults when the file does not exist.
func NewOptionalFileLoader(path string) *FileLoader {
	return &FileLoader{path: path, optional: true}
}

// Load reads and parses the configuration file. Values from the file are
// layered over config.Default, so a partial file only overrides the keys
// it mentions.
func (l *FileLoader) Load(ctx context.Context) (*config.Config, error) {
	cfg := config.Default()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if l.optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
