package config

import (
	"context"
	"fmt"

	"github.com/ahrav/quantum-beacon/internal/config/credentials"
)

// Resolver implements Loader by running the full precedence chain: the
// base loader supplies defaults plus any config file, the saved
// credentials file fills remaining endpoint and token gaps, and
// QBEACON_* environment variables override everything.
type Resolver struct {
	base      Loader
	credsPath string
}

// NewResolver builds a Resolver over the given base loader. An empty
// credsPath means the conventional ~/.qbeacon/credentials location.
func NewResolver(base Loader, credsPath string) *Resolver {
	return &Resolver{base: base, credsPath: credsPath}
}

// Load resolves the configuration. The result is normalized; callers
// still run Validate before using it.
func (r *Resolver) Load(ctx context.Context) (*Config, error) {
	cfg, err := r.base.Load(ctx)
	if err != nil {
		return nil, err
	}

	path := r.credsPath
	if path == "" {
		// No home directory means no saved credentials to read.
		if p, err := credentials.DefaultPath(); err == nil {
			path = p
		}
	}
	if path != "" {
		creds, err := credentials.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading credentials: %w", err)
		}
		cfg.ApplyCredentials(creds)
	}

	cfg.ApplyEnv()

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}
