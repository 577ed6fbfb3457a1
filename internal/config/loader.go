package config

import "context"

// Loader resolves a Config from some source. Implementations exist for
// YAML files and for the default resolution chain that layers the saved
// credentials file and environment variables on top.
type Loader interface {
	// Load retrieves and parses the configuration from the underlying
	// source. The returned Config is normalized but not yet validated.
	Load(ctx context.Context) (*Config, error)
}
