// Package config defines the runtime configuration for the quantum-beacon
// client and the precedence rules used to resolve it: built-in defaults,
// then the saved credentials file, then an explicit YAML config, then
// environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/quantum-beacon/internal/config/credentials"
	"github.com/ahrav/quantum-beacon/pkg/common/validate"
)

// Duration wraps time.Duration so YAML values can be written as "30s"
// or "2m" instead of raw nanosecond integers.
type Duration time.Duration

// UnmarshalYAML decodes a duration string such as "30s".
// Bare integers are rejected so configs stay unambiguous about units.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q (missing unit suffix?): %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML encodes the duration back to its string form.
func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// APIConfig holds the REST backend settings.
type APIConfig struct {
	// URL is the base endpoint of the execution service, e.g.
	// "https://api.quantum.example.com/v1".
	URL   string `yaml:"url" validate:"required,url"`
	Token string `yaml:"token" validate:"required"`

	// Device is the default backend device for submissions. Empty means
	// pick the least busy device at submit time.
	Device string `yaml:"device"`

	RequestTimeout    Duration `yaml:"request_timeout" validate:"min=0"`
	RetryMaxElapsed   Duration `yaml:"retry_max_elapsed" validate:"min=0"`
	RequestsPerSecond float64  `yaml:"requests_per_second" validate:"min=0"`
	Burst             int      `yaml:"burst" validate:"min=0"`
}

// WebsocketConfig holds the push channel settings.
type WebsocketConfig struct {
	// URL is the websocket base endpoint. When empty it is derived from
	// the API URL by swapping the scheme to ws/wss.
	URL string `yaml:"url" validate:"omitempty,uri"`

	HandshakeTimeout Duration `yaml:"handshake_timeout" validate:"min=0"`
	AuthTimeout      Duration `yaml:"auth_timeout" validate:"min=0"`
}

// TrackingConfig tunes how job completion is awaited.
type TrackingConfig struct {
	// WaitTimeout bounds a single job's wait from first attempt to
	// terminal status.
	WaitTimeout Duration `yaml:"wait_timeout" validate:"min=0"`

	InitialPollInterval Duration `yaml:"initial_poll_interval" validate:"min=0"`
	MaxPollInterval     Duration `yaml:"max_poll_interval" validate:"min=0"`

	// MaxPollFailures is the consecutive poll failure budget before a
	// wait is abandoned.
	MaxPollFailures int `yaml:"max_poll_failures" validate:"min=1"`

	// MaxConcurrent caps simultaneous waits. Zero means unbounded.
	MaxConcurrent int `yaml:"max_concurrent" validate:"min=0"`
}

// TelemetryConfig controls the OTLP trace exporter.
type TelemetryConfig struct {
	Enabled           bool    `yaml:"enabled"`
	ExporterEndpoint  string  `yaml:"exporter_endpoint"`
	SampleProbability float64 `yaml:"sample_probability" validate:"min=0,max=1"`
	Insecure          bool    `yaml:"insecure"`
}

// Config is the top-level client configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Websocket WebsocketConfig `yaml:"websocket"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Default returns the built-in configuration. Endpoint and token fields
// start empty and must come from the credentials file, a config file, or
// the environment.
func Default() *Config {
	return &Config{
		API: APIConfig{
			RequestTimeout:    Duration(30 * time.Second),
			RetryMaxElapsed:   Duration(2 * time.Minute),
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Websocket: WebsocketConfig{
			HandshakeTimeout: Duration(10 * time.Second),
			AuthTimeout:      Duration(10 * time.Second),
		},
		Tracking: TrackingConfig{
			WaitTimeout:         Duration(10 * time.Minute),
			InitialPollInterval: Duration(2 * time.Second),
			MaxPollInterval:     Duration(30 * time.Second),
			MaxPollFailures:     5,
			MaxConcurrent:       32,
		},
		Telemetry: TelemetryConfig{SampleProbability: 0.05},
	}
}

// ApplyCredentials copies saved account credentials into any endpoint or
// token field that is still empty. Explicit config and environment values
// keep precedence over the saved file.
func (c *Config) ApplyCredentials(creds *credentials.Credentials) {
	if creds == nil {
		return
	}
	if c.API.Token == "" {
		c.API.Token = creds.Token
	}
	if c.API.URL == "" {
		c.API.URL = creds.URL
	}
	if c.Websocket.URL == "" {
		c.Websocket.URL = creds.WebsocketURL
	}
}

// ApplyEnv overrides fields from QBEACON_* environment variables.
// Environment wins over every other source.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QBEACON_TOKEN"); v != "" {
		c.API.Token = v
	}
	if v := os.Getenv("QBEACON_API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("QBEACON_WS_URL"); v != "" {
		c.Websocket.URL = v
	}
	if v := os.Getenv("QBEACON_DEVICE"); v != "" {
		c.API.Device = v
	}
}

// Normalize fills derivable fields. The websocket URL defaults to the API
// URL with an ws/wss scheme.
func (c *Config) Normalize() error {
	if c.Websocket.URL != "" || c.API.URL == "" {
		return nil
	}
	derived, err := deriveWebsocketURL(c.API.URL)
	if err != nil {
		return fmt.Errorf("deriving websocket url from %q: %w", c.API.URL, err)
	}
	c.Websocket.URL = derived
	return nil
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	if err := validate.Check(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Tracking.MaxPollInterval.Std() < c.Tracking.InitialPollInterval.Std() {
		return fmt.Errorf("invalid configuration: max_poll_interval %s below initial_poll_interval %s",
			c.Tracking.MaxPollInterval.Std(), c.Tracking.InitialPollInterval.Std())
	}
	return nil
}

func deriveWebsocketURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}
