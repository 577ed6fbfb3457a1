package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/ahrav/quantum-beacon/internal/app/tracking"
	"github.com/ahrav/quantum-beacon/internal/config"
	"github.com/ahrav/quantum-beacon/internal/config/fileloader"
	"github.com/ahrav/quantum-beacon/internal/infra/transport/rest"
	"github.com/ahrav/quantum-beacon/internal/infra/transport/websocket"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
	"github.com/ahrav/quantum-beacon/pkg/common/otel"
)

const serviceName = "qbeacon-watcher"

// app bundles the wired client stack a subcommand needs.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	tracer   trace.Tracer
	client   *rest.Client
	resolver *tracking.Resolver
	tracker  *tracking.Tracker

	teardown func(context.Context)
}

func (a *app) shutdown(ctx context.Context) {
	if a.teardown != nil {
		a.teardown(ctx)
	}
}

// buildApp resolves configuration and wires the client stack. The
// resolution chain is defaults, saved credentials, config file, then
// QBEACON_* environment variables.
func buildApp(ctx context.Context, opts rootOptions) (*app, error) {
	logLevel := logger.LevelInfo
	if opts.verbose {
		logLevel = logger.LevelDebug
	}
	log := logger.New(os.Stderr, logLevel, serviceName, func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	})

	var base config.Loader
	if opts.configPath != "" {
		base = fileloader.NewFileLoader(opts.configPath)
	} else {
		base = fileloader.NewOptionalFileLoader(defaultConfigPath())
	}

	cfg, err := config.NewResolver(base, opts.credentialsPath).Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tracer := noop.NewTracerProvider().Tracer(serviceName)
	teardown := func(context.Context) {}
	if cfg.Telemetry.Enabled {
		traceProvider, stop, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      serviceName,
			ExporterEndpoint: cfg.Telemetry.ExporterEndpoint,
			Probability:      cfg.Telemetry.SampleProbability,
			InsecureExporter: cfg.Telemetry.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("starting telemetry: %w", err)
		}
		tracer = traceProvider.Tracer(serviceName)
		teardown = stop
	}

	metrics, err := tracking.NewTrackerMetrics(otel.GetMeterProvider())
	if err != nil {
		return nil, fmt.Errorf("building metrics: %w", err)
	}

	client := rest.NewClient(&rest.Config{
		BaseURL:           cfg.API.URL,
		Token:             cfg.API.Token,
		RequestTimeout:    cfg.API.RequestTimeout.Std(),
		RetryMaxElapsed:   cfg.API.RetryMaxElapsed.Std(),
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
	}, log, metrics, tracer)

	streamer := websocket.NewStreamer(&websocket.Config{
		URL:              cfg.Websocket.URL,
		Token:            cfg.API.Token,
		HandshakeTimeout: cfg.Websocket.HandshakeTimeout.Std(),
		AuthTimeout:      cfg.Websocket.AuthTimeout.Std(),
	}, log, metrics, tracer)

	resolver := tracking.NewResolver(streamer, client, tracking.ResolverConfig{
		InitialPollInterval: cfg.Tracking.InitialPollInterval.Std(),
		MaxPollInterval:     cfg.Tracking.MaxPollInterval.Std(),
		MaxPollFailures:     cfg.Tracking.MaxPollFailures,
	}, log, metrics, tracer)

	tracker := tracking.NewTracker(resolver, cfg.Tracking.MaxConcurrent, log, metrics, tracer)

	return &app{
		cfg:      cfg,
		log:      log,
		tracer:   tracer,
		client:   client,
		resolver: resolver,
		tracker:  tracker,
		teardown: teardown,
	}, nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".qbeacon", "config.yaml")
}
