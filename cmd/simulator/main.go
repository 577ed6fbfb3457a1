package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/ahrav/quantum-beacon/internal/simulator"
	"github.com/ahrav/quantum-beacon/pkg/common/debug"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
	"github.com/ahrav/quantum-beacon/pkg/common/otel"
)

var build = "develop"

const serviceType = "simulator"

func main() {
	// Set the correct number of threads for the service.
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		log.Fatalf("failed to get hostname: %v", err)
	}

	var log *logger.Logger

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}

			// Add any error-specific attributes.
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}

			// Output the error event with valid JSON details.
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n",
				r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("QBEACON-SIM-%s", hostname)
	metadata := map[string]string{
		"service":   svcName,
		"hostname":  hostname,
		"pod":       os.Getenv("POD_NAME"),
		"namespace": os.Getenv("POD_NAMESPACE"),
		"app":       serviceType,
	}

	logLevel := logger.LevelInfo
	if strings.EqualFold(os.Getenv("QBEACON_SIM_LOG_LEVEL"), "debug") {
		logLevel = logger.LevelDebug
	}

	log = logger.NewWithMetadata(os.Stdout, logLevel, svcName, traceIDFn, logEvents, metadata)

	ctx := context.Background()

	if err := run(ctx, log, hostname); err != nil {
		log.Error(ctx, "startup", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger, hostname string) error {
	// -------------------------------------------------------------------------
	// GOMAXPROCS

	log.Info(ctx, "startup", "GOMAXPROCS", runtime.GOMAXPROCS(0), "build", build)

	// -------------------------------------------------------------------------
	// Configuration

	cfg := simulator.Config{
		Host:  envOr("QBEACON_SIM_HOST", "0.0.0.0"),
		Port:  envOr("QBEACON_SIM_PORT", "8880"),
		Token: os.Getenv("QBEACON_SIM_TOKEN"),
	}

	if v := os.Getenv("QBEACON_SIM_STEP_DELAY"); v != "" {
		delay, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing QBEACON_SIM_STEP_DELAY: %w", err)
		}
		cfg.StepDelay = delay
	}

	cfg.Faults.RejectAuth = envBool("QBEACON_SIM_REJECT_AUTH")
	cfg.Faults.MalformedFrames = envBool("QBEACON_SIM_MALFORMED_FRAMES")
	cfg.Faults.DisableStream = envBool("QBEACON_SIM_DISABLE_STREAM")
	if v := os.Getenv("QBEACON_SIM_DROP_AFTER_FRAMES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing QBEACON_SIM_DROP_AFTER_FRAMES: %w", err)
		}
		cfg.Faults.DropAfterFrames = n
	}

	// -------------------------------------------------------------------------
	// Start Tracing Support

	log.Info(ctx, "startup", "status", "initializing tracing support")

	var tracer trace.Tracer
	if endpoint := os.Getenv("QBEACON_SIM_OTLP_ENDPOINT"); endpoint != "" {
		prob := 0.05
		if v := os.Getenv("QBEACON_SIM_SAMPLING_RATIO"); v != "" {
			p, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("parsing QBEACON_SIM_SAMPLING_RATIO: %w", err)
			}
			prob = p
		}

		traceProvider, teardown, err := otel.InitTelemetry(log, otel.Config{
			ServiceName:      serviceType,
			ExporterEndpoint: endpoint,
			ExcludedRoutes: map[string]struct{}{
				"/v1/health":    {},
				"/v1/readiness": {},
			},
			Probability: prob,
			ResourceAttributes: map[string]string{
				"library.language": "go",
				"k8s.pod.name":     os.Getenv("POD_NAME"),
				"k8s.namespace":    os.Getenv("POD_NAMESPACE"),
				"k8s.container.id": hostname,
			},
			InsecureExporter: envBool("QBEACON_SIM_OTLP_INSECURE"),
		})
		if err != nil {
			return fmt.Errorf("starting tracing: %w", err)
		}
		defer teardown(ctx)

		tracer = traceProvider.Tracer(serviceType)
	} else {
		tracer = noop.NewTracerProvider().Tracer(serviceType)
	}

	// -------------------------------------------------------------------------
	// Start Debug Service

	if debugHost := os.Getenv("QBEACON_SIM_DEBUG_HOST"); debugHost != "" {
		go func() {
			log.Info(ctx, "startup", "status", "debug router started", "host", debugHost)

			mux, err := debug.Mux()
			if err != nil {
				log.Error(ctx, "startup", "status", "debug router failed to build", "err", err)
				return
			}
			if err := http.ListenAndServe(debugHost, mux); err != nil {
				log.Error(ctx, "shutdown", "status", "debug router closed", "host", debugHost, "msg", err)
			}
		}()
	}

	// -------------------------------------------------------------------------
	// Start Simulated Backend

	log.Info(ctx, "startup", "status", "initializing simulated backend",
		"step_delay", cfg.StepDelay,
		"auth_enabled", cfg.Token != "",
	)

	serveCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := simulator.NewServer(cfg, log, tracer)
	if err := srv.Start(serveCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("simulator server: %w", err)
	}

	log.Info(ctx, "shutdown", "status", "simulator stopped")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
