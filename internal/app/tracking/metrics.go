package tracking

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/quantum-beacon/internal/infra/transport/rest"
	"github.com/ahrav/quantum-beacon/internal/infra/transport/websocket"
)

// TrackerMetrics defines the metrics operations needed by the tracking
// pipeline.
type TrackerMetrics interface {
	// Transport channel metrics.
	websocket.SessionMetrics
	rest.ClientMetrics

	// Resolver metrics.
	IncStatusUpdate(ctx context.Context, channel, status string)
	IncChannelFallback(ctx context.Context, reason string)
	IncWaitOutcome(ctx context.Context, channel, outcome string)
	ObserveWaitDuration(ctx context.Context, duration time.Duration)

	// Tracking run metrics.
	IncJobsTracked(ctx context.Context, count int)
	IncActiveWaits(ctx context.Context)
	DecActiveWaits(ctx context.Context)
}

var _ TrackerMetrics = (*trackerMetrics)(nil)

// trackerMetrics implements TrackerMetrics.
type trackerMetrics struct {
	// Websocket session metrics.
	framesSent      metric.Int64Counter
	framesReceived  metric.Int64Counter
	framesDiscarded metric.Int64Counter
	sessionErrors   metric.Int64Counter

	// REST client metrics.
	apiRequests metric.Int64Counter
	apiRetries  metric.Int64Counter

	// Resolver metrics.
	statusUpdates    metric.Int64Counter
	channelFallbacks metric.Int64Counter
	waitOutcomes     metric.Int64Counter
	waitDuration     metric.Float64Histogram

	// Tracking run metrics.
	jobsTracked metric.Int64Counter
	activeWaits metric.Int64UpDownCounter
}

const namespace = "tracker"

// NewTrackerMetrics creates a new tracking metrics instance.
func NewTrackerMetrics(mp metric.MeterProvider) (*trackerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	t := new(trackerMetrics)
	var err error

	// Initialize websocket session metrics.
	if t.framesSent, err = meter.Int64Counter(
		"frames_sent_total",
		metric.WithDescription("Total number of websocket frames sent"),
	); err != nil {
		return nil, err
	}

	if t.framesReceived, err = meter.Int64Counter(
		"frames_received_total",
		metric.WithDescription("Total number of websocket frames received"),
	); err != nil {
		return nil, err
	}

	if t.framesDiscarded, err = meter.Int64Counter(
		"frames_discarded_total",
		metric.WithDescription("Total number of websocket frames discarded without being applied"),
	); err != nil {
		return nil, err
	}

	if t.sessionErrors, err = meter.Int64Counter(
		"session_errors_total",
		metric.WithDescription("Total number of websocket sessions ending in error"),
	); err != nil {
		return nil, err
	}

	// Initialize REST client metrics.
	if t.apiRequests, err = meter.Int64Counter(
		"api_requests_total",
		metric.WithDescription("Total number of backend API requests"),
	); err != nil {
		return nil, err
	}

	if t.apiRetries, err = meter.Int64Counter(
		"api_retries_total",
		metric.WithDescription("Total number of retried backend API requests"),
	); err != nil {
		return nil, err
	}

	// Initialize resolver metrics.
	if t.statusUpdates, err = meter.Int64Counter(
		"status_updates_total",
		metric.WithDescription("Total number of accepted job status updates"),
	); err != nil {
		return nil, err
	}

	if t.channelFallbacks, err = meter.Int64Counter(
		"channel_fallbacks_total",
		metric.WithDescription("Total number of wait calls that fell back to polling"),
	); err != nil {
		return nil, err
	}

	if t.waitOutcomes, err = meter.Int64Counter(
		"wait_outcomes_total",
		metric.WithDescription("Total number of completed wait calls by outcome"),
	); err != nil {
		return nil, err
	}

	if t.waitDuration, err = meter.Float64Histogram(
		"wait_duration_seconds",
		metric.WithDescription("Time from wait start to terminal status, error, or timeout"),
	); err != nil {
		return nil, err
	}

	// Initialize tracking run metrics.
	if t.jobsTracked, err = meter.Int64Counter(
		"jobs_tracked_total",
		metric.WithDescription("Total number of jobs handed to the tracker"),
	); err != nil {
		return nil, err
	}

	if t.activeWaits, err = meter.Int64UpDownCounter(
		"active_waits",
		metric.WithDescription("Number of wait calls currently in flight"),
	); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *trackerMetrics) IncFrameSent(ctx context.Context, frameType string) {
	t.framesSent.Add(ctx, 1, metric.WithAttributes(attribute.String("frame_type", frameType)))
}

func (t *trackerMetrics) IncFrameReceived(ctx context.Context, frameType string) {
	t.framesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("frame_type", frameType)))
}

func (t *trackerMetrics) IncFrameDiscarded(ctx context.Context, reason string) {
	t.framesDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (t *trackerMetrics) IncSessionError(ctx context.Context, kind string) {
	t.sessionErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (t *trackerMetrics) IncRequest(ctx context.Context, operation string, statusCode int) {
	t.apiRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.Int("status_code", statusCode),
	))
}

func (t *trackerMetrics) IncRetry(ctx context.Context, operation string) {
	t.apiRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func (t *trackerMetrics) IncStatusUpdate(ctx context.Context, channel, status string) {
	t.statusUpdates.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("status", status),
	))
}

func (t *trackerMetrics) IncChannelFallback(ctx context.Context, reason string) {
	t.channelFallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (t *trackerMetrics) IncWaitOutcome(ctx context.Context, channel, outcome string) {
	t.waitOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}

func (t *trackerMetrics) ObserveWaitDuration(ctx context.Context, duration time.Duration) {
	t.waitDuration.Record(ctx, duration.Seconds())
}

func (t *trackerMetrics) IncJobsTracked(ctx context.Context, count int) {
	t.jobsTracked.Add(ctx, int64(count))
}

func (t *trackerMetrics) IncActiveWaits(ctx context.Context) { t.activeWaits.Add(ctx, 1) }

func (t *trackerMetrics) DecActiveWaits(ctx context.Context) { t.activeWaits.Add(ctx, -1) }
