// Package rest implements the JSON-over-HTTP backend client. It covers job
// submission, the polling fallback for status resolution, result retrieval,
// cancellation requests, and device inventory. Retries are bounded and only
// applied to transport errors and 5xx responses; client errors surface
// immediately.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
	"github.com/ahrav/quantum-beacon/pkg/common"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
)

var (
	_ execution.StatusPoller = (*Client)(nil)
	_ execution.JobCanceller = (*Client)(nil)
)

// ClientMetrics defines the metrics recorded by the REST client.
type ClientMetrics interface {
	// IncRequest increments the counter for completed requests, keyed by
	// operation and response status code.
	IncRequest(ctx context.Context, operation string, statusCode int)

	// IncRetry increments the counter for retried requests.
	IncRetry(ctx context.Context, operation string)
}

const (
	defaultRequestTimeout    = 30 * time.Second
	defaultRetryMaxElapsed   = 2 * time.Minute
	defaultRequestsPerSecond = 10
	defaultBurst             = 20

	retryInitialInterval = 500 * time.Millisecond
)

// Config holds the backend connection parameters.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1.
	BaseURL string

	// Token authenticates every request.
	Token string

	// RequestTimeout bounds each HTTP round trip. Defaults to 30s.
	RequestTimeout time.Duration

	// RetryMaxElapsed bounds the total retry budget per call. The caller's
	// context deadline still applies on top. Defaults to 2m.
	RetryMaxElapsed time.Duration

	// RequestsPerSecond and Burst configure client-side rate limiting so a
	// large tracked-job fleet stays inside the backend's per-token quota.
	RequestsPerSecond float64
	Burst             int
}

// Client is the HTTP client for the job execution backend. Safe for
// concurrent use; all methods honor the caller's context.
type Client struct {
	cfg *Config

	httpClient *http.Client
	limiter    *common.RateLimiter

	logger  *logger.Logger
	tracer  trace.Tracer
	metrics ClientMetrics
}

// NewClient creates a backend client for the given configuration.
func NewClient(cfg *Config, log *logger.Logger, metrics ClientMetrics, tracer trace.Tracer) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: common.NewRateLimiter(rps, burst),
		logger:  log.With("component", "rest_client"),
		tracer:  tracer,
		metrics: metrics,
	}
}

// SubmitRequest describes one program submission.
type SubmitRequest struct {
	Device  string `json:"device"`
	Program string `json:"program"`
	Shots   int    `json:"shots,omitempty"`
}

type jobEnvelope struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type statusEnvelope struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// SubmitJob submits a program for execution and returns the tracked job in
// its backend-assigned initial status.
func (c *Client) SubmitJob(ctx context.Context, req SubmitRequest) (*execution.Job, error) {
	ctx, span := c.tracer.Start(ctx, "rest_client.submit_job",
		trace.WithAttributes(attribute.String("device", req.Device)))
	defer span.End()

	var env jobEnvelope
	call := apiRequest{
		operation:  "submit_job",
		method:     http.MethodPost,
		parts:      []string{"jobs"},
		body:       req,
		wantStatus: http.StatusCreated,
		out:        &env,
	}
	if err := c.do(ctx, call); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
		return nil, err
	}

	status, err := execution.ParseJobStatus(env.Status)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("submit response: %w", err)
	}

	span.SetAttributes(attribute.String("job_id", env.ID))
	c.logger.Info(ctx, "Job submitted", "job_id", env.ID, "device", env.Device, "status", status)
	return execution.NewJob(env.ID, env.Device, status), nil
}

// JobStatus fetches the job's current status. This is the polling fallback's
// single lookup: an unknown job maps to ErrJobNotFound so the wait call can
// fail fast instead of polling a job the backend does not know.
func (c *Client) JobStatus(ctx context.Context, jobID string) (execution.JobStatus, error) {
	ctx, span := c.tracer.Start(ctx, "rest_client.job_status",
		trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()

	var env statusEnvelope
	call := apiRequest{
		operation:  "job_status",
		method:     http.MethodGet,
		parts:      []string{"jobs", jobID, "status"},
		wantStatus: http.StatusOK,
		out:        &env,
	}
	if err := c.do(ctx, call); err != nil {
		span.RecordError(err)
		return "", err
	}

	status, err := execution.ParseJobStatus(env.Status)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("status response: %w", err)
	}
	return status, nil
}

// JobResult fetches the measurement results of a finished job. The backend
// answers 409 until the job is DONE; that maps to ErrResultNotReady.
func (c *Client) JobResult(ctx context.Context, jobID string) (*execution.Result, error) {
	ctx, span := c.tracer.Start(ctx, "rest_client.job_result",
		trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()

	var result execution.Result
	call := apiRequest{
		operation:  "job_result",
		method:     http.MethodGet,
		parts:      []string{"jobs", jobID, "result"},
		wantStatus: http.StatusOK,
		out:        &result,
		conflict:   execution.ErrResultNotReady,
	}
	if err := c.do(ctx, call); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return &result, nil
}

// CancelJob asks the backend to cancel the job. This is an acknowledgment
// only: the job is not CANCELLED until that status arrives through the
// normal tracking channels, and cancellation of an already-terminal job is
// reported by the backend as a conflict.
func (c *Client) CancelJob(ctx context.Context, jobID string) error {
	ctx, span := c.tracer.Start(ctx, "rest_client.cancel_job",
		trace.WithAttributes(attribute.String("job_id", jobID)))
	defer span.End()

	call := apiRequest{
		operation:  "cancel_job",
		method:     http.MethodPost,
		parts:      []string{"jobs", jobID, "cancel"},
		wantStatus: http.StatusAccepted,
	}
	if err := c.do(ctx, call); err != nil {
		span.RecordError(err)
		return err
	}

	c.logger.Info(ctx, "Job cancellation requested", "job_id", jobID)
	return nil
}

// Devices fetches the backend's device inventory.
func (c *Client) Devices(ctx context.Context) ([]execution.Device, error) {
	ctx, span := c.tracer.Start(ctx, "rest_client.devices")
	defer span.End()

	var devices []execution.Device
	call := apiRequest{
		operation:  "devices",
		method:     http.MethodGet,
		parts:      []string{"devices"},
		wantStatus: http.StatusOK,
		out:        &devices,
	}
	if err := c.do(ctx, call); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("device_count", len(devices)))
	return devices, nil
}

// LeastBusy returns the online device with the fewest pending jobs, the
// default target when the caller does not name one.
func (c *Client) LeastBusy(ctx context.Context) (execution.Device, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return execution.Device{}, err
	}
	return execution.LeastBusy(devices)
}

// apiRequest describes one backend call for the shared retry plumbing.
type apiRequest struct {
	operation  string
	method     string
	parts      []string
	body       any
	wantStatus int
	out        any

	// conflict, when set, is the sentinel a 409 response wraps.
	conflict error
}

// do runs one backend call with rate limiting and bounded exponential
// retry. Only transport errors and 5xx responses are retried; everything
// else is permanent.
func (c *Client) do(ctx context.Context, call apiRequest) error {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, call.parts...)
	if err != nil {
		return fmt.Errorf("building request url: %w", err)
	}

	var payload []byte
	if call.body != nil {
		payload, err = json.Marshal(call.body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	maxElapsed := c.cfg.RetryMaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = defaultRetryMaxElapsed
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = retryInitialInterval
	expBackoff.MaxElapsedTime = maxElapsed

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		return c.roundTrip(ctx, call, endpoint, payload)
	}
	notify := func(err error, next time.Duration) {
		c.logger.Warn(ctx, "Backend request failed, will retry",
			"operation", call.operation, "error", err, "next_attempt_in", next)
		if c.metrics != nil {
			c.metrics.IncRetry(ctx, call.operation)
		}
	}

	return backoff.RetryNotify(operation, backoff.WithContext(expBackoff, ctx), notify)
}

func (c *Client) roundTrip(ctx context.Context, call apiRequest, endpoint string, payload []byte) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, call.method, endpoint, body)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", call.method, endpoint, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if c.metrics != nil {
		c.metrics.IncRequest(ctx, call.operation, resp.StatusCode)
	}

	switch {
	case resp.StatusCode == call.wantStatus:
		if call.out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(call.out); err != nil {
			return backoff.Permanent(fmt.Errorf("decoding %s response: %w", call.operation, err))
		}
		return nil

	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, readAPIError(resp.Body))

	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("%w: %s", execution.ErrJobNotFound, readAPIError(resp.Body)))

	case resp.StatusCode == http.StatusConflict:
		if call.conflict != nil {
			return backoff.Permanent(fmt.Errorf("%w: %s", call.conflict, readAPIError(resp.Body)))
		}
		return backoff.Permanent(fmt.Errorf("backend rejected %s: %s", call.operation, readAPIError(resp.Body)))

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return backoff.Permanent(fmt.Errorf("%w: %s", execution.ErrAuthFailure, readAPIError(resp.Body)))

	default:
		return backoff.Permanent(fmt.Errorf("backend returned %d for %s: %s",
			resp.StatusCode, call.operation, readAPIError(resp.Body)))
	}
}

// readAPIError extracts the backend's error description from a response
// body, falling back to the raw text.
func readAPIError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return "no error detail"
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	if jsonErr := json.Unmarshal(data, &apiErr); jsonErr == nil && apiErr.Error != "" {
		return apiErr.Error
	}
	return strings.TrimSpace(string(data))
}
