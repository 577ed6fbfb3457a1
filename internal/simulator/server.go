package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gws "github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/quantum-beacon/internal/domain/execution"
	"github.com/ahrav/quantum-beacon/pkg/common/logger"
	"github.com/ahrav/quantum-beacon/pkg/common/otel"
	"github.com/ahrav/quantum-beacon/pkg/common/validate"
)

// Server hosts the simulated execution service.
type Server struct {
	cfg    Config
	logger *logger.Logger
	router *chi.Mux
	tracer trace.Tracer

	store    *Store
	upgrader gws.Upgrader

	done      chan struct{}
	closeOnce sync.Once
}

// NewServer builds the simulator with its routes bound.
func NewServer(cfg Config, log *logger.Logger, tracer trace.Tracer) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(otel.Middleware(tracer))
	r.Use(loggerMiddleware(log))
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:    cfg,
		logger: log.With("component", "simulator"),
		router: r,
		tracer: tracer,
		store:  NewStore(),
		done:   make(chan struct{}),
	}

	s.routes()
	return s
}

func loggerMiddleware(log *logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				ctx := r.Context()
				log.Info(ctx, "Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
					"trace_id", otel.GetTraceID(ctx),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) routes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/readiness", s.handleReadiness)

		// The stream authenticates in-band with its first frame, so it
		// sits outside the bearer-token group.
		r.Get("/jobs/{jobID}/status/stream", s.handleStatusStream)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/devices", s.handleDevices)
			r.Post("/jobs", s.handleSubmitJob)
			r.Get("/jobs/{jobID}/status", s.handleJobStatus)
			r.Get("/jobs/{jobID}/result", s.handleJobResult)
			r.Post("/jobs/{jobID}/cancel", s.handleCancelJob)
		})
	})
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}

		const prefix = "Bearer "
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, prefix) || strings.TrimPrefix(header, prefix) != s.cfg.Token {
			s.respondError(w, r, http.StatusUnauthorized, "invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type submitRequest struct {
	Device  string          `json:"device" validate:"required"`
	Program json.RawMessage `json:"program" validate:"required"`
	Shots   int             `json:"shots" validate:"min=0"`
}

type jobResponse struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type statusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Check(req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := s.deviceByName(req.Device); !ok {
		s.respondError(w, r, http.StatusBadRequest, fmt.Sprintf("unknown device %q", req.Device))
		return
	}

	j := s.store.Create(req.Device, req.Shots, programWantsFailure(req.Program))
	go s.runLifecycle(j)

	s.logger.Info(r.Context(), "Job submitted",
		"job_id", j.id, "device", j.device, "shots", j.shots)

	s.respond(w, r, http.StatusCreated, jobResponse{
		ID:        j.id,
		Device:    j.device,
		Status:    j.Status().String(),
		CreatedAt: j.createdAt,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := s.store.Get(chi.URLParam(r, "jobID"))
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "job not found")
		return
	}
	s.respond(w, r, http.StatusOK, statusResponse{ID: j.id, Status: j.Status().String()})
}

func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	j, ok := s.store.Get(chi.URLParam(r, "jobID"))
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "job not found")
		return
	}

	if status := j.Status(); status != execution.JobStatusDone {
		s.respondError(w, r, http.StatusConflict,
			fmt.Sprintf("job result not ready: status %s", status))
		return
	}
	s.respond(w, r, http.StatusOK, j.result())
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.store.Get(chi.URLParam(r, "jobID"))
	if !ok {
		s.respondError(w, r, http.StatusNotFound, "job not found")
		return
	}

	if !j.requestCancel() {
		s.respondError(w, r, http.StatusConflict, "job already terminal")
		return
	}

	s.logger.Info(r.Context(), "Job cancellation requested", "job_id", j.id)
	s.respond(w, r, http.StatusAccepted, statusResponse{ID: j.id, Status: "cancellation requested"})
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	catalog := s.cfg.devices()
	devices := make([]execution.Device, len(catalog))
	for i, d := range catalog {
		d.PendingJobs = s.store.PendingOn(d.Name)
		devices[i] = d
	}
	s.respond(w, r, http.StatusOK, devices)
}

// programWantsFailure inspects the submitted program for the fail
// directive that scripts an ERROR outcome. Programs arrive either as a
// JSON object or as a string of serialized JSON, mirroring how circuits
// ship in serialized form.
func programWantsFailure(program json.RawMessage) bool {
	raw := []byte(program)

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		raw = []byte(text)
	}

	var directives struct {
		Fail bool `json:"fail"`
	}
	if err := json.Unmarshal(raw, &directives); err != nil {
		return false
	}
	return directives.Fail
}

func (s *Server) deviceByName(name string) (execution.Device, bool) {
	for _, d := range s.cfg.devices() {
		if d.Name == name {
			return d, true
		}
	}
	return execution.Device{}, false
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(r.Context(), "Failed to encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	s.respond(w, r, code, map[string]string{"error": msg})
}

// Handler exposes the routed mux so tests can mount the simulator on an
// httptest server.
func (s *Server) Handler() http.Handler { return s.router }

// Stop unwinds running job lifecycles and open streams.
func (s *Server) Stop() { s.closeOnce.Do(func() { close(s.done) }) }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port),
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		s.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(shutdownCtx, "Failed to shut down simulator", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting simulator",
		"addr", server.Addr,
		"devices", len(s.cfg.devices()),
	)

	return server.ListenAndServe()
}
