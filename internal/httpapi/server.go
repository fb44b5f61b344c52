// Package httpapi provides the HTTP sidecar for the PubMed MCP service:
// liveness and readiness probes, Prometheus metrics, and a status endpoint
// mirroring the MCP server's session and rate limiter state.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/helixir/pubmed-mcp-service/internal/ncbi"
	"github.com/helixir/pubmed-mcp-service/internal/ncbi/eutils"
)

// Config holds HTTP sidecar configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// ThrottleRPS and ThrottleBurst bound inbound request rates. Zero RPS
	// disables the throttle.
	ThrottleRPS   float64
	ThrottleBurst int

	// MetricsEnabled mounts the Prometheus endpoint at MetricsPath.
	MetricsEnabled bool
	MetricsPath    string
}

// Server is the HTTP sidecar.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	sessions   *eutils.SessionManager
	cores      map[string]*ncbi.Client
	registry   prometheus.Gatherer
	logger     zerolog.Logger
}

// NewServer creates the sidecar. cores maps API names to their request
// cores so /status can report limiter state; registry may be nil to serve
// the default Prometheus registry.
func NewServer(
	cfg Config,
	sessions *eutils.SessionManager,
	cores map[string]*ncbi.Client,
	registry prometheus.Gatherer,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		sessions: sessions,
		cores:    cores,
		registry: registry,
		logger:   logger.With().Str("component", "http-sidecar").Logger(),
	}

	s.router = s.buildRouter(cfg)

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.ThrottleRPS > 0 {
		r.Use(throttleMiddleware(cfg.ThrottleRPS, cfg.ThrottleBurst))
	}

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)
	r.Get("/status", s.statusHandler)

	if cfg.MetricsEnabled {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		if s.registry != nil {
			r.Handle(path, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
		} else {
			r.Handle(path, promhttp.Handler())
		}
	}

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start starts the sidecar and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP sidecar starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the sidecar.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readinessHandler(w http.ResponseWriter, _ *http.Request) {
	// The service has no external state to wait on; once the process is
	// serving, it is ready.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// limiterStatus reports one request core's rate limiter state.
type limiterStatus struct {
	Capacity  int     `json:"capacity"`
	Available float64 `json:"available"`
}

// statusPayload is the /status response body.
type statusPayload struct {
	Status   string                   `json:"status"`
	Session  eutils.PipelineSummary   `json:"session"`
	Limiters map[string]limiterStatus `json:"limiters"`
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	payload := statusPayload{
		Status:   "ok",
		Limiters: make(map[string]limiterStatus, len(s.cores)),
	}
	if s.sessions != nil {
		payload.Session = s.sessions.Summary()
	}
	for name, core := range s.cores {
		l := core.Limiter()
		payload.Limiters[name] = limiterStatus{
			Capacity:  l.Capacity(),
			Available: l.Tokens(),
		}
	}

	writeJSON(w, http.StatusOK, payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
