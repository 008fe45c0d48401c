// Package apihttp exposes the coordinator's control plane: the websocket
// attach point for playback clients plus a small JSON API for loading and
// stopping media, status, health and metrics.
package apihttp

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/TypeA2/ai-sync/internal/session"
)

type Coordinator interface {
	SetFile(ctx context.Context, locator string) error
	StopPlayback() error
	Status() session.StatusSnapshot
}

// Transport is the websocket endpoint clients attach through.
type Transport interface {
	HandleUpgrade(w http.ResponseWriter, r *http.Request)
}

type Server struct {
	coord     Coordinator
	transport Transport
	mediaDir  string
	rateRPS   float64
	rateBurst int
	logger    *slog.Logger
	handler   http.Handler
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMediaDir restricts session locators to paths below dir.
func WithMediaDir(dir string) ServerOption {
	return func(s *Server) {
		s.mediaDir = dir
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		s.rateRPS = rps
		s.rateBurst = burst
	}
}

func NewServer(coord Coordinator, transport Transport, opts ...ServerOption) *Server {
	s := &Server{
		coord:     coord,
		transport: transport,
		rateRPS:   50,
		rateBurst: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/session", s.handleSession)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "ai-sync",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && p != "/ws"
		}),
	)
	s.handler = recoveryMiddleware(s.logger,
		rateLimitMiddleware(s.rateRPS, s.rateBurst,
			metricsMiddleware(corsMiddleware(traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.transport == nil {
		http.Error(w, "websocket not available", http.StatusServiceUnavailable)
		return
	}
	s.transport.HandleUpgrade(w, r)
}
