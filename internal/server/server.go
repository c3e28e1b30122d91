// Package server exposes the relay over HTTP.
//
// Routes:
//
//	POST /agent/chat/{session_id}     multipart upload, field "file"
//	GET  /agent/history/{session_id}  committed turns as JSON
//	GET  /health, /healthz, /readyz   liveness and readiness
//	GET  /metrics                     Prometheus scrape endpoint
//	GET  /static/*                    web client assets and fallback audio
//	GET  /                            landing page
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/voxrelay/internal/health"
	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/relay"
	"github.com/MrWong99/voxrelay/pkg/types"
)

// DefaultMaxUploadBytes is the chat upload limit when none is configured.
const DefaultMaxUploadBytes int64 = 25 << 20

// Relay is the pipeline the chat endpoints drive. [*relay.Orchestrator]
// implements it.
type Relay interface {
	Chat(ctx context.Context, sessionID string, audio types.Audio) (*relay.Result, error)
	History(ctx context.Context, sessionID string) ([]types.Turn, error)
}

var _ Relay = (*relay.Orchestrator)(nil)

// Server routes HTTP requests to the relay. Build one with [New] and mount
// [Server.Handler] or call [Server.ListenAndServe].
type Server struct {
	relay          Relay
	health         *health.Handler
	metrics        *observe.Metrics
	metricsHandler http.Handler
	staticDir      string
	indexFile      string
	maxUpload      int64
	corsOrigins    []string
	rateRequests   int
	rateWindow     time.Duration
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts the liveness and readiness endpoints of h.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics recorded by the HTTP middleware. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler overrides the /metrics handler. Defaults to
// [promhttp.Handler], which serves the default Prometheus registry the OTel
// exporter writes to.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithStaticDir serves dir under /static/. Empty disables static files.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.staticDir = dir }
}

// WithIndexFile serves path at "/". Empty disables the landing page.
func WithIndexFile(path string) Option {
	return func(s *Server) { s.indexFile = path }
}

// WithMaxUploadBytes caps the chat request body. Non-positive values keep
// [DefaultMaxUploadBytes].
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// WithCORSOrigins enables CORS for the given browser origins.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimit limits chat requests to n per window per client IP. n <= 0
// disables limiting.
func WithRateLimit(n int, window time.Duration) Option {
	return func(s *Server) {
		s.rateRequests = n
		s.rateWindow = window
	}
}

// New creates a Server over r.
func New(r Relay, opts ...Option) *Server {
	s := &Server{relay: r, maxUpload: DefaultMaxUploadBytes}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.metricsHandler == nil {
		s.metricsHandler = promhttp.Handler()
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(observe.Middleware(s.metrics))
	if len(s.corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Correlation-ID"},
			ExposedHeaders: []string{"X-Correlation-ID"},
			MaxAge:         300,
		}))
	}

	r.Route("/agent", func(ar chi.Router) {
		chat := http.HandlerFunc(s.handleChat)
		if s.rateRequests > 0 {
			ar.With(httprate.LimitByIP(s.rateRequests, s.rateWindow)).
				Post("/chat/{session_id}", chat)
		} else {
			ar.Post("/chat/{session_id}", chat)
		}
		ar.Get("/history/{session_id}", s.handleHistory)
	})

	if s.health != nil {
		s.health.Register(r)
	}
	r.Method(http.MethodGet, "/metrics", s.metricsHandler)

	if s.staticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.staticDir))))
	}
	if s.indexFile != "" {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			http.ServeFile(w, req, s.indexFile)
		})
	}
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout. certFile and keyFile enable TLS when both
// are set. It returns nil after a clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		errCh <- err
	}()
	slog.Info("http server listening", "addr", addr, "tls", certFile != "")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	slog.Info("http server shutting down", "timeout", shutdownTimeout)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
