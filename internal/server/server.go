// Package server is the transport layer in front of the dispatcher: a chi
// mux carrying the ambient middleware (logging, recovery, tracing) plus
// the operational endpoints, with everything else delegated to the core
// pipeline.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server hosts the HTTP listener.
type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
}

// New builds the transport mux around the core handler. The core receives
// every request not claimed by an operational endpoint.
func New(port int, logger *slog.Logger, core http.Handler) *Server {
	r := chi.NewRouter()

	r.Use(LoggingMiddleware(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "crux")
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Handle("/*", core)

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}
}

// Start blocks serving HTTP. Read/write deadlines belong here, at the
// transport: the pipeline itself never enforces timeouts.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.Int("port", s.Port))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv.ListenAndServe()
}
