// Package preview serves the output root over HTTP for local inspection.
package preview

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/sitepress/internal/logfields"
)

// Server is a static file server over the build output. When a Prometheus
// registry is provided, /metrics is exposed on the same listener.
type Server struct {
	addr     string
	root     string
	registry *prom.Registry
	logger   *slog.Logger
}

// New creates a preview server for the given output directory. registry may
// be nil to disable the metrics endpoint.
func New(addr, root string, registry *prom.Registry) *Server {
	if addr == "" {
		addr = ":8080"
	}
	return &Server{
		addr:     addr,
		root:     root,
		registry: registry,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (s *Server) WithLogger(logger *slog.Logger) *Server {
	s.logger = logger
	return s
}

// Handler builds the HTTP handler: static files, plus /metrics when a
// registry is configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(s.root)))
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Preview server listening", logfields.Path(s.root), slog.String("addr", s.addr))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
