// internal/server/server.go
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dipshanrana/clipfetch/internal/config"
	"github.com/dipshanrana/clipfetch/internal/fetch"
	"github.com/dipshanrana/clipfetch/internal/media"
)

// MediaExtractor resolves a post URL into a media descriptor.
type MediaExtractor interface {
	Extract(ctx context.Context, rawURL, cookieHeader string) (*media.Descriptor, error)
}

// MediaFetcher turns asset URLs into bytes, on disk or in memory.
type MediaFetcher interface {
	FetchToPath(ctx context.Context, assetURL string, session media.SessionContext, referer, originURL string, route fetch.Route) (string, error)
	FetchToBuffer(ctx context.Context, assetURL string, session media.SessionContext, referer string) (string, []byte, error)
	ProxyFetch(ctx context.Context, rawURL string) (*http.Response, error)
}

// Shutdowner is anything that must be drained before the process exits,
// typically the browser manager.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Server owns the HTTP boundary: routing, DTO mapping, status-code policy.
type Server struct {
	cfg       config.ServerConfig
	extractor MediaExtractor
	fetcher   MediaFetcher
	cleanup   []Shutdowner
	logger    *zap.Logger

	httpServer *http.Server
}

// NewServer wires the API around an extractor and a fetcher. Shutdowners are
// drained in order after the HTTP listener stops.
func NewServer(cfg config.ServerConfig, extractor MediaExtractor, fetcher MediaFetcher, logger *zap.Logger, cleanup ...Shutdowner) *Server {
	s := &Server{
		cfg:       cfg,
		extractor: extractor,
		fetcher:   fetcher,
		cleanup:   cleanup,
		logger:    logger.Named("server"),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Routes builds the router. Exposed for handler tests.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/video/info", s.handleVideoInfo)
		r.Post("/video/download", s.handleVideoDownload)
		r.Post("/video/download/images", s.handleBulkImages)
		r.Post("/image/download", s.handleImageDownload)
		r.Post("/instagram/download", s.handleInstagramDownload)
		r.Get("/image/proxy", s.handleImageProxy)
	})

	return r
}

// requestLogger logs one line per request through the structured logger
// instead of chi's stdlib printer.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("Request handled.",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully within the configured window.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server starting.", zap.String("addr", s.cfg.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutdown signal received, draining.")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error.", zap.Error(err))
	}
	for _, c := range s.cleanup {
		if err := c.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Component shutdown error.", zap.Error(err))
		}
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
