// Package server provides the HTTP server and router for assetd.
//
// Routes:
//   - /health  - Health check endpoint
//   - /metrics - Prometheus metrics (when enabled)
//   - /        - Root index asset, or the demo page in demo mode
//   - /*       - Static assets from the configured source
//
// Only GET is served. Every other method gets 405 with "Allow: GET".
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/git-pkgs/assetd/internal/assets"
	"github.com/git-pkgs/assetd/internal/config"
	"github.com/git-pkgs/assetd/internal/metrics"
)

// Server is the asset server.
type Server struct {
	cfg       *config.Config
	source    assets.Source
	templates *Templates
	logger    *slog.Logger
	http      *http.Server
}

// New creates a new Server with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	source, err := OpenSource(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("opening asset source: %w", err)
	}

	s, err := newServer(cfg, source, logger)
	if err != nil {
		_ = source.Close()
		return nil, err
	}
	return s, nil
}

func newServer(cfg *config.Config, source assets.Source, logger *slog.Logger) (*Server, error) {
	templates, err := NewTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	s := &Server{
		cfg:       cfg,
		source:    source,
		templates: templates,
		logger:    logger,
	}

	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute, // Large assets need time
		IdleTimeout:       60 * time.Second,
	}

	return s, nil
}

// OpenSource builds the asset source described by cfg: a bucket when
// assets.url is set, otherwise the root directory, wrapped with the read
// limiter and the in-memory cache when they are enabled.
func OpenSource(ctx context.Context, cfg *config.Config) (assets.Source, error) {
	opts := assets.Options{
		IndexFile:     cfg.Assets.IndexFile,
		AllowDotfiles: cfg.Assets.AllowDotfiles,
	}

	var src assets.Source
	if cfg.Assets.URL != "" {
		b, err := assets.OpenBucket(ctx, cfg.Assets.URL, opts)
		if err != nil {
			return nil, err
		}
		src = b
	} else {
		d, err := assets.OpenDir(cfg.Assets.Root, opts)
		if err != nil {
			return nil, err
		}
		src = d
	}

	src = assets.Limit(src, cfg.Assets.MaxConcurrentReads)

	maxSize, err := config.ParseSize(cfg.Assets.Cache.MaxSize)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("invalid cache max_size: %w", err)
	}
	if maxSize == 0 {
		return src, nil
	}

	maxEntry, err := config.ParseSize(cfg.Assets.Cache.MaxEntrySize)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("invalid cache max_entry_size: %w", err)
	}

	cache, err := assets.NewCache(src, maxSize, maxEntry)
	if err != nil {
		_ = src.Close()
		return nil, err
	}
	return cache, nil
}

// Router returns the HTTP handler with all routes and middleware mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(s.LoggerMiddleware)
	r.Use(ActiveRequestsMiddleware)
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(methodNotAllowed)

	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	r.Get("/", s.handleRoot)
	r.Get("/*", s.handleAsset)

	return r
}

// Start binds the listen address and serves until Shutdown is called.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}

	s.logger.Info("starting server",
		"listen", ln.Addr().String(),
		"assets", s.describeSource(),
		"index_mode", s.cfg.Index.Mode,
		"cache", s.cfg.Assets.Cache.MaxSize,
		"metrics", s.cfg.Metrics.Enabled)

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and releases the asset source.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error

	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if s.source != nil {
		if err := s.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("asset source close: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (s *Server) describeSource() string {
	if s.cfg.Assets.URL != "" {
		return s.cfg.Assets.URL
	}
	return s.cfg.Assets.Root
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Index.Mode == config.IndexModeDemo {
		s.handleDemo(w, r)
		return
	}
	s.serveAsset(w, r, nil)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "ok")
}

// DemoData is rendered by the demo index page.
type DemoData struct {
	Title string
	Now   time.Time
}

func (s *Server) handleDemo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")

	data := DemoData{
		Title: "assetd",
		Now:   time.Now(),
	}
	if err := s.templates.Render(w, "demo", data); err != nil {
		s.logger.Error("failed to render demo page",
			"request_id", GetRequestID(r.Context()), "error", err)
	}
}
