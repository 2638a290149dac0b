package server

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kartoza/soc-estimator/internal/api"
	"github.com/kartoza/soc-estimator/internal/config"
	"github.com/kartoza/soc-estimator/internal/form"
	"github.com/kartoza/soc-estimator/internal/predictor"
	"github.com/kartoza/soc-estimator/internal/profile"
	"github.com/kartoza/soc-estimator/internal/session"
)

//go:embed static/*
var staticFS embed.FS

// Server holds all the components for the web application
type Server struct {
	mu         sync.RWMutex
	cfg        config.Config
	logger     *zap.Logger
	httpServer *http.Server
	router     *mux.Router
	client     *predictor.Client
	profiles   *profile.Store
	watcher    *profile.Watcher
	sessions   *session.Store
	cancel     context.CancelFunc
}

// New creates a new Server with all components initialized
func New(cfg config.Config, logger *zap.Logger) (*Server, error) {
	formOpts, err := cfg.FormOptions()
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: mux.NewRouter(),
		client: predictor.New(cfg.Endpoint, predictor.WithTimeout(cfg.GetTimeout())),
	}

	// Presentation profile, hot-reloaded when loaded from a file
	p, err := profile.Load(cfg.ProfilePath)
	if err != nil {
		logger.Warn("Profile not available, using built-in profile",
			zap.String("path", cfg.ProfilePath), zap.Error(err))
		p = profile.Default()
	}
	s.profiles = profile.NewStore(p)
	if cfg.ProfilePath != "" {
		w, err := profile.NewWatcher(cfg.ProfilePath, s.profiles, logger)
		if err != nil {
			logger.Warn("Profile watcher not available", zap.Error(err))
		} else {
			s.watcher = w
		}
	}

	s.sessions = session.NewStore(cfg.MaxSessions, cfg.GetSessionTTL(), func() *form.PredictorForm {
		return form.New(s.client, formOpts)
	})

	s.setupRoutes()

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Settings are served by the server itself since they describe its wiring
	s.router.HandleFunc("/api/settings", s.handleSettings).Methods("GET")
	s.router.HandleFunc("/api/settings", s.handleUpdateSettings).Methods("PUT")

	// API routes
	apiRouter := s.router.PathPrefix("/api").Subrouter()
	apiHandler := api.NewHandler(s.sessions, s.profiles, s.client, s.cfg, s.logger)
	apiHandler.RegisterRoutes(apiRouter)

	// Static frontend files (embedded)
	staticContent, err := fs.Sub(staticFS, "static")
	if err != nil {
		s.logger.Warn("Could not load embedded static files", zap.Error(err))
		return
	}

	// SPA fallback: serve index.html for any non-API route
	fileServer := http.FileServer(http.FS(staticContent))
	s.router.PathPrefix("/").Handler(spaHandler{staticContent: staticContent, fileServer: fileServer})
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP connections
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	if s.watcher != nil {
		if err := s.watcher.Start(ctx); err != nil {
			s.logger.Warn("Profile watcher failed to start", zap.Error(err))
		}
	}

	s.httpServer = s.newHTTPServer()

	s.logger.Info("Server listening", zap.String("url", "http://localhost"+s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) newHTTPServer() *http.Server {
	s.mu.RLock()
	port, timeout := s.cfg.Port, s.cfg.GetTimeout()
	s.mu.RUnlock()

	// Responses wait on the prediction, so the write deadline follows its
	// timeout and is off when predictions have none
	var writeTimeout time.Duration
	if timeout > 0 {
		writeTimeout = timeout + 15*time.Second
	}
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// spaHandler serves the SPA, falling back to index.html for unknown paths
type spaHandler struct {
	staticContent fs.FS
	fileServer    http.Handler
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/" {
		path = "index.html"
	}

	// fs.FS paths must not have a leading slash
	cleanPath := strings.TrimPrefix(path, "/")

	if _, err := fs.Stat(h.staticContent, cleanPath); err != nil {
		r.URL.Path = "/"
	}

	h.fileServer.ServeHTTP(w, r)
}
