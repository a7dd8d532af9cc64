package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/video-system/go-timelapse/pkg/framestore"
	"github.com/video-system/go-timelapse/pkg/timelapse"
)

// Engine is the capture run the API reports on
type Engine interface {
	Status() timelapse.Status
	Latest(ctx context.Context) (framestore.Record, error)
	Stop() error
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Host   string
	Port   int
	Engine Engine
	Logger *slog.Logger
}

// Server is the HTTP API server
type Server struct {
	cfg    ServerConfig
	log    *slog.Logger
	router chi.Router
	server *http.Server
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{cfg: cfg, log: logger.With("component", "api")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/frames/latest", s.handleLatest)
		r.Get("/frames/latest/image", s.handleLatestImage)
		r.Post("/stop", s.handleStop)
	})
	s.router = r

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server. It returns nil after Stop.
func (s *Server) Start() error {
	s.log.Info("API server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}

// Stop stops the API server
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Warn("API server shutdown", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "go-timelapse",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Engine.Status())
}

func (s *Server) latest(w http.ResponseWriter, r *http.Request) (framestore.Record, bool) {
	rec, err := s.cfg.Engine.Latest(r.Context())
	if errors.Is(err, framestore.ErrNoFrames) {
		writeError(w, http.StatusNotFound, err)
		return rec, false
	}
	if err != nil {
		s.log.Error("Latest frame lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return rec, false
	}
	return rec, true
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if rec, ok := s.latest(w, r); ok {
		writeJSON(w, http.StatusOK, rec)
	}
}

func (s *Server) handleLatestImage(w http.ResponseWriter, r *http.Request) {
	if rec, ok := s.latest(w, r); ok {
		w.Header().Set("Content-Type", "image/png")
		http.ServeFile(w, r, rec.Path)
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Engine.Stop(); err != nil {
		s.log.Error("Stop failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "stopping",
		"timestamp": time.Now().UnixMilli(),
	})
}
