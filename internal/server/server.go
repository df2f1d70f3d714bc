// Package server provides the HTTP server: health, batch video API,
// session controls, the frame websocket and the kiosk MJPEG stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/repcounter/internal/server/api"
	"github.com/ayusman/repcounter/internal/session"
	"github.com/ayusman/repcounter/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Sessions  *session.Manager
	// Frames handles /ws/frames.
	Frames http.Handler
	// Runner enables /api/videos.
	Runner            api.Runner
	OutputDir         string
	MaxConcurrentJobs int
	// Preview enables /api/stream when a kiosk loop is running.
	Preview FrameSource
	Logger  *slog.Logger
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Runner != nil {
		videos := api.NewVideoHandler(s.config.Runner, s.config.Store, s.config.OutputDir,
			s.config.MaxConcurrentJobs, s.config.Logger)
		s.mux.Handle("/api/videos", videos)
		s.mux.Handle("/api/videos/", videos)
	}

	if s.config.Sessions != nil {
		sessions := api.NewSessionHandler(s.config.Sessions)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
		s.mux.HandleFunc("/api/reset", sessions.ResetShared)
	}

	if s.config.Store != nil {
		s.mux.Handle("/api/history", api.NewHistoryHandler(s.config.Store))
	}

	if s.config.Frames != nil {
		s.mux.Handle("/ws/frames", s.config.Frames)
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Preview))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(s.start)

	response := map[string]interface{}{
		"status": "ok",
		"uptime": uptime.String(),
	}
	if s.config.Sessions != nil {
		response["sessions"] = s.config.Sessions.Len()
		response["shared_counter"] = s.config.Sessions.Shared()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe starts the HTTP server on addr and blocks until ctx is
// cancelled, then shuts down gracefully within timeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, timeout time.Duration) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.config.Logger.Info("server: listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.config.Logger.Info("server: shutting down", "timeout", timeout)
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
