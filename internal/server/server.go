// Package server provides the HTTP server for the roshambo game.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/roshambo/internal/gesture"
	"github.com/ayusman/roshambo/internal/logging"
	"github.com/ayusman/roshambo/internal/server/api"
	"github.com/ayusman/roshambo/internal/store"
)

// shutdownTimeout bounds graceful shutdown in Run.
const shutdownTimeout = 5 * time.Second

// Config holds the server configuration. Routes are registered only for the
// components that are set.
type Config struct {
	StaticDir string
	Store     *store.Store
	Game      api.Game
	Hands     api.HandSource
	Frames    FrameSource
	Hub       *Hub
	Logger    *zap.Logger
}

// Server represents the HTTP server for the game.
type Server struct {
	config Config
	logger *zap.Logger
	mux    *http.ServeMux
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		logger: logging.OrNop(config.Logger).Named("server"),
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Game != nil {
		api.NewGameHandler(s.config.Game).Register(s.mux)
	}

	if s.config.Store != nil {
		api.NewSettingsHandler(s.config.Store).Register(s.mux)
		if s.config.Hands != nil {
			api.NewSamplesHandler(s.config.Store, s.config.Hands).Register(s.mux)
		}
	}

	if s.config.Frames != nil {
		var move func() gesture.Label
		if s.config.Game != nil {
			move = func() gesture.Label { return s.config.Game.Move().Effective }
		}
		s.mux.Handle("GET /api/stream", NewStreamHandler(s.config.Frames, move))
	}

	if s.config.Hub != nil {
		s.mux.Handle("GET /api/events", s.config.Hub)
	}

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

	response := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}
	if s.config.Game != nil {
		response["detection"] = s.config.Game.State().Detection
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	if s.config.Hub != nil {
		s.config.Hub.CloseAll()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
