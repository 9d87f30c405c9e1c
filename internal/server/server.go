// Package server is the development server: it serves the output directory,
// injects the live-reload client into HTML pages and pushes reload and
// build-error messages to connected browsers over a websocket.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/version"
)

const shutdownTimeout = 5 * time.Second

//go:embed client/reload.js
var reloadScript []byte

// Server serves cfg's output directory with live reload.
type Server struct {
	config *config.Config
	hub    *Hub
	logger logging.Logger

	serverMutex sync.RWMutex
	httpServer  *http.Server
	addr        net.Addr
	started     time.Time
}

// New creates a server that reports through hub.
func New(cfg *config.Config, hub *Hub, logger logging.Logger) *Server {
	return &Server{
		config: cfg,
		hub:    hub,
		logger: logger.WithComponent("server"),
	}
}

// AllowedOrigins returns the websocket origins accepted for cfg: the
// configured list plus the loopback names on the server port.
func AllowedOrigins(cfg *config.Config) []string {
	origins := []string{
		cfg.Address(),
		fmt.Sprintf("localhost:%d", cfg.Server.Port),
		fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port),
	}

	return append(origins, cfg.Server.AllowedOrigins...)
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	root := s.config.OutputPath("")

	mux := http.NewServeMux()
	mux.Handle("/ws", s.hub)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc(ReloadScriptPath, handleReloadScript)
	mux.Handle("/", htmlInjector{
		root: root,
		next: http.FileServer(http.Dir(root)),
	})

	return mux
}

// Run listens on the configured address until ctx is cancelled, then shuts
// the hub and the HTTP server down. The hub is stopped on every return.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		s.stopHub(ctx)
		return fmt.Errorf("listening on %s: %w", s.config.Address(), err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.serverMutex.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.started = time.Now()
	s.serverMutex.Unlock()

	site := "http://" + ln.Addr().String()
	s.logger.Info(ctx, "Serving "+s.config.Output.Dir, "url", site)

	if s.config.Server.Open {
		go s.openBrowser(ctx, site)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		s.stopHub(ctx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not closed by http.Server.Shutdown
	if err := s.hub.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, err, "Reload hub did not stop in time")
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	<-errCh

	s.logger.Info(ctx, "Server stopped")

	return nil
}

func (s *Server) stopHub(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.hub.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn(ctx, err, "Reload hub did not stop in time")
	}
}

// Addr is the address the server listens on, nil before Run.
func (s *Server) Addr() net.Addr {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()

	return s.addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.serverMutex.RLock()
	started := s.started
	s.serverMutex.RUnlock()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
		"version":   version.Short(),
		"clients":   s.hub.Clients(),
		"output":    s.config.Output.Dir,
	}
	if !started.IsZero() {
		health["uptime"] = time.Since(started).Round(time.Second).String()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Error(r.Context(), err, "Failed to encode health response")
	}
}

func handleReloadScript(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(reloadScript)
}

func (s *Server) openBrowser(ctx context.Context, target string) {
	time.Sleep(100 * time.Millisecond) // Give server time to start

	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		s.logger.Warn(ctx, err, "Refusing to open browser", "url", target)
		return
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", u.String())
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", u.String())
	case "darwin":
		cmd = exec.Command("open", u.String())
	default:
		s.logger.Warn(ctx, nil, "Cannot open browser on this platform", "os", runtime.GOOS)
		return
	}

	if err := cmd.Start(); err != nil {
		s.logger.Warn(ctx, err, "Failed to open browser")
		return
	}
	go func() { _ = cmd.Wait() }()
}
