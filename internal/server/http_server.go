// Package server constructs and starts the HTTP service with helpers that
// apply sensible production defaults.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/history"
)

var (
	hubMu sync.Mutex
	hub   *Hub
)

// CreateServer creates and configures an HTTP server with the specified
// address and handler. It sets reasonable timeout values for production use.
func CreateServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartHub creates the history store from the active configuration, builds
// the hub, and starts its run loop. It must be called before the HTTP server
// accepts WebSocket upgrades. Calling it while a hub is already running is a
// no-op, so tests can share one instance.
func StartHub() error {
	hubMu.Lock()
	defer hubMu.Unlock()

	if hub != nil {
		return nil
	}

	cfg := currentConfig()
	store, err := history.NewStore(cfg.LogDir, slog.Default())
	if err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	hub = NewHub(store)
	go hub.Run()
	slog.Info("hub started", "history_dir", cfg.LogDir)
	return nil
}

// StopHub shuts the running hub down and forgets it, so a subsequent
// StartHub builds a fresh one.
func StopHub(timeout time.Duration) error {
	hubMu.Lock()
	h := hub
	hub = nil
	hubMu.Unlock()

	if h == nil {
		return nil
	}
	return h.Shutdown(timeout)
}

// GetHub returns the running hub instance, or nil before StartHub.
func GetHub() *Hub {
	hubMu.Lock()
	defer hubMu.Unlock()
	return hub
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server) error {
	slog.Info("server listening", "addr", server.Addr)
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting
// active connections, waiting for them to close or until the timeout.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	slog.Info("shutting down HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
		return err
	}

	slog.Info("HTTP server shutdown completed")
	return nil
}
