package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/server"
)

// Exit codes to provide meaningful status to the operating system or a
// service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return exitConfig, err
	}
	server.SetConfig(cfg)

	if err := server.StartHub(); err != nil {
		return exitRuntime, err
	}

	mux := server.SetupRoutes()
	httpServer := server.CreateServer(cfg.Addr(), mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stop:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = server.StopHub(shutdownTimeout)
			return exitRuntime, err
		}
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		_ = server.StopHub(shutdownTimeout)
		return exitRuntime, err
	}
	if err := server.StopHub(shutdownTimeout); err != nil {
		return exitRuntime, err
	}

	slog.Info("chat server stopped")
	return exitOK, nil
}
