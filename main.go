package main

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"golang.org/x/sync/errgroup"

	"github.com/pacman82/klatsch/api"
	"github.com/pacman82/klatsch/chat"
	"github.com/pacman82/klatsch/config"
)

//go:embed static/*
var staticFiles embed.FS

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	history, err := chat.OpenSQLiteHistory(ctx, cfg.DatabasePath)
	if err != nil {
		slog.Error("failed to open chat history", "error", err)
		os.Exit(1)
	}
	defer history.Close()

	hub := chat.NewHub(chat.HubCapacity)
	coordinator := chat.NewCoordinator(history, hub)
	client := coordinator.Client()

	// shuttingDown is cancelled once, on the first shutdown signal, so every
	// open SSE stream unwinds promptly instead of holding the graceful
	// shutdown grace period open indefinitely.
	shuttingDown, stopShuttingDown := context.WithCancel(context.Background())
	defer stopShuttingDown()

	statsCtx, stopStats := context.WithCancel(context.Background())
	defer stopStats()
	go chat.RunStatsLog(statsCtx, 30*time.Second, hub, history)

	staticSub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		slog.Error("failed to create static file system", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(client, shuttingDown, staticSub)
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	g, gctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitForShutdownSignal(gctx)
		slog.Info("shutdown signal received")

		stopShuttingDown()
		stopStats()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if err := coordinator.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("coordinator shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("klatsch exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// waitForShutdownSignal blocks until SIGINT or SIGTERM is received, or ctx
// is done because the server already failed on its own.
func waitForShutdownSignal(ctx context.Context) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case <-ctx.Done():
	}
}
