package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taskpilot/internal/bridge"
	"taskpilot/internal/server"
	"taskpilot/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the WebSocket chat server",
	Long: `Starts the HTTP server: a browser chat page at /, the WebSocket
endpoint at /ws, and status routes at /healthz and /sessions. Each
connection gets its own isolated session.`,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	factory, err := buildFactory(ctx, cfg)
	if err != nil {
		return err
	}

	manager := session.NewManager(factory, logger)
	srv := server.New(manager, logger, bridge.Options{
		Capacity:  cfg.Stream.Capacity,
		KeepAlive: cfg.Stream.KeepAlive(),
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("server starting",
		zap.String("addr", cfg.Server.Addr),
		zap.String("model", cfg.LLM.Model))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if idle := cfg.Server.SessionIdle(); idle > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := manager.PruneIdle(idle); n > 0 {
						logger.Info("pruned idle sessions", zap.Int("count", n))
					}
				}
			}
		})
	}

	err = g.Wait()
	logger.Info("server stopped")
	return err
}
