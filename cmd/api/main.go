package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"courtboard/internal/api"
	"courtboard/internal/app"
	"courtboard/internal/config"
	"courtboard/internal/logging"
)

func main() {
	cfg := config.Load()

	logger := logging.Must(cfg.Env)
	defer logger.Sync()

	for _, w := range cfg.Warnings {
		logger.Warn("config", zap.String("warning", w))
	}

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}

func runHTTP(cfg config.App, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("close backends", zap.Error(err))
		}
	}()

	live := a.NewLiveMonitor(nil)
	go live.Run(ctx)

	r := api.NewRouter(api.Deps{
		Aggregator:      a.Aggregator,
		Actions:         a.Actions,
		Profiles:        a.Backends.Profiles,
		Feedback:        a.Feedback,
		Live:            live,
		Health:          a.Backends.Healthy,
		Gatherer:        a.Registry,
		Clock:           a.Clock,
		Logger:          logger,
		JWTSigningKey:   cfg.JWTSigningKey,
		JWTIssuer:       cfg.JWTIssuer,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	// Graceful shutdown. No WriteTimeout: day streams stay open.
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// Streams end with the signal context instead of holding up Shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.HTTPPort),
			zap.String("store", cfg.StoreBackend),
			zap.String("profiles", cfg.ProfileBackend),
			zap.String("venue_tz", cfg.VenueTZ))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", zap.Error(err))
	}

	logger.Info("server exited")
	return nil
}
