package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/linkwatch/internal/api"
	"github.com/timmy/linkwatch/internal/app"
	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/config"
	"github.com/timmy/linkwatch/internal/logger"
)

func main() {
	// Logger first, from the environment.
	appLogger := logger.NewFromEnv(logger.LoadFromEnv())
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := logger.SetComponent(context.Background(), "server")

	a, err := app.New(ctx, cfg, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}

	// Leftover browsers from a crashed run hold memory and profile locks.
	if n, err := a.Sessions.ForceReleaseAll(ctx); err != nil {
		appLogger.WithError(err).Warn("Startup browser cleanup failed")
	} else if n > 0 {
		appLogger.WithField(logger.FieldCount, n).Warn("Reaped browsers left by a previous run")
	}

	var watchdog *browser.Watchdog
	if cfg.Browser.WatchdogEnabled {
		watchdog, err = browser.NewWatchdog(a.Sessions, cfg.Browser.WatchdogSpec)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to create browser watchdog")
		}
		watchdog.Start()
	}

	if err := a.Queue.Start(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to start operation queue")
	}

	if cfg.Scheduler.Enabled {
		resumed, err := a.Scheduler.ResumeIfRunning(ctx)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to resume scheduler")
		}
		if resumed {
			appLogger.Info("Scheduler resumed from persisted state")
		}
	}

	router := api.SetupRouter(api.Dependencies{
		DB:          a.DB,
		Accounts:    a.Accounts,
		Items:       a.Items,
		Exporter:    a.Exporter,
		Queue:       a.Queue,
		Scheduler:   a.Scheduler,
		Credentials: a.Credentials,
		Sessions:    a.Sessions,
		Gatherer:    a.Registry,
		Logger:      appLogger,
	}, cfg.Server, cfg.Scheduler.Enabled)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}

	// Workers stop without touching the persisted scheduler status, so a
	// running scheduler resumes on the next start.
	if err := a.Queue.Stop(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Operation queue did not stop cleanly")
	}
	if err := a.Scheduler.Halt(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Scheduler did not stop cleanly")
	}
	if watchdog != nil {
		watchdog.Stop()
	}
	a.Close(shutdownCtx)

	appLogger.Info("Server exited")
}
