// Package app wires the monitoring components from configuration. It is shared
// by the server and the operator CLI so both act on the same state.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/timmy/linkwatch/internal/browser"
	"github.com/timmy/linkwatch/internal/config"
	"github.com/timmy/linkwatch/internal/credential"
	"github.com/timmy/linkwatch/internal/dedup"
	"github.com/timmy/linkwatch/internal/fetcher"
	"github.com/timmy/linkwatch/internal/logger"
	"github.com/timmy/linkwatch/internal/metrics"
	"github.com/timmy/linkwatch/internal/repository"
	"github.com/timmy/linkwatch/internal/service"
	"github.com/timmy/linkwatch/internal/storage"
	"gorm.io/gorm"
)

// App holds every long-lived component.
type App struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *gorm.DB

	Accounts   *repository.AccountRepository
	Items      *repository.ItemRepository
	Operations *repository.OperationRepository
	Settings   *repository.SettingRepository

	Credentials *credential.Store
	Sessions    *browser.Manager
	Fetchers    *fetcher.Registry
	Collector   *service.Collector
	Scheduler   *service.Scheduler
	Queue       *service.Queue
	Exporter    *service.Exporter

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
}

// New builds the application from cfg. Nothing is started.
// Parameters:
//   - ctx: context used for the initial credential sync and bucket check.
//   - cfg: loaded configuration.
//   - log: process logger.
//
// Returns:
//   - *App: wired application.
//   - error: non-nil if the database, credential directory, browser session
//     root, fetchers or object storage cannot be prepared.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	a := &App{
		Config:     cfg,
		Logger:     log,
		DB:         db,
		Accounts:   repository.NewAccountRepository(db),
		Items:      repository.NewItemRepository(db),
		Operations: repository.NewOperationRepository(db),
		Settings:   repository.NewSettingRepository(db),
		Registry:   prometheus.NewRegistry(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	a.Credentials = credential.NewStore(
		repository.NewCredentialRepository(db),
		cfg.Credentials.Dir,
		credential.WithBurnThreshold(cfg.Credentials.BurnThreshold),
		credential.WithObserver(a.Metrics),
	)
	n, err := a.Credentials.Sync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to sync credentials: %w", err)
	}
	log.WithField(logger.FieldCount, n).Info("Credentials synced")

	a.Sessions, err = NewSessionManager(cfg.Browser, a.Metrics)
	if err != nil {
		return nil, err
	}

	a.Fetchers, err = fetcher.NewDefaultRegistry(cfg.Fetch)
	if err != nil {
		return nil, err
	}

	a.Collector = service.NewCollector(a.Credentials, a.Sessions, a.Fetchers, dedup.New(a.Items), a.Metrics, log)

	a.Scheduler = service.NewScheduler(a.Accounts, a.Settings, a.Collector, a.Sessions, a.Metrics, log, service.SchedulerConfig{
		Interval:      cfg.Scheduler.Interval,
		AccountPacing: cfg.Scheduler.AccountPacing,
		StopTimeout:   cfg.Scheduler.StopTimeout,
		FetchTimeout:  cfg.Scheduler.FetchTimeout,
		MaxItems:      cfg.Scheduler.MaxItemsFor,
	})

	a.Queue = service.NewQueue(a.Operations, a.Accounts, a.Collector, a.Metrics, log, service.QueueConfig{
		PollInterval: cfg.Queue.PollInterval,
		ResultCap:    cfg.Queue.ResultCap,
		StopTimeout:  cfg.Queue.StopTimeout,
		FetchTimeout: cfg.Queue.FetchTimeout,
	})

	archive, err := storage.New(cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		archive = nil
	case err != nil:
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	default:
		if s3, ok := archive.(*storage.S3Storage); ok {
			if err := s3.EnsureBucket(ctx); err != nil {
				return nil, fmt.Errorf("failed to ensure storage bucket: %w", err)
			}
		}
	}
	a.Exporter = service.NewExporter(a.Accounts, a.Items, archive, cfg.Storage.Prefix)

	return a, nil
}

// NewSessionManager builds the browser session manager for cfg.SessionRoot.
// Parameters:
//   - cfg: browser configuration.
//   - observer: optional session lifecycle observer.
//
// Returns:
//   - *browser.Manager: manager using Chrome strategies and the process reaper.
//   - error: non-nil if the session root cannot be prepared.
func NewSessionManager(cfg config.BrowserConfig, observer browser.Observer) (*browser.Manager, error) {
	return browser.NewManager(browser.ManagerConfig{
		Launcher: &browser.ChromeLauncher{Timeout: cfg.LaunchTimeout},
		Strategies: browser.DefaultStrategies(browser.StrategyConfig{
			ExecPath:  cfg.ExecPath,
			Headless:  cfg.Headless,
			Flags:     cfg.Flags,
			UserAgent: cfg.UserAgent,
		}),
		SessionRoot: cfg.SessionRoot,
		Reaper:      browser.NewProcessReaper(),
		Observer:    observer,
	})
}

// Close releases every browser session under the configured session root and
// the database.
func (a *App) Close(ctx context.Context) {
	if n, err := a.Sessions.ForceReleaseAll(ctx); err != nil {
		a.Logger.WithError(err).Warn("Failed to release browser sessions")
	} else if n > 0 {
		a.Logger.WithField(logger.FieldCount, n).Info("Released browser sessions")
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
