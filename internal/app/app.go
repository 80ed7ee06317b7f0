package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/runboard/runboard/internal/config"
	"github.com/runboard/runboard/internal/dataset"
	"github.com/runboard/runboard/internal/db"
	"github.com/runboard/runboard/internal/ratelimit"
	"github.com/runboard/runboard/internal/repository"
	"github.com/runboard/runboard/internal/service"
	"github.com/runboard/runboard/internal/settings"
	"github.com/runboard/runboard/internal/storage"
	"github.com/runboard/runboard/internal/strava"
)

// Manual sync requests allowed per client IP.
var SyncRequestLimits = []ratelimit.Window{
	{Limit: 5, Period: 15 * time.Minute},
}

type App struct {
	Cfg     *config.Config
	DB      *sqlx.DB
	Dataset *dataset.Cache

	// SyncLimiter throttles manual sync requests per client IP.
	SyncLimiter *ratelimit.Limiter

	SyncRuns         repository.SyncRunRepository
	SyncService      *service.SyncService
	StatsService     *service.StatsService
	DashboardService *service.DashboardService
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Data files
	datasetCache := dataset.NewCache(dataset.NewStore(cfg.DatasetPath()))
	settingsStore := settings.NewStore(cfg.SettingsPath(), cfg.DefaultMonthlyGoal)

	// Strava
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	tokens := strava.NewTokenProvider(strava.Credentials{
		ClientID:     cfg.StravaClientID,
		ClientSecret: cfg.StravaClientSecret,
		RefreshToken: cfg.StravaRefreshToken,
	}, cfg.StravaAuthURL, httpClient)
	budget, err := ratelimit.NewPersistent(cfg.BudgetPath(), strava.DefaultLimits...)
	if err != nil {
		return nil, fmt.Errorf("failed to load strava budget: %w", err)
	}
	client := strava.NewClient(strava.ClientConfig{
		BaseURL:    cfg.StravaAPIURL,
		HTTPClient: httpClient,
		Budget:     budget,
	})

	deps := service.SyncDeps{
		Tokens:        tokens,
		Fetcher:       client,
		Dataset:       datasetCache,
		Settings:      settingsStore,
		MaxActivities: cfg.SyncMaxActivities,
	}

	a := &App{
		Cfg:         cfg,
		Dataset:     datasetCache,
		SyncLimiter: ratelimit.New(SyncRequestLimits...),
	}

	// Mirror database (optional)
	if cfg.MirrorEnabled() {
		database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.DB = database

		err = db.RunMigrations(ctx, database.DB, cfg.DBDriver)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}

		deps.Activities = repository.NewActivityRepository(database)
		deps.Runs = repository.NewSyncRunRepository(database)
		a.SyncRuns = deps.Runs
	}

	// Backup storage (optional)
	if cfg.BackupEnabled() {
		backup, err := storage.New(ctx, cfg)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		deps.Backup = backup
	}

	// Services
	a.StatsService = service.NewStatsService()
	a.SyncService = service.NewSyncService(deps)
	a.DashboardService = service.NewDashboardService(datasetCache, settingsStore, a.StatsService, cfg.SyncHour)

	return a, nil
}

func (a *App) Close() error {
	return db.Close(a.DB)
}
