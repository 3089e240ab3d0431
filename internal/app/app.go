// Package app initializes and holds the long-lived services shared by all
// subcommands: configuration, logging, metrics and the Postgres-backed
// queue stores.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/jobkontakt/crawler/internal/clock/system"
	"github.com/jobkontakt/crawler/internal/config"
	"github.com/jobkontakt/crawler/internal/core"
	"github.com/jobkontakt/crawler/internal/logging"
	"github.com/jobkontakt/crawler/internal/metrics"
	"github.com/jobkontakt/crawler/internal/store/postgres"
)

// App holds the shared services. It is built once at startup and handed to
// the subcommand that needs it.
type App struct {
	Cfg      config.Config
	Logger   *zap.Logger
	Pool     *pgxpool.Pool
	Claims   core.ClaimStore
	Results  core.ResultSink
	Retries  core.RetryQueue
	Searches core.SearchQueue
}

// New builds an App from the config file at cfgPath. It fails fast when any
// service cannot be initialized.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	metrics.Init()

	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init database pool: %w", err)
	}

	claims, err := postgres.NewClaimStore(pool)
	if err != nil {
		return nil, err
	}
	results, err := postgres.NewResultStore(pool)
	if err != nil {
		return nil, err
	}
	retries, err := postgres.NewRetryStore(pool, postgres.RetryStoreConfig{
		BackoffBase: time.Duration(cfg.Retry.BackoffBaseHrs) * time.Hour,
		BackoffCap:  time.Duration(cfg.Retry.BackoffCapHrs) * time.Hour,
		MaxAttempts: cfg.Retry.MaxAttempts,
	}, system.New())
	if err != nil {
		return nil, err
	}
	searches, err := postgres.NewSearchStore(pool, core.BudgetPolicy{
		CostPerThousand:  cfg.Search.CostPerThousand,
		DailyCap:         cfg.Search.DailyCap,
		WarningThreshold: cfg.Search.WarningThreshold,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("application services initialized")
	return &App{
		Cfg:      cfg,
		Logger:   logger,
		Pool:     pool,
		Claims:   claims,
		Results:  results,
		Retries:  retries,
		Searches: searches,
	}, nil
}

// Close releases the pool and flushes buffered log entries.
func (a *App) Close() {
	a.Logger.Info("shutting down application services")
	a.Pool.Close()
	_ = a.Logger.Sync()
}
