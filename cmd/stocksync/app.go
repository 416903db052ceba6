package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/stocksync/internal/batch"
	"github.com/kjannette/stocksync/internal/config"
	"github.com/kjannette/stocksync/internal/db"
	"github.com/kjannette/stocksync/internal/external"
	"github.com/kjannette/stocksync/internal/ingest"
	"github.com/kjannette/stocksync/internal/logging"
	"github.com/kjannette/stocksync/internal/metrics"
	"github.com/kjannette/stocksync/internal/models"
	"github.com/kjannette/stocksync/internal/notifications"
	"github.com/kjannette/stocksync/internal/repository"
	"go.uber.org/zap"
)

// app holds the wiring shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	pool    *pgxpool.Pool
	store   *repository.Store
	metrics *metrics.Collector
	closed  bool
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("config load error: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	warnings, err := cfg.Validate()
	for _, w := range warnings {
		logger.Warn(w)
	}
	if err != nil {
		return nil, err
	}
	cfg.Print(logger)

	logger.Info("connecting to database", zap.String("host", cfg.DBHost), zap.Int("port", cfg.DBPort), zap.String("name", cfg.DBName))
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.TestConnection(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database test query failed: %w", err)
	}
	if cfg.DBAutoMigrate {
		if err := db.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		pool:    pool,
		store:   repository.NewStore(pool),
		metrics: metrics.New(),
	}, nil
}

func (a *app) Close() {
	if a.closed {
		return
	}
	a.closed = true
	a.pool.Close()
	a.logger.Info("connection pool closed")
	_ = a.logger.Sync()
}

// runner wires providers, the syncer and the batch runner.
func (a *app) runner() *batch.Runner {
	opts := func(baseURL string, rpm int) external.ClientOptions {
		return external.ClientOptions{
			BaseURL:           baseURL,
			Timeout:           a.cfg.ProviderTimeout(),
			MaxAttempts:       a.cfg.ProviderMaxAttempts,
			RequestsPerMinute: rpm,
			Logger:            a.logger,
		}
	}
	adapter := external.NewAdapter(a.logger,
		external.NewAlphaVantageClient(a.cfg.AlphaVantageAPIKey, opts(a.cfg.AlphaVantageBaseURL, a.cfg.AlphaVantageRequestsPerMinute)),
		external.NewYahooClient(opts(a.cfg.YahooBaseURL, 0)),
	)

	syncer := ingest.NewSyncer(adapter, ingest.Options{
		StartDate: a.cfg.StartDate(),
		Providers: []models.Provider{models.AlphaVantage, models.Yahoo},
		Observer:  a.metrics,
		Logger:    a.logger,
	})

	runOpts := []batch.Option{batch.WithObserver(a.metrics)}
	if a.cfg.WebhookURL != "" {
		runOpts = append(runOpts, batch.WithNotifier(notifications.NewSender(a.cfg.WebhookURL, a.cfg.AppName, a.logger)))
	}
	return batch.NewRunner(a.store, syncer, a.logger, runOpts...)
}
