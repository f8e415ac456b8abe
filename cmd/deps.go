package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/enrich-cli/internal/owner"
	"github.com/sells-group/enrich-cli/internal/source"
	"github.com/sells-group/enrich-cli/internal/state"
	"github.com/sells-group/enrich-cli/internal/worker"
	"github.com/sells-group/enrich-cli/pkg/batchdata"
)

// initPool creates the shared pgx connection pool.
func initPool(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("no database_url configured (set store.database_url or ENRICH_STORE_DATABASE_URL)")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "parse database url")
	}
	if cfg.Store.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Store.MaxConns
	}
	if cfg.Store.MinConns > 0 {
		poolCfg.MinConns = cfg.Store.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping database")
	}
	return pool, nil
}

// initRegistry loads the table specs (with any YAML overrides) and builds the
// adapter registry over the pool.
func initRegistry(pool *pgxpool.Pool) (*source.Registry, error) {
	specs, err := source.LoadSpecs(cfg.Sources.MapFile)
	if err != nil {
		return nil, err
	}
	return source.NewRegistry(specs, pool), nil
}

// initWorker wires the worker with its stores, adapters, and the skip-trace
// client.
func initWorker(pool *pgxpool.Pool, registry *source.Registry) *worker.Worker {
	client := batchdata.NewClient(cfg.BatchData.APIKey,
		batchdata.WithBaseURL(cfg.BatchData.BaseURL),
		batchdata.WithTimeout(time.Duration(cfg.BatchData.TimeoutSecs)*time.Second),
		batchdata.WithRateLimit(cfg.BatchData.RatePerSec),
	)

	return worker.New(worker.Config{
		Enabled:          cfg.BatchData.Enabled,
		DailyLimit:       cfg.BatchData.DailyLimit,
		DryRun:           cfg.BatchData.DryRun,
		CostPerCall:      cfg.BatchData.CostPerCall,
		StaleLockTimeout: time.Duration(cfg.Worker.StaleLockMinutes) * time.Minute,
	}, state.NewStore(pool), owner.NewStore(pool), registry, client)
}
