package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/eliksir-bar/eliksir-analytics/internal/app"
	"github.com/eliksir-bar/eliksir-analytics/internal/config"
	"github.com/eliksir-bar/eliksir-analytics/internal/ingest"
	"github.com/eliksir-bar/eliksir-analytics/internal/store"
	"github.com/eliksir-bar/eliksir-analytics/internal/store/postgres"
)

// backend is the storage contract shared by the SQLite and PostgreSQL stores.
type backend interface {
	ingest.PageViewStore
	app.PageViewStore
	app.StatsStore
	app.UserStore
	app.Pinger
	Close() error
}

var (
	_ backend = (*store.Store)(nil)
	_ backend = (*postgres.Store)(nil)
)

// openBackend opens the configured store. The schema is created or migrated
// before it returns.
func openBackend(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		st, err := postgres.Open(ctx, cfg.Storage.DSN.Value())
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		logger.Info().Str("driver", config.DriverPostgres).Msg("storage opened")
		return st, nil

	default:
		path, err := cfg.Storage.DatabasePath()
		if err != nil {
			return nil, err
		}
		st, err := store.Open(path, store.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info().Str("driver", config.DriverSQLite).Str("path", path).Msg("storage opened")
		return st, nil
	}
}

// maintain runs periodic maintenance on backends that need it.
func maintain(ctx context.Context, b backend, logger zerolog.Logger) {
	st, ok := b.(*store.Store)
	if !ok {
		return
	}
	vacuumed, err := st.VacuumIfNeeded(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("vacuum failed")
		return
	}
	if vacuumed {
		logger.Info().Msg("database vacuumed")
	}
}
