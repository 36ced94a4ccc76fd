package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/config"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/report"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store/memory"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store/mongo"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/store/postgres"
	"github.com/jackoyatlas/DCCPlayHouseTimer/go/internal/timer"
)

// Backend is a store serving both the manager and the reports.
type Backend interface {
	timer.Repository
	report.Source
	Close(ctx context.Context) error
}

type storeBackend struct {
	timer.Repository
	report.Source
	close func(ctx context.Context) error
}

func (b storeBackend) Close(ctx context.Context) error {
	if b.close == nil {
		return nil
	}
	return b.close(ctx)
}

func setupStore(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Store.Driver {
	case config.StoreMongo:
		s := mongo.NewStore(mongo.Config{URL: cfg.Store.MongoURL, Database: cfg.Store.MongoDB})
		if err := s.Start(ctx); err != nil {
			return nil, err
		}
		return storeBackend{Repository: s, Source: s, close: s.Stop}, nil

	case config.StorePostgres:
		pool, err := cfg.Database.Open(ctx)
		if err != nil {
			return nil, err
		}
		s := postgres.NewStore(pool)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info().
			Str("host", cfg.Database.Host).
			Str("database", cfg.Database.Database).
			Msg("connected to Postgres")
		return storeBackend{Repository: s, Source: s, close: func(context.Context) error {
			pool.Close()
			return nil
		}}, nil

	case config.StoreMemory:
		log.Warn().Msg("using in-memory store, timers are lost on restart")
		s := memory.NewStore()
		return storeBackend{Repository: s, Source: s}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
