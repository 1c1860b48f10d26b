// Package store opens the document store selected by configuration.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/docingest/internal/config"
	"github.com/JonMunkholm/docingest/internal/loader"
	"github.com/JonMunkholm/docingest/internal/store/dynamo"
	"github.com/JonMunkholm/docingest/internal/store/postgres"
	"github.com/JonMunkholm/docingest/internal/store/solr"
)

// Backend is an opened document store.
type Backend struct {
	// Name is the configured backend name.
	Name string

	// Store receives documents from the loader.
	Store loader.Store

	// Solr is set for the solr backend, which also serves search.
	Solr *solr.Client

	closers []func(context.Context) error
}

// Close releases the backend's connections.
func (b *Backend) Close(ctx context.Context) error {
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open connects to the backend named by cfg.Store.Backend and verifies it
// is reachable.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store.Backend {
	case config.BackendSolr:
		return openSolr(ctx, cfg, logger)
	case config.BackendPostgres:
		return openPostgres(ctx, cfg)
	case config.BackendDynamo:
		return openDynamo(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func openSolr(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	client, err := solr.New(solr.Config{
		URL:            cfg.Solr.URL,
		ConnectTimeout: cfg.Solr.ConnectTimeout,
		RequestTimeout: cfg.Solr.RequestTimeout,
		RetryMax:       cfg.Solr.RetryMax,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping solr at %s: %w", client.BaseURL(), err)
	}

	return &Backend{Name: config.BackendSolr, Store: client, Solr: client}, nil
}

func openPostgres(ctx context.Context, cfg *config.Config) (*Backend, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	st := postgres.New(pool, cfg.Database.Table)
	if err := st.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &Backend{
		Name:  config.BackendPostgres,
		Store: st,
		closers: []func(context.Context) error{
			func(context.Context) error { pool.Close(); return nil },
			st.Close,
		},
	}, nil
}

func openDynamo(ctx context.Context, cfg *config.Config) (*Backend, error) {
	client, err := dynamo.NewClient(ctx, cfg.Dynamo.Region, cfg.Dynamo.Endpoint)
	if err != nil {
		return nil, err
	}

	var opts []dynamo.Option
	if cfg.Dynamo.CreateTables {
		opts = append(opts, dynamo.WithCreateTables())
	}

	return &Backend{
		Name:  config.BackendDynamo,
		Store: dynamo.New(client, cfg.Dynamo.TablePrefix, opts...),
	}, nil
}
