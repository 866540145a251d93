package app

import (
	"context"
	"fmt"
	"log/slog"

	"guardian-recovery/internal/config"
	"guardian-recovery/internal/database"
	"guardian-recovery/internal/recovery"
	"guardian-recovery/internal/repository"
)

// Store is a state store together with its health check and release func.
type Store struct {
	Driver string
	State  interface {
		Load(ctx context.Context) (recovery.State, bool, error)
		Save(ctx context.Context, s recovery.State) error
	}
	Health func(ctx context.Context) error
	Close  func()
}

// OpenStore opens the configured state store and makes sure its schema exists.
func OpenStore(ctx context.Context, cfg *config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		slog.Info("connecting to PostgreSQL")
		db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to ensure database schema: %w", err)
		}
		return &Store{
			Driver: cfg.StoreDriver,
			State:  repository.NewPostgresStateRepository(db),
			Health: db.Health,
			Close:  db.Close,
		}, nil

	case config.StoreDriverSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		repo := repository.NewSQLiteStateRepository(db)
		return &Store{
			Driver: cfg.StoreDriver,
			State:  repo,
			Health: db.PingContext,
			Close: func() {
				if err := repo.Close(); err != nil {
					slog.Warn("closing sqlite store failed", "error", err)
				}
			},
		}, nil

	case config.StoreDriverMemory:
		slog.Warn("using in-memory state store; recovery state is lost on restart")
		return &Store{
			Driver: cfg.StoreDriver,
			State:  repository.NewMemoryStateRepository(),
			Health: func(context.Context) error { return nil },
			Close:  func() {},
		}, nil
	}

	return nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
}
