package main

import (
	"context"
	"fmt"
	"log/slog"

	"collabedit/internal/config"
	"collabedit/internal/database/migrations"
	"collabedit/internal/domain/repositories"
	collabRepo "collabedit/internal/domain/repositories/collab"
	"collabedit/internal/repository/memory"
	"collabedit/internal/repository/postgres"
	postgresCollab "collabedit/internal/repository/postgres/collab"

	"github.com/jackc/pgx/v5/stdlib"
)

// stores bundles the repositories every service is built from
type stores struct {
	users     collabRepo.UserRepository
	projects  collabRepo.ProjectRepository
	states    collabRepo.StateRepository
	files     collabRepo.FileRepository
	txManager repositories.TransactionManager
	close     func()
}

// openStores connects the store selected by cfg.Store
func openStores(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	switch cfg.Store {
	case "memory":
		logger.Warn("using in-memory store; data is lost on restart")
		store := memory.NewStore()
		return &stores{
			users:     store.Users(),
			projects:  store.Projects(),
			states:    store.States(),
			files:     store.Files(),
			txManager: store.TxManager(),
			close:     func() {},
		}, nil
	case "postgres":
		return openPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown STORE %q (want postgres or memory)", cfg.Store)
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*stores, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres store")
	}

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{
		MaxConns: 25,
		MinConns: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	if cfg.AutoMigrate {
		db := stdlib.OpenDBFromPool(pool)
		err := migrations.MigrateUp(db, cfg.TablePrefix)
		db.Close()
		if err != nil {
			pool.Close()
			return nil, err
		}
		logger.Info("migrations applied", "table_prefix", cfg.TablePrefix)
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}

	return &stores{
		users:     postgresCollab.NewUserRepository(repoConfig),
		projects:  postgresCollab.NewProjectRepository(repoConfig),
		states:    postgresCollab.NewStateRepository(repoConfig),
		files:     postgresCollab.NewFileRepository(repoConfig),
		txManager: postgres.NewTransactionManager(pool, logger),
		close:     pool.Close,
	}, nil
}
