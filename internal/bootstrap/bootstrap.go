// Package bootstrap opens the configured backends for the server and the
// operator CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/seat-reservation/internal/config"
	"github.com/iliyamo/seat-reservation/internal/database"
	"github.com/iliyamo/seat-reservation/internal/handler"
	"github.com/iliyamo/seat-reservation/internal/repository"
	"github.com/iliyamo/seat-reservation/internal/repository/memstore"
	"github.com/iliyamo/seat-reservation/internal/repository/pgstore"
	"github.com/iliyamo/seat-reservation/internal/service"
)

// Store is what every storage driver provides.
type Store interface {
	service.AdminStore
	handler.MemberStore
	handler.TokenStore
}

// OpenStore connects the driver named by cfg.DBDriver and, when
// cfg.AutoMigrate is set, applies the embedded migrations.  The returned
// func releases the connection pool.
func OpenStore(ctx context.Context, cfg config.Config, log *slog.Logger) (Store, func(), error) {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return nil, nil, fmt.Errorf("open mysql: %w", err)
		}
		if cfg.AutoMigrate {
			if err := database.MigrateMySQL(ctx, db); err != nil {
				_ = db.Close()
				return nil, nil, fmt.Errorf("migrate mysql: %w", err)
			}
		}
		log.Info("storage ready", "driver", cfg.DBDriver, "host", cfg.DBHost, "db", cfg.DBName)
		return repository.NewStore(db), func() { _ = db.Close() }, nil

	case config.DriverPostgres:
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.AutoMigrate {
			if err := database.MigratePostgres(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("migrate postgres: %w", err)
			}
		}
		log.Info("storage ready", "driver", cfg.DBDriver)
		return pgstore.New(pool), pool.Close, nil

	case config.DriverMemory:
		log.Warn("storage is in-memory; data is lost on exit")
		return memstore.New(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
}

// Migrate applies the embedded migrations for a SQL driver without
// building a Store.
func Migrate(ctx context.Context, cfg config.Config) error {
	switch cfg.DBDriver {
	case config.DriverMySQL:
		db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
		if err != nil {
			return fmt.Errorf("open mysql: %w", err)
		}
		defer db.Close()
		return database.MigrateMySQL(ctx, db)
	case config.DriverPostgres:
		pool, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer pool.Close()
		return database.MigratePostgres(ctx, pool)
	}
	return fmt.Errorf("driver %q has no migrations", cfg.DBDriver)
}

// ConnectRedis returns a client, or nil when Redis is unreachable.  The
// features that depend on it are optional.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, log *slog.Logger) *redis.Client {
	rdb, err := config.NewRedisClient(ctx, cfg)
	if err != nil {
		log.Warn("redis unavailable; rate limiting, response cache and sweep lock disabled", "addr", cfg.Addr, "err", err)
		return nil
	}
	log.Info("redis connected", "addr", cfg.Addr)
	return rdb
}
