// Package store is the relational collaborator behind every service:
// a pgxpool-backed connection, golang-migrate migrations, and one
// repository type per entity family from the data model. It follows the
// gift-card teacher's database package shape (Config/DB/NewDB/RunMigrations)
// almost verbatim, generalized from one entity (Card) to the full set this
// service persists.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatpay-core/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Config mirrors internal/config.Config.Database via copier at the
// composition root.
type Config struct {
	URL                string
	MaxConns           int
	MinConns           int
	MaxConnLifetimeMin int
	MaxConnIdleTimeMin int
}

// DB wraps a pgxpool.Pool plus the migration source location.
type DB struct {
	pool          *pgxpool.Pool
	migrationPath string
}

// NewDB opens the pool and verifies connectivity.
func NewDB(cfg Config) (*DB, error) {
	pgxCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		logger.Error("failed to parse database URL", zap.Error(err))
		return nil, err
	}

	pgxCfg.MaxConns = int32(cfg.MaxConns)
	pgxCfg.MinConns = int32(cfg.MinConns)
	pgxCfg.MaxConnLifetime = time.Duration(cfg.MaxConnLifetimeMin) * time.Minute
	pgxCfg.MaxConnIdleTime = time.Duration(cfg.MaxConnIdleTimeMin) * time.Minute

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		logger.Error("failed to create db connection pool", zap.Error(err))
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Error("database ping failed", zap.Error(err))
		return nil, err
	}

	logger.Info("database connection pool created successfully")

	return &DB{pool: pool, migrationPath: "file://migrations"}, nil
}

// Pool exposes the underlying pool for repository constructors.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// RunMigrations applies all pending additive migrations. Migrations in
// this service only ever add tables or columns — never drop or rename —
// so a partially-migrated fleet member never loses data another member
// still depends on.
func (db *DB) RunMigrations() error {
	connStr := db.pool.Config().ConnString()
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		logger.Error("failed to open sql.DB for migrations", zap.Error(err))
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer sqlDB.Close()

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		logger.Error("failed to create postgres driver", zap.Error(err))
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(db.migrationPath, "postgres", driver)
	if err != nil {
		logger.Error("failed to create migrate instance", zap.Error(err))
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger.Info("running database migrations")
	if err := m.Up(); err != nil {
		if err == migrate.ErrNoChange {
			logger.Info("no new migrations to apply")
			return nil
		}
		logger.Error("migration failed", zap.Error(err))
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d", version)
	}

	logger.Info("migrations completed successfully", zap.Uint("version", version))
	return nil
}

func (db *DB) Close() {
	if db.pool != nil {
		logger.Info("closing database connection pool")
		db.pool.Close()
	}
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Used by operations that must be atomic per §4.5:
// commitment status transitions + participant updates + Transaction
// inserts, and split completion + last SplitPayment.is_paid.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			logger.Error("failed to roll back transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
