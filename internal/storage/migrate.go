package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/lueurxax/tweet-store/migrations"
)

const migrationLockID = 1000

// MigrationState describes one embedded migration relative to the database.
type MigrationState struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

type gooseLogger struct {
	logger *zerolog.Logger
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatal().Msgf(format, v...)
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info().Msgf(format, v...)
}

// Migrate runs all pending database migrations using goose.
// It acquires an advisory lock to ensure only one migration runs at a time
// across multiple instances.
func (db *DB) Migrate(ctx context.Context) error {
	return db.withMigrationLock(ctx, func(sqlDB *sql.DB) error {
		if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}

		return nil
	})
}

// MigrateTo applies pending migrations up to and including version.
func (db *DB) MigrateTo(ctx context.Context, version int64) error {
	return db.withMigrationLock(ctx, func(sqlDB *sql.DB) error {
		if err := goose.UpToContext(ctx, sqlDB, ".", version); err != nil {
			return fmt.Errorf("run migrations to %d: %w", version, err)
		}

		return nil
	})
}

// Rollback reverts the most recently applied migration.
func (db *DB) Rollback(ctx context.Context) error {
	return db.withMigrationLock(ctx, func(sqlDB *sql.DB) error {
		if err := goose.DownContext(ctx, sqlDB, "."); err != nil {
			return fmt.Errorf("roll back migration: %w", err)
		}

		return nil
	})
}

// MigrationVersion returns the current schema version recorded by goose.
func (db *DB) MigrationVersion(ctx context.Context) (int64, error) {
	var version int64

	err := db.withGoose(func(sqlDB *sql.DB) error {
		v, err := goose.GetDBVersionContext(ctx, sqlDB)
		if err != nil {
			return fmt.Errorf("get migration version: %w", err)
		}

		version = v

		return nil
	})

	return version, err
}

// MigrationStatus reports every embedded migration and whether it is applied.
func (db *DB) MigrationStatus(ctx context.Context) ([]MigrationState, error) {
	var states []MigrationState

	err := db.withGoose(func(sqlDB *sql.DB) error {
		provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
		if err != nil {
			return fmt.Errorf("create goose provider: %w", err)
		}

		statuses, err := provider.Status(ctx)
		if err != nil {
			return fmt.Errorf("migration status: %w", err)
		}

		states = make([]MigrationState, 0, len(statuses))
		for _, s := range statuses {
			states = append(states, MigrationState{
				Version:   s.Source.Version,
				Path:      s.Source.Path,
				Applied:   s.State == goose.StateApplied,
				AppliedAt: s.AppliedAt,
			})
		}

		return nil
	})

	return states, err
}

func (db *DB) withMigrationLock(ctx context.Context, fn func(sqlDB *sql.DB) error) error {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// Acquire blocking advisory lock to ensure only one migration runs at a time
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return fmt.Errorf("acquire advisory lock: %w", err)
	}

	defer func() {
		// ctx may be canceled by now, and a pooled connection must not keep the lock
		unlockCtx := context.WithoutCancel(ctx)
		if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			db.Logger.Warn().Err(err).Msg("failed to release migration lock, closing connection")
			_ = conn.Conn().Close(unlockCtx)
		}
	}()

	return db.withGoose(fn)
}

// withGoose opens a database/sql handle over the pool's connection config
// and configures goose's package-level state for the embedded migrations.
func (db *DB) withGoose(fn func(sqlDB *sql.DB) error) error {
	sqlDB := stdlib.OpenDB(*db.Pool.Config().ConnConfig)

	defer func() {
		_ = sqlDB.Close()
	}()

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(&gooseLogger{logger: db.Logger})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return fn(sqlDB)
}

// ApplyScript executes the Up section of an embedded migration directly,
// bypassing goose version tracking. The statements are guarded with
// IF NOT EXISTS, so repeated application leaves the schema unchanged.
func (db *DB) ApplyScript(ctx context.Context, name string) error {
	stmts, err := migrations.UpStatements(name)
	if err != nil {
		return fmt.Errorf("load script: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin script transaction: %w", err)
	}

	defer func() {
		//nolint:errcheck // rollback after commit is a no-op
		_ = tx.Rollback(ctx)
	}()

	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit script %s: %w", name, err)
	}

	db.Logger.Info().Str("script", name).Int("statements", len(stmts)).Msg("migration script applied")

	return nil
}
