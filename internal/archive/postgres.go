package archive

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"alarm/live/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open runs pending migrations when enabled and connects the pool.
func Open(ctx context.Context, cfg config.DatabaseConfig, appName string, log zerolog.Logger) (*pgxpool.Pool, error) {
	if !cfg.Enabled() {
		return nil, errors.New("database URL is empty")
	}

	if cfg.RunMigrations {
		if err := runMigrations(ctx, cfg.URL, log); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	if poolCfg.ConnConfig.RuntimeParams == nil {
		poolCfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = appName
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return pool, nil
}

// Migrations is the embedded migration set applied by Open.
func Migrations() migrate.MigrationSource {
	return migrate.EmbedFileSystemMigrationSource{FileSystem: migrationFS, Root: "migrations"}
}

func runMigrations(ctx context.Context, url string, log zerolog.Logger) error {
	dbConn, err := sql.Open("pgx", url)
	if err != nil {
		return fmt.Errorf("opening sql connection: %w", err)
	}
	defer dbConn.Close()

	if err := dbConn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	n, err := migrate.ExecContext(ctx, dbConn, "postgres", Migrations(), migrate.Up)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Info().Int("applied", n).Msg("migrations executed")
	}
	return nil
}
