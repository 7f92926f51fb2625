package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/edvin/backupd/migrations"
)

// MigrationSource returns the filesystem and directory goose reads from.
// An empty dir selects the migrations embedded in the binary.
func MigrationSource(dir string) (fs.FS, string) {
	if dir == "" {
		return migrations.Core, "core"
	}
	return nil, dir
}

// RunMigrations applies all pending migrations to the core database.
func RunMigrations(ctx context.Context, logger zerolog.Logger, databaseURL, dir string) error {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	fsys, path := MigrationSource(dir)
	goose.SetBaseFS(fsys)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, conn, path); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, conn)
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info().Int64("version", version).Str("source", path).Msg("core database migrated")
	return nil
}
