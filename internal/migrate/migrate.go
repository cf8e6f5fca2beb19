package migrate

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

const migrationsDir = "db/migrations"

// Run applies all pending migrations in db/migrations using goose.
// It opens and closes its own DB handle so it is independent of the app
// store. Migrations are forward-only; a failure halts startup.
func Run(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.Up(db, migrationsDir); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}

	return nil
}

// RunForce applies pending migrations one at a time. When a migration
// fails it is recorded as applied so later migrations can proceed, and
// the skip is logged. Use only to get past a known-bad migration.
func RunForce(dsn string, logger *slog.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	for {
		err := goose.UpByOne(db, migrationsDir)
		if err == nil {
			continue
		}
		if err == goose.ErrNoNextVersion {
			return nil
		}

		current, verr := goose.GetDBVersion(db)
		if verr != nil {
			return fmt.Errorf("goose version after failure: %w", verr)
		}

		// Record the failing migration so the runner can move past it.
		next := current + 1
		if _, ierr := db.Exec(
			`INSERT INTO goose_db_version (version_id, is_applied) VALUES ($1, true)`, next,
		); ierr != nil {
			return fmt.Errorf("record skipped migration %d: %w", next, ierr)
		}
		if logger != nil {
			logger.Warn("migration skipped by --force", "version", next, "error", err)
		}
	}
}

// Drop removes every application table plus goose's bookkeeping table so
// that Run recreates the schema from scratch.
func Drop(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	stmts := []string{
		`DROP TABLE IF EXISTS failed_pages CASCADE`,
		`DROP TABLE IF EXISTS code_snippets CASCADE`,
		`DROP TABLE IF EXISTS documents CASCADE`,
		`DROP TABLE IF EXISTS crawl_jobs CASCADE`,
		`DROP TABLE IF EXISTS sources CASCADE`,
		`DROP TABLE IF EXISTS goose_db_version CASCADE`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("drop schema: %w", err)
		}
	}
	return nil
}
