package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/verma04/thrico-backend-services-sub003/internal/gamification/domain"
	"github.com/verma04/thrico-backend-services-sub003/internal/idempotency"
	"github.com/verma04/thrico-backend-services-sub003/internal/outbox"
	"gorm.io/gorm"
)

const migrationsDir = "migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

var ErrNilDB = errors.New("migration database handle is required")

// Models lists every table the engine reads or writes.
func Models() []any {
	return append(domain.Models(), &idempotency.ProcessedEvent{}, &outbox.Record{})
}

// RunMigrations applies the embedded Postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return ErrNilDB
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "gamification_schema_migrations"})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// migrator.Close would close the shared *sql.DB.

	return nil
}

// Apply migrates conn. Postgres uses the versioned SQL files; other dialects
// fall back to AutoMigrate.
func Apply(conn *gorm.DB, dialect string) error {
	if conn == nil {
		return ErrNilDB
	}
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case "", "postgres", "postgresql":
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	default:
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
}
