package migrate

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/bryanwahyu/photo-tagger/migrations"
)

// Up applies every pending migration for driver ("mysql" or "postgres").
// Calling it on an up-to-date database is a no-op. A MySQL connection
// must be opened with multiStatements=true.
func Up(db *sql.DB, driver string, logger *zap.Logger) error {
	m, err := newMigrator(db, driver)
	if err != nil {
		return err
	}
	// tidak close m: Close juga menutup db milik caller

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply", zap.String("driver", driver))
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("migrations applied", zap.String("driver", driver), zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

// Down rolls back n migrations.
func Down(db *sql.DB, driver string, n int, logger *zap.Logger) error {
	m, err := newMigrator(db, driver)
	if err != nil {
		return err
	}
	if err := m.Steps(-n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("roll back %d migrations: %w", n, err)
	}
	logger.Info("migrations rolled back", zap.String("driver", driver), zap.Int("steps", n))
	return nil
}

func newMigrator(db *sql.DB, driver string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, driver)
	if err != nil {
		return nil, fmt.Errorf("open migration source for %s: %w", driver, err)
	}

	var target database.Driver
	switch driver {
	case "mysql":
		target, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case "postgres":
		target, err = postgres.WithInstance(db, &postgres.Config{})
	default:
		return nil, fmt.Errorf("unsupported migration driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return nil, fmt.Errorf("create migration instance: %w", err)
	}
	return m, nil
}
