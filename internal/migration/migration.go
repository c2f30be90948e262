// Package migration applies the embedded schema with golang-migrate.
// Migrations run once at startup for the postgres deployment; tests use
// gorm AutoMigrate against sqlite instead.
package migration

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/smallbiznis/learnway/internal/config"
	"go.uber.org/zap"
)

//go:embed sql/*.sql
var migrations embed.FS

// Run applies all pending migrations.
func Run(cfg config.Config, log *zap.Logger) error {
	if cfg.DBType != "postgres" {
		log.Named("migration").Info("skipping migrations", zap.String("db_type", cfg.DBType))
		return nil
	}

	source, err := iofs.New(migrations, "sql")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBSSLMode)

	m, err := migrate.NewWithSourceInstance("iofs", source, dsn)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	log.Named("migration").Info("schema up to date")
	return nil
}
