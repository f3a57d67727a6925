package database

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations brings the schema up to the newest migration under
// migrationsPath. A dirty schema is reported with the version to force.
func RunMigrations(dsn, migrationsPath string) error {
	m, err := migrate.New(sourceURL(migrationsPath), dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	from, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("database schema up to date", "version", from)
			return nil
		}
		var dirty migrate.ErrDirty
		if errors.As(err, &dirty) {
			return fmt.Errorf("schema is dirty at version %d, fix it and run `mailmind migrate force %d`: %w",
				dirty.Version, dirty.Version, err)
		}
		return fmt.Errorf("running migrations: %w", err)
	}

	to, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	slog.Info("database migrations applied", "from", from, "to", to)
	return nil
}

// ForceVersion records version as the current, clean schema version
// without running any migration.
func ForceVersion(dsn, migrationsPath string, version int) error {
	m, err := migrate.New(sourceURL(migrationsPath), dsn)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Force(version); err != nil {
		return fmt.Errorf("forcing version %d: %w", version, err)
	}
	slog.Warn("database schema version forced", "version", version)
	return nil
}

// sourceURL accepts a bare directory or a full source URL.
func sourceURL(path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return "file://" + path
}
