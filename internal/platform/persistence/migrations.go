package persistence

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL driver
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file" // File source driver
)

// MigrationSourceURL turns a migrations directory into a golang-migrate source URL.
// A path that already carries the file:// scheme is returned unchanged.
func MigrationSourceURL(migrationsPath string) (string, error) {
	if migrationsPath == "" {
		return "", errors.New("migrations path cannot be empty")
	}
	if strings.HasPrefix(migrationsPath, "file://") {
		return migrationsPath, nil
	}
	return "file://" + migrationsPath, nil
}

// CheckMigrations walks the migration source and returns its versions in order.
// Versions must run 1..n without gaps and every version needs a non-empty up and down file.
func CheckMigrations(sourceURL string) ([]uint, error) {
	driver, err := source.Open(sourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open migration source: %w", err)
	}
	defer driver.Close()

	version, err := driver.First()
	if err != nil {
		return nil, fmt.Errorf("migration source has no migrations: %w", err)
	}

	var versions []uint
	for {
		if want := uint(len(versions) + 1); version != want {
			return nil, fmt.Errorf("migration version %d found where %d was expected", version, want)
		}
		if err := readMigration(driver.ReadUp, version, "up"); err != nil {
			return nil, err
		}
		if err := readMigration(driver.ReadDown, version, "down"); err != nil {
			return nil, err
		}
		versions = append(versions, version)

		version, err = driver.Next(version)
		if errors.Is(err, os.ErrNotExist) {
			return versions, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read migration after %d: %w", versions[len(versions)-1], err)
		}
	}
}

func readMigration(read func(uint) (io.ReadCloser, string, error), version uint, direction string) error {
	r, _, err := read(version)
	if err != nil {
		return fmt.Errorf("migration %d has no %s file: %w", version, direction, err)
	}
	defer r.Close()

	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read %s migration %d: %w", direction, version, err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return fmt.Errorf("%s migration %d is empty", direction, version)
	}
	return nil
}

// RunMigrations checks the migration set under migrationsPath and applies it to databaseURL
func RunMigrations(databaseURL string, migrationsPath string) error {
	sourceURL, err := MigrationSourceURL(migrationsPath)
	if err != nil {
		return err
	}
	if databaseURL == "" {
		return errors.New("database URL cannot be empty")
	}

	if _, err := CheckMigrations(sourceURL); err != nil {
		return err
	}

	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		return fmt.Errorf("migration source error: %w", sourceErr)
	}
	if dbErr != nil {
		return fmt.Errorf("migration database error: %w", dbErr)
	}

	return nil
}
