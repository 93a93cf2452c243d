package migrations

import (
	"bytes"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// prefixPlaceholder is replaced by the environment table prefix (dev_, test_, prod_)
const prefixPlaceholder = "{{prefix}}"

// MigrateUp runs all pending migrations for the tables named with prefix.
// The caller owns db; the migrate instance is not closed because that would close db.
func MigrateUp(db *sql.DB, prefix string) error {
	m, err := newMigrate(db, prefix)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// MigrateDown rolls back every migration, dropping the prefixed tables
func MigrateDown(db *sql.DB, prefix string) error {
	m, err := newMigrate(db, prefix)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Down(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("rollback failed: %w", err)
	}

	return nil
}

// CheckStatus returns nil when the schema is at the latest embedded version
func CheckStatus(db *sql.DB, prefix string) error {
	m, err := newMigrate(db, prefix)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return fmt.Errorf("database has no schema version (needs migration)")
		}
		return fmt.Errorf("failed to get database version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in dirty state at version %d (migration failed previously)", version)
	}

	src, err := newSource(prefix)
	if err != nil {
		return err
	}
	defer src.Close()

	latest, err := latestVersion(src)
	if err != nil {
		return fmt.Errorf("failed to determine latest version: %w", err)
	}
	if version != latest {
		return fmt.Errorf("database is at version %d but binary expects %d", version, latest)
	}

	return nil
}

func newMigrate(db *sql.DB, prefix string) (*migrate.Migrate, error) {
	src, err := newSource(prefix)
	if err != nil {
		return nil, err
	}

	dbDriver, err := migratepgx.WithInstance(db, &migratepgx.Config{
		MigrationsTable: prefix + "schema_migrations",
	})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", dbDriver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	return m, nil
}

func newSource(prefix string) (source.Driver, error) {
	driver, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}
	return &prefixedSource{Driver: driver, prefix: prefix}, nil
}

// prefixedSource rewrites {{prefix}} in every migration body so one set of
// files serves all environments sharing a database.
type prefixedSource struct {
	source.Driver
	prefix string
}

func (s *prefixedSource) ReadUp(version uint) (io.ReadCloser, string, error) {
	r, identifier, err := s.Driver.ReadUp(version)
	if err != nil {
		return nil, "", err
	}
	return s.rewrite(r, identifier)
}

func (s *prefixedSource) ReadDown(version uint) (io.ReadCloser, string, error) {
	r, identifier, err := s.Driver.ReadDown(version)
	if err != nil {
		return nil, "", err
	}
	return s.rewrite(r, identifier)
}

func (s *prefixedSource) rewrite(r io.ReadCloser, identifier string) (io.ReadCloser, string, error) {
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("read migration %s: %w", identifier, err)
	}
	body = bytes.ReplaceAll(body, []byte(prefixPlaceholder), []byte(s.prefix))
	return io.NopCloser(bytes.NewReader(body)), identifier, nil
}

// latestVersion walks the source to its last migration
func latestVersion(src source.Driver) (uint, error) {
	version, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(version)
		if err != nil {
			break
		}
		version = next
	}
	return version, nil
}
