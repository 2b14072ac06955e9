package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
)

// LatestMigrationVersion is the newest schema version this binary knows
// about. Databases ahead of it are refused rather than migrated down.
//
// NOTE: This MUST be bumped together with each new migration file.
const LatestMigrationVersion uint = 2

//go:embed migrations/*.sql
var sqlSchemas embed.FS

// ErrMigrationDowngrade is returned when the database schema is newer than
// LatestMigrationVersion.
var ErrMigrationDowngrade = errors.New("database downgrade detected")

// MigrationTarget moves a migrate instance to some version.
type MigrationTarget func(mig *migrate.Migrate) error

var (
	// TargetLatest migrates all the way up.
	TargetLatest MigrationTarget = func(mig *migrate.Migrate) error {
		return mig.Up()
	}

	// TargetVersion migrates to exactly the given version.
	TargetVersion = func(version uint) MigrationTarget {
		return func(mig *migrate.Migrate) error {
			return mig.Migrate(version)
		}
	}
)

type migrateOptions struct {
	latestVersion uint
	target        MigrationTarget
	backupPath    string
}

// MigrateOpt modifies how ApplyMigrations runs.
type MigrateOpt func(*migrateOptions)

// WithLatestVersion overrides the downgrade protection ceiling.
func WithLatestVersion(version uint) MigrateOpt {
	return func(o *migrateOptions) {
		o.latestVersion = version
	}
}

// WithTarget sets the version to migrate to. The default is TargetLatest.
func WithTarget(target MigrationTarget) MigrateOpt {
	return func(o *migrateOptions) {
		o.target = target
	}
}

// WithBackupPath requests a VACUUM INTO backup next to path before any
// pending migration is applied.
func WithBackupPath(path string) MigrateOpt {
	return func(o *migrateOptions) {
		o.backupPath = path
	}
}

// migrationLogger adapts slog to migrate.Logger.
type migrationLogger struct {
	log *slog.Logger
}

// Printf implements migrate.Logger.
func (m *migrationLogger) Printf(format string, v ...any) {
	format = strings.TrimRight(format, "\n")
	m.log.Info(fmt.Sprintf(format, v...))
}

// Verbose implements migrate.Logger.
func (m *migrationLogger) Verbose() bool {
	return false
}

// ApplyMigrations runs the embedded migrations against db.
func ApplyMigrations(db *sql.DB, log *slog.Logger, opts ...MigrateOpt) error {
	cfg := &migrateOptions{
		latestVersion: LatestMigrationVersion,
		target:        TargetLatest,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("unable to create migration driver: %w", err)
	}

	src, err := httpfs.New(http.FS(sqlSchemas), "migrations")
	if err != nil {
		return err
	}

	mig, err := migrate.NewWithInstance("migrations", src, "sqlite3", driver)
	if err != nil {
		return err
	}

	version, dirty, err := mig.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		version = 0

	case err != nil:
		return fmt.Errorf("unable to determine current migration "+
			"version: %w", err)
	}

	if dirty {
		return fmt.Errorf("database is in a dirty state at version "+
			"%v, manual intervention required", version)
	}

	if version > cfg.latestVersion {
		return fmt.Errorf("%w: db_version=%v, "+
			"latest_migration_version=%v", ErrMigrationDowngrade,
			version, cfg.latestVersion)
	}

	if cfg.backupPath != "" && version > 0 &&
		version < cfg.latestVersion {

		if err := backupSqliteDatabase(db, cfg.backupPath, log); err != nil {
			return fmt.Errorf("backup before migration: %w", err)
		}
	}

	log.InfoContext(context.Background(), "Applying migrations",
		"current_db_version", version,
		"latest_migration_version", cfg.latestVersion,
	)

	mig.Log = &migrationLogger{log: log}

	err = cfg.target(mig)
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, _, err = mig.Version()
	if err != nil {
		return fmt.Errorf("unable to get db version: %w", err)
	}
	log.InfoContext(context.Background(), "Database version after migration",
		"current_db_version", version,
	)

	return nil
}

// backupSqliteDatabase writes a timestamped copy of the database beside
// dbPath using VACUUM INTO.
func backupSqliteDatabase(srcDB *sql.DB, dbPath string,
	log *slog.Logger) error {

	backupPath := fmt.Sprintf("%s.%d.backup", dbPath, time.Now().UnixNano())

	log.InfoContext(context.Background(), "Creating backup of database file",
		"source", dbPath,
		"backup", backupPath,
	)

	_, err := srcDB.Exec("VACUUM INTO ?", backupPath)

	return err
}
