// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and Postgres (pgx), schema migrations, and tracing.
package repo

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq" // database/sql driver used by the migration runner
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/omnichannel-gateway/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open dispatches to the configured driver and installs the tracing plugin.
func Open(driver, sqlitePath, postgresDSN string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverSQLite, "":
		db, err = OpenSQLite(sqlitePath)
	case DriverPostgres:
		db, err = OpenPostgres(postgresDSN)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, fmt.Errorf("gorm tracing: %w", err)
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// SQLite has a single writer; a small pool keeps claim transactions from
	// piling up on SQLITE_BUSY.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(4)
		sqlDB.SetMaxIdleConns(4)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// sqlitePragmas run on every pooled connection. busy_timeout and
// foreign_keys are per-connection settings, so executing them once after
// Open would leave the rest of the pool without them. Transactions start
// IMMEDIATE so two claimers never both hold a read lock and then deadlock
// upgrading it.
var sqlitePragmas = []string{
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, p := range sqlitePragmas {
		q.Add("_pragma", p)
	}
	q.Set("_txlock", "immediate")
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// OpenPostgres connects through the pgx-backed GORM dialector.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}
	return db, nil
}

// Models lists every persisted type, in dependency order.
func Models() []any {
	return []any{
		&domain.ChannelIdentity{},
		&domain.ChannelLinkToken{},
		&domain.ChannelMessage{},
		&domain.ChannelDeliveryAttempt{},
		&domain.DeadLetterEvent{},
		&domain.AuditEvent{},
		&domain.Idempotency{},
	}
}

// AutoMigrate creates the schema from the GORM models. It is used for SQLite;
// Postgres schemas are owned by the SQL migrations (RunMigrations).
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// MigrationStatus reports the schema version after a migration command.
type MigrationStatus struct {
	Version uint
	Dirty   bool
}

// RunMigrations applies the embedded Postgres migrations. Supported commands:
// "up", "down", "version".
func RunMigrations(dsn, command string) (MigrationStatus, error) {
	switch command {
	case "up", "down", "version":
	default:
		return MigrationStatus{}, fmt.Errorf("unknown migrate command: %s (use: up, down, version)", command)
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("open postgres: %w", err)
	}
	defer sqlDB.Close()

	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("migrate init: %w", err)
	}

	switch command {
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return MigrationStatus{}, fmt.Errorf("migrate down: %w", err)
		}
	}

	ver, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, fmt.Errorf("migrate version: %w", err)
	}
	return MigrationStatus{Version: ver, Dirty: dirty}, nil
}
