package database

import (
	"fmt"
	"time"

	"homesync/internal/models"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL dialect
	_ "github.com/jinzhu/gorm/dialects/sqlite"   // SQLite dialect
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Options configures the connection pool.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogMode         bool
}

// Open connects to the database described by opts. SQLite is limited to a
// single open connection because it only admits one writer.
func Open(opts Options) (*gorm.DB, error) {
	switch opts.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}

	db, err := gorm.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.LogMode(opts.LogMode)

	maxOpen := opts.MaxOpenConns
	if opts.Driver == DriverSQLite {
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.DB().SetMaxOpenConns(maxOpen)
	}
	if opts.MaxIdleConns > 0 {
		db.DB().SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.DB().SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	return db, nil
}

// Migrate creates every table, column and index the service needs.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...).Error; err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
