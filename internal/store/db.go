// Package store persists books and their history in a relational database.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"    // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // goqu dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // goqu dialect
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite3"
	DriverMySQL    = "mysql"

	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 5 * time.Minute
)

// ErrUnsupportedDriver is returned for a driver name without a known SQL dialect.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Options tune the connection pool opened by Open.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to the database behind dsn and verifies it with a ping.
func Open(ctx context.Context, driver, dsn string, opts Options) (*sqlx.DB, error) {
	if _, err := dialectName(driver); err != nil {
		return nil, err
	}

	if driver == DriverMySQL {
		var err error
		if dsn, err = mysqlDSN(dsn); err != nil {
			return nil, err
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(defaultMaxConnLifetime)
	db.SetConnMaxIdleTime(defaultMaxConnIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	return db, nil
}

// dialectName maps a database/sql driver name to its goqu dialect.
func dialectName(driver string) (string, error) {
	switch driver {
	case DriverPostgres, DriverPGX:
		return "postgres", nil
	case DriverSQLite:
		return "sqlite3", nil
	case DriverMySQL:
		return "mysql", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

func dialectFor(db *sqlx.DB) (goqu.DialectWrapper, string, error) {
	name, err := dialectName(db.DriverName())
	if err != nil {
		return goqu.DialectWrapper{}, "", err
	}
	return goqu.Dialect(name), name, nil
}

// mysqlDSN makes timestamps scan into time.Time and lets UPDATE report matched rows,
// which is how Save detects a vanished book.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("failed to parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN(), nil
}
