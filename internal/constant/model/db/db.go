package db

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Pool sizing: the store sees short single-row reads and writes from the API
// handlers plus one confirmation loop per in-flight operation, so a modest
// pool is plenty.
const (
	maxOpenConns    = 20
	maxIdleConns    = 4
	connMaxLifetime = 30 * time.Minute
)

// DB wraps the GORM handle so callers can close the underlying pool.
type DB struct {
	*gorm.DB
}

// NewDB opens a postgres connection, verifies it, and migrates the
// pending-operation and outcome tables.
func NewDB(connectionString string) (*DB, error) {
	gormDB, err := gorm.Open(postgres.Open(connectionString), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if err := gormDB.AutoMigrate(&PendingOperation{}, &ConfirmationOutcome{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{DB: gormDB}, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
