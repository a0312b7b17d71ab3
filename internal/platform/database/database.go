// Package database wraps the Postgres connection pool for the Postgres
// Persistence Adapter.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/chatflow/workflow-core/internal/platform/config"
	"github.com/chatflow/workflow-core/internal/platform/metrics"
)

// DB wraps a pooled SQL connection.
type DB struct {
	*sql.DB
}

// New opens and pings a Postgres connection pool per cfg.
func New(cfg config.DatabaseConfig) (*DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: opening connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database: pinging: %w", err)
	}

	return &DB{DB: db}, nil
}

// Transaction runs fn inside a transaction, rolling back on error or panic.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("database: %v (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// ReportStats sets the open/in-use connection gauges from the pool's
// current sql.DBStats. A caller runs this on a ticker, since the driver
// exposes no change notification for pool occupancy.
func (db *DB) ReportStats(m *metrics.Metrics, dbName string) {
	if m == nil {
		return
	}
	stats := db.Stats()
	m.DBConnectionsOpen.WithLabelValues(dbName).Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.WithLabelValues(dbName).Set(float64(stats.InUse))
}

// HealthCheck verifies the pool can still serve a trivial query.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var result int
	return db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}

// NullString adapts a possibly-empty string for nullable columns.
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// NullTime adapts a possibly-nil time for nullable columns.
func NullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
