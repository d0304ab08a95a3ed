// Package database provides the PostgreSQL connection pool and schema
// migration runner used when the session store runs on Postgres.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
)

// Config holds database connection pool configuration.
type Config struct {
	URL         string
	MaxConns    int
	MinConns    int
	MaxConnLife time.Duration
}

// Connect opens a pgx-backed connection pool, verifies connectivity and
// returns the pool ready for the Postgres session store.
func Connect(ctx context.Context, config Config, logger *logrus.Logger) (*sql.DB, error) {
	pool, err := sql.Open("pgx", config.URL)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxConns := config.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}
	minConns := config.MinConns
	if minConns <= 0 {
		minConns = 5
	}
	life := config.MaxConnLife
	if life <= 0 {
		life = 5 * time.Minute
	}
	pool.SetMaxOpenConns(maxConns)
	pool.SetMaxIdleConns(minConns)
	pool.SetConnMaxLifetime(life)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"max_conns": maxConns,
		"min_conns": minConns,
	}).Info("Database connection pool established")

	return pool, nil
}
