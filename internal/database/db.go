package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB represents a database connection
type DB struct {
	*sql.DB
}

// ConnectionParams holds PostgreSQL connection parameters
type ConnectionParams struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// New creates a new database connection
func New(ctx context.Context, params ConnectionParams) (*DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		params.Host, params.Port, params.User, params.Password, params.DBName, params.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := createTables(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS rates (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		rate DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS rates_timestamp_idx ON rates (timestamp)`,
	`CREATE TABLE IF NOT EXISTS expected_ranges (
		date DATE PRIMARY KEY,
		low DOUBLE PRECISION NOT NULL,
		high DOUBLE PRECISION NOT NULL,
		source TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS breakout_events (
		id BIGSERIAL PRIMARY KEY,
		event_type TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		boundary DOUBLE PRECISION NOT NULL,
		threshold DOUBLE PRECISION NOT NULL,
		predicted_probability DOUBLE PRECISION,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS breakout_events_pending_idx ON breakout_events (timestamp) WHERE resolved = FALSE`,
	`CREATE TABLE IF NOT EXISTS decision_log (
		id BIGSERIAL PRIMARY KEY,
		instrument TEXT NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL,
		rate DOUBLE PRECISION NOT NULL,
		action TEXT NOT NULL,
		confirmed BOOLEAN NOT NULL,
		score INTEGER NOT NULL,
		reason TEXT,
		probabilities JSONB NOT NULL,
		features JSONB NOT NULL
	)`,
}

// createTables creates the necessary tables if they don't exist
func createTables(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}
