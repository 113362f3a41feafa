package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the table store and checks the connection. SQLite
// databases are limited to one connection so in-memory databases stay shared.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if _, err := placeholder(driver); err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

func placeholder(driver string) (sq.PlaceholderFormat, error) {
	switch driver {
	case DriverPostgres:
		return sq.Dollar, nil
	case DriverSQLite:
		return sq.Question, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS raw_sprints (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		completed_date TEXT NOT NULL,
		state TEXT NOT NULL,
		goal TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS raw_issues (
		id BIGINT PRIMARY KEY,
		issue_key TEXT NOT NULL,
		project_key TEXT NOT NULL,
		issue_type TEXT NOT NULL,
		status TEXT NOT NULL,
		story_points TEXT NOT NULL,
		created TEXT NOT NULL,
		resolved TEXT NOT NULL,
		sprint_id BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS raw_transitions (
		ordinal BIGINT PRIMARY KEY,
		issue_id BIGINT NOT NULL,
		field TEXT NOT NULL,
		from_status TEXT,
		to_status TEXT NOT NULL,
		changed_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sprints (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		completed_date TEXT,
		state TEXT NOT NULL,
		goal TEXT NOT NULL,
		duration_days INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS issues (
		id BIGINT PRIMARY KEY,
		issue_key TEXT NOT NULL,
		project_key TEXT NOT NULL,
		issue_type TEXT NOT NULL,
		status TEXT NOT NULL,
		status_category TEXT NOT NULL,
		story_points DOUBLE PRECISION NOT NULL,
		story_points_imputed INTEGER NOT NULL,
		created TEXT,
		resolved TEXT,
		sprint_id BIGINT,
		cycle_time_days DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS sprint_velocity (
		sprint_id BIGINT PRIMARY KEY,
		actual_velocity DOUBLE PRECISION NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feature_columns (
		ordinal INTEGER PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS feature_rows (
		sprint_id BIGINT PRIMARY KEY,
		ordinal INTEGER NOT NULL,
		state TEXT NOT NULL,
		start_date TEXT,
		actual_velocity DOUBLE PRECISION,
		feature_values TEXT NOT NULL
	)`,
}

// Migrate creates the tables used by the pipeline stages.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
