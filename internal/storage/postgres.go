package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers pgx as a database/sql driver named "pgx".
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStorage implements Storage on Postgres through pgx.
type PostgresStorage struct {
	dsn      string
	maxConns int
	sqlStore
}

// NewPostgresStorage creates a Postgres storage for dsn.
func NewPostgresStorage(dsn string, maxConns int) *PostgresStorage {
	if maxConns <= 0 {
		maxConns = 10
	}
	return &PostgresStorage{dsn: dsn, maxConns: maxConns}
}

// Open connects and pings the database.
func (s *PostgresStorage) Open() error {
	if s.dsn == "" {
		return fmt.Errorf("postgres dsn is required")
	}

	db, err := sql.Open("pgx", s.dsn)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(s.maxConns)
	db.SetMaxIdleConns(s.maxConns / 2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}

	s.init(db, dialectPostgres)
	return nil
}
