package health

import (
	"context"
	"database/sql"
	"fmt"
)

// DBChecker checks relational database connectivity.
type DBChecker struct {
	name string
	db   *sql.DB
}

// NewDBChecker creates a health checker reported under name, e.g. "sqlite"
// or "postgres".
func NewDBChecker(name string, db *sql.DB) *DBChecker {
	return &DBChecker{name: name, db: db}
}

// Name returns the checker name.
func (c *DBChecker) Name() string {
	return c.name
}

// Check verifies the database is accessible.
func (c *DBChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// Pinger interface for dependencies that support ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker checks any Pinger, such as the redis cooldown store.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewPingChecker creates a new ping-based health checker.
func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: p}
}

// Name returns the checker name.
func (c *PingChecker) Name() string {
	return c.name
}

// Check pings the dependency.
func (c *PingChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("%s not configured", c.name)
	}
	return c.pinger.Ping(ctx)
}
