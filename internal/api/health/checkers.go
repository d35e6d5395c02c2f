package health

import (
	"context"
	"database/sql"
	"fmt"
)

// DBChecker checks relational store connectivity.
type DBChecker struct {
	name string
	db   *sql.DB
}

// NewDBChecker creates a database checker reported under name.
func NewDBChecker(name string, db *sql.DB) *DBChecker {
	return &DBChecker{name: name, db: db}
}

// Name returns the checker name.
func (c *DBChecker) Name() string {
	return c.name
}

// Check pings the database.
func (c *DBChecker) Check(ctx context.Context) error {
	if c.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.db.PingContext(ctx)
}

// Pinger is implemented by clients that support ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker adapts a Pinger, such as the Redis pass lock.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewPingChecker creates a checker reported under name.
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
		return fmt.Errorf("%s not initialized", c.name)
	}
	return c.pinger.Ping(ctx)
}
