// Package db opens the shared connection pool oxenqueue's Store,
// Dispatcher, and Supervisor callbacks all draw from. The driver and pool
// itself are external collaborators (spec §1); this package only wires
// sane defaults around them the way the reference project does.
package db

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect opens a Postgres pool for dsn. minOpenConns should be at least
// (concurrency of all local dispatchers + 2), per spec §5, so Store calls
// never starve behind Supervisor callbacks; Connect does not enforce this,
// it only sizes the pool to the caller's request.
func Connect(dsn string, minOpenConns int) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db: connection string is required")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	if minOpenConns < 1 {
		minOpenConns = 1
	}
	db.SetMaxOpenConns(minOpenConns)
	db.SetMaxIdleConns(minOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	return db, nil
}
