package database

import (
	"context"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Options configures the MySQL connection pool.
type Options struct {
	User     string
	Pass     string
	Host     string
	Port     string
	Name     string
	MaxConns int
}

// DSN builds the driver connection string.  ClientFoundRows makes UPDATE
// report matched rather than changed rows, so a capped release that leaves
// available_seats unchanged still reports the class as found.
func (o Options) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Pass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, o.Port)
	cfg.DBName = o.Name
	cfg.ParseTime = true // DATETIME -> time.Time
	cfg.Loc = time.UTC
	cfg.ClientFoundRows = true
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open connects to MySQL and verifies the connection.  The returned handle
// is owned by the caller, who must Close it on shutdown.
func Open(ctx context.Context, o Options) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", o.DSN())
	if err != nil {
		return nil, err
	}

	maxConns := o.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// WaitForDB retries Open until it succeeds, attempts are exhausted or ctx
// is cancelled.  Workers start alongside the database in compose setups and
// must tolerate it coming up late.
func WaitForDB(ctx context.Context, o Options, attempts int, every time.Duration) (*sqlx.DB, error) {
	var lastErr error
	for i := 0; i < attempts; i++ {
		db, err := Open(ctx, o)
		if err == nil {
			return db, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(every):
		}
	}
	return nil, lastErr
}
