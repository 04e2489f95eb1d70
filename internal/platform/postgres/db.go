package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/docqueue/internal/queue"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var (
	_ DBTX = (*pgxpool.Pool)(nil)
	_ DBTX = (pgx.Tx)(nil)
)

// PoolConfig configures Open.
type PoolConfig struct {
	URL         string
	MaxConns    int32
	PingTimeout time.Duration
}

// Open creates a connection pool and verifies it with a ping.
func Open(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Database hands out one table-backed Collection per name.
type Database struct {
	db DBTX

	mu          sync.Mutex
	collections map[string]*Collection
}

var _ queue.Database = (*Database)(nil)

// NewDatabase wraps db, which may be a pool or a transaction.
func NewDatabase(db DBTX) *Database {
	return &Database{
		db:          db,
		collections: make(map[string]*Collection),
	}
}

// Collection returns the collection for name. Its table is created on first use.
func (d *Database) Collection(name string) queue.Collection {
	return d.TaskCollection(name)
}

// TaskCollection is Collection with the concrete type.
func (d *Database) TaskCollection(name string) *Collection {
	d.mu.Lock()
	defer d.mu.Unlock()

	c, ok := d.collections[name]
	if !ok {
		c = newCollection(d.db, name)
		d.collections[name] = c
	}
	return c
}
