package testdb

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phrazzld/docqueue/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

var migrateOnce struct {
	sync.Mutex
	done bool
}

// GetTestPoolWithT opens a pool to DATABASE_URL and applies migrations once per
// test binary. The test is skipped when DATABASE_URL is not set.
func GetTestPoolWithT(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if ShouldSkipDatabaseTest() {
		t.Skip(EnvDatabaseURL + " not set - skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.Open(ctx, postgres.PoolConfig{URL: DatabaseURL(), MaxConns: 5})
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(pool.Close)

	migrateOnce.Lock()
	defer migrateOnce.Unlock()
	if !migrateOnce.done {
		log := slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{Level: slog.LevelWarn}))
		require.NoError(t, postgres.Migrate(ctx, pool, log), "failed to migrate test database")
		migrateOnce.done = true
	}

	return pool
}

// WithTx runs fn in a transaction that is always rolled back.
func WithTx(t *testing.T, pool *pgxpool.Pool, fn func(t *testing.T, tx pgx.Tx)) {
	t.Helper()

	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	require.NoError(t, err, "failed to begin transaction")

	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			t.Logf("warning: failed to roll back transaction: %v", err)
		}
	}()

	fn(t, tx)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
