package database

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	pgOnce   sync.Once
	pgSource string
	pgErr    error
)

// newTestPostgresStore starts one shared PostgreSQL container per test binary
// and truncates the tables for every caller. Tests are skipped when no
// container runtime is available.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgOnce.Do(func() {
		container, err := postgres.Run(ctx,
			"postgres:14-alpine",
			postgres.WithDatabase("testdb"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			),
		)
		if err != nil {
			pgErr = err
			return
		}
		pgSource, pgErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	if pgErr != nil {
		t.Skipf("postgres container unavailable: %v", pgErr)
	}

	store, err := NewPostgresStore(ctx, pgSource)
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))
	_, err = store.GetPool().Exec(ctx, `TRUNCATE users, barcodes RESTART IDENTITY`)
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store
}
