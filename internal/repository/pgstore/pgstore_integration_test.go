//go:build integration

package pgstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"auction-house/internal/repository"
	"auction-house/internal/repository/storetest"
)

// setupTestDB starts a PostgreSQL container and returns its connection string
func setupTestDB(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:alpine",
		postgres.WithDatabase("auctions"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestStore_Conformance(t *testing.T) {
	connStr := setupTestDB(t)
	ctx := context.Background()

	storetest.Run(t, func(t *testing.T) repository.AuctionDB {
		store, err := Connect(ctx, connStr)
		require.NoError(t, err)
		require.NoError(t, store.Migrate(ctx))

		_, err = store.pool.Exec(ctx, `TRUNCATE auctions, bids, users`)
		require.NoError(t, err)

		t.Cleanup(func() { _ = store.Close(ctx) })
		return store
	})
}

func TestStore_MigrateIsIdempotent(t *testing.T) {
	connStr := setupTestDB(t)
	ctx := context.Background()

	store, err := Connect(ctx, connStr)
	require.NoError(t, err)
	defer store.Close(ctx)

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx))
}
