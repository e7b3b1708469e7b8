package database

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"
)

var (
	pgOnce    sync.Once
	pgConnStr string
	pgErr     error
)

// postgresStore returns a store on a shared Postgres container with empty
// tables. The container is started on first use and lives for the rest of
// the test binary; the reaper removes it afterwards.
func postgresStore(t *testing.T) *SQLDB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres store tests skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgOnce.Do(func() {
		container, err := postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("lostfound"),
			postgres.WithUsername("lostfound"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			pgErr = err
			return
		}
		pgConnStr, pgErr = container.ConnectionString(ctx, "sslmode=disable")
	})
	require.NoError(t, pgErr, "failed to start postgres container")

	db, err := NewPostgresDB(pgConnStr, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })

	require.NoError(t, db.InitializeTables(ctx))
	_, err = db.DB.ExecContext(ctx, `TRUNCATE users, conversations, messages, notifications CASCADE`)
	require.NoError(t, err)
	return db
}
