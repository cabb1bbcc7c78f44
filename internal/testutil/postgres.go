package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fleettrack/backend/pkg/database"
)

// DatabaseURLEnv names the Postgres DSN used by repository integration tests.
const DatabaseURLEnv = "TEST_DATABASE_URL"

// Postgres returns a migrated pool on TEST_DATABASE_URL and skips the test
// when it is unset. Tests share the database and must use unique names.
func Postgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		t.Skipf("%s not set", DatabaseURLEnv)
	}
	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, dsn, database.PoolConfig{MaxConns: 16}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, database.Migrate(ctx, pool))
	return pool
}
