//go:build integration

package database

import (
	"context"
	"testing"

	"github.com/cloo-solutions/zenithvault/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateAndConnect(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	require.NoError(t, Migrate(pc.ConnectionString(), "file://../../migrations", nil))
	// A second run is a no-op.
	require.NoError(t, Migrate(pc.ConnectionString(), "file://../../migrations", nil))

	pool, err := NewPool(ctx, Config{URL: pc.ConnectionString(), MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	assert.EqualValues(t, 4, pool.Config().MaxConns)

	for _, table := range []string{"organizations", "api_keys", "knowledge_entries", "embedding_jobs", "answer_logs"} {
		var exists bool
		err := pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, "public."+table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}
}
