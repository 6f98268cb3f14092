//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/zenithvault/internal/domain"
	"github.com/cloo-solutions/zenithvault/internal/testutil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
)

func newTestPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()
	pc := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { _ = pc.Terminate(context.Background()) })

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	t.Cleanup(pool.Close)
	return pool
}

func createTestOrg(ctx context.Context, t *testing.T, repo *OrgRepository, name string) *domain.Organization {
	t.Helper()
	org := domain.NewOrganization(uuid.NewString(), name, time.Now().UTC().Truncate(time.Microsecond))
	require.NoError(t, repo.Create(ctx, org))
	return org
}

// unitVector returns a 1536-dimension vector pointing mostly along axis i
// with a component along axis j, so cosine similarity is easy to control.
func unitVector(i int, j int, weight float32) []float32 {
	v := make([]float32, 1536)
	v[i] = 1
	if weight != 0 {
		v[j] = weight
	}
	return v
}
