package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/cluster-armada/internal/domain/integration"
	"github.com/ahrav/cluster-armada/internal/infra/storage"
)

func setupClusterTest(t *testing.T) (context.Context, *pgxpool.Pool, *clusterStore, func()) {
	t.Helper()

	db, cleanup := storage.SetupTestContainer(t)
	store := NewClusterStore(db, storage.NoOpTracer())
	ctx := context.Background()

	return ctx, db, store, cleanup
}

func createTestCluster(t *testing.T, name string) *integration.Cluster {
	t.Helper()
	cluster, err := integration.NewCluster(name, "velero", "backup-sa", integration.NewVaultCredential("secret/data/clusters/"+name))
	require.NoError(t, err)
	return cluster
}

func TestClusterStore_UpsertAndGet(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupClusterTest(t)
	defer cleanup()

	cluster := createTestCluster(t, "prod-east")
	persisted, err := store.Upsert(ctx, cluster)
	require.NoError(t, err)
	require.NotZero(t, persisted.ID())

	loaded, err := store.GetByName(ctx, "prod-east")
	require.NoError(t, err)

	assert.Equal(t, persisted.ID(), loaded.ID())
	assert.Equal(t, "prod-east", loaded.Name())
	assert.Equal(t, "velero", loaded.Namespace())
	assert.Equal(t, "backup-sa", loaded.ServiceAccount())
	assert.Equal(t, integration.ClusterStatusPending, loaded.Status())
	assert.Equal(t, integration.CredentialSourceVault, loaded.Credential().Source())
	assert.False(t, loaded.CreatedAt().IsZero())
}

func TestClusterStore_UpsertRewritesExisting(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupClusterTest(t)
	defer cleanup()

	first, err := store.Upsert(ctx, createTestCluster(t, "prod-east"))
	require.NoError(t, err)

	replacement, err := integration.NewCluster("prod-east", "backups", "replacement-sa",
		integration.NewVaultCredential("secret/data/clusters/prod-east-v2"))
	require.NoError(t, err)

	second, err := store.Upsert(ctx, replacement)
	require.NoError(t, err)

	// Identity and creation time survive the rewrite.
	assert.Equal(t, first.ID(), second.ID())
	assert.Equal(t, first.CreatedAt(), second.CreatedAt())

	loaded, err := store.GetByName(ctx, "prod-east")
	require.NoError(t, err)
	assert.Equal(t, "backups", loaded.Namespace())
	assert.Equal(t, "replacement-sa", loaded.ServiceAccount())

	vaultPath, ok := loaded.Credential().VaultPath()
	require.True(t, ok)
	assert.Equal(t, "secret/data/clusters/prod-east-v2", vaultPath)
}

func TestClusterStore_GetByID(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupClusterTest(t)
	defer cleanup()

	persisted, err := store.Upsert(ctx, createTestCluster(t, "prod-east"))
	require.NoError(t, err)

	loaded, err := store.GetByID(ctx, persisted.ID())
	require.NoError(t, err)
	assert.Equal(t, "prod-east", loaded.Name())
	assert.Equal(t, persisted.ID(), loaded.ID())

	_, err = store.GetByID(ctx, 9999)
	assert.ErrorIs(t, err, integration.ErrClusterNotFound)
}

func TestClusterStore_GetByName_NotFound(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupClusterTest(t)
	defer cleanup()

	_, err := store.GetByName(ctx, "no-such-cluster")
	assert.ErrorIs(t, err, integration.ErrClusterNotFound)
}

func TestClusterStore_UpdateStatus(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupClusterTest(t)
	defer cleanup()

	persisted, err := store.Upsert(ctx, createTestCluster(t, "prod-east"))
	require.NoError(t, err)

	err = store.UpdateStatus(ctx, persisted.ID(), integration.ClusterStatusConnected)
	require.NoError(t, err)

	loaded, err := store.GetByName(ctx, "prod-east")
	require.NoError(t, err)
	assert.Equal(t, integration.ClusterStatusConnected, loaded.Status())
}

func TestClusterStore_UpdateStatus_NotFound(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupClusterTest(t)
	defer cleanup()

	err := store.UpdateStatus(ctx, 9999, integration.ClusterStatusError)
	assert.ErrorIs(t, err, integration.ErrClusterNotFound)
}

func TestClusterStore_List(t *testing.T) {
	t.Parallel()
	ctx, _, store, cleanup := setupClusterTest(t)
	defer cleanup()

	for _, name := range []string{"zulu", "alpha", "mike"} {
		_, err := store.Upsert(ctx, createTestCluster(t, name))
		require.NoError(t, err)
	}

	clusters, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 3)

	assert.Equal(t, "alpha", clusters[0].Name())
	assert.Equal(t, "mike", clusters[1].Name())
	assert.Equal(t, "zulu", clusters[2].Name())
}
