package apikey

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartgate/chartgate/internal/tenant"
	"github.com/chartgate/chartgate/internal/testutil"
)

func TestPostgresStoreKeyLifecycle(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	tenants := tenant.NewPostgresStore(db)
	require.NoError(t, tenants.Create(ctx, &tenant.Tenant{
		ID:        "t_pg",
		Name:      "Acme",
		Email:     "ops@acme.test",
		PlanID:    tenant.PlanFree,
		Status:    tenant.StatusActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}))

	repo := NewRepository(NewPostgresStore(db), tenants)
	raw, key, err := repo.Generate(ctx, "t_pg", "default")
	require.NoError(t, err)
	assert.Equal(t, raw[:8], key.KeyPrefix)

	match, err := repo.FindBySecret(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "t_pg", match.Tenant.ID)
	assert.Equal(t, tenant.PlanFree, match.Plan.ID)

	// Revoked keys become invisible to hash lookup but stay listed.
	require.NoError(t, repo.Revoke(ctx, key.ID, "t_pg"))

	_, err = repo.FindBySecret(ctx, raw)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	keys, err := repo.List(ctx, "t_pg")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Revoked())

	// Revoking twice, or for the wrong tenant, fails.
	assert.ErrorIs(t, repo.Revoke(ctx, key.ID, "t_pg"), ErrKeyNotFound)
}

func TestPostgresStoreRevokeEnforcesOwnership(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	tenants := tenant.NewPostgresStore(db)
	for _, id := range []string{"t_a", "t_b"} {
		require.NoError(t, tenants.Create(ctx, &tenant.Tenant{
			ID:        id,
			Name:      id,
			Email:     id + "@acme.test",
			PlanID:    tenant.PlanFree,
			Status:    tenant.StatusActive,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}))
	}

	repo := NewRepository(NewPostgresStore(db), tenants)
	raw, key, err := repo.Generate(ctx, "t_a", "default")
	require.NoError(t, err)

	assert.ErrorIs(t, repo.Revoke(ctx, key.ID, "t_b"), ErrKeyNotFound)

	// Still valid for its owner.
	_, err = repo.FindBySecret(ctx, raw)
	assert.NoError(t, err)
}
