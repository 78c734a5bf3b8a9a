package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartgate/chartgate/internal/apikey"
	"github.com/chartgate/chartgate/internal/ratelimit"
	"github.com/chartgate/chartgate/internal/tenant"
)

type fixture struct {
	tenants *tenant.MemoryStore
	keys    *apikey.MemoryStore
	repo    *apikey.Repository
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		tenants: tenant.NewMemoryStore(),
		keys:    apikey.NewMemoryStore(),
	}
	f.repo = apikey.NewRepository(f.keys, f.tenants)
	require.NoError(t, f.tenants.Create(context.Background(), &tenant.Tenant{
		ID:        "t_1",
		Name:      "Acme",
		Email:     "ops@acme.test",
		PlanID:    tenant.PlanFree,
		Status:    tenant.StatusActive,
		CreatedAt: time.Now(),
	}))
	return f
}

func (f *fixture) resolver(fallbackKeys ...string) *Resolver {
	return NewResolver(f.repo, Config{
		FallbackKeys:     fallbackKeys,
		DefaultRateLimit: ratelimit.MustParseSpec("60/minute"),
	})
}

func TestResolveSaaSKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw, _, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)

	tc, err := f.resolver("static-key").Resolve(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, SourceSaaS, tc.Source)
	assert.Equal(t, "t_1", tc.TenantID)
	assert.Equal(t, tenant.PlanFree, tc.PlanID)
	assert.EqualValues(t, 100, tc.MonthlyQuota)
	assert.Equal(t, "10/minute", tc.RateLimit.String())
	assert.Equal(t, "tenant:t_1", tc.LimiterKey())
	assert.True(t, tc.Metered())
}

func TestResolveNoCredentialWithKeysConfigured(t *testing.T) {
	f := newFixture(t)
	_, err := f.resolver("static-key").Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolveMismatchWithKeysConfigured(t *testing.T) {
	// A wrong credential is an error when keys ARE configured — never a
	// silent downgrade to dev mode.
	f := newFixture(t)
	_, err := f.resolver("static-key").Resolve(context.Background(), "wrong")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestResolveFallbackKey(t *testing.T) {
	f := newFixture(t)
	tc, err := f.resolver("static-a", "static-b").Resolve(context.Background(), "static-b")
	require.NoError(t, err)
	assert.Equal(t, SourceEnvFallback, tc.Source)
	assert.Empty(t, tc.TenantID)
	assert.EqualValues(t, 0, tc.MonthlyQuota)
	assert.Equal(t, "60/minute", tc.RateLimit.String())
	assert.Equal(t, "cred:static-b", tc.LimiterKey())
	assert.False(t, tc.Metered())
}

func TestResolveDevMode(t *testing.T) {
	f := newFixture(t)

	// No static keys at all: unauthenticated requests are admitted.
	tc, err := f.resolver().Resolve(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, SourceDevMode, tc.Source)
	assert.True(t, tc.RateLimit.Unlimited())
	assert.Equal(t, "dev", tc.LimiterKey())

	// So are requests with a credential that matches nothing.
	tc, err = f.resolver().Resolve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, SourceDevMode, tc.Source)
}

func TestSaaSKeyWinsOverCollidingFallback(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw, _, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)

	// The same secret appears in the static list; the provisioned tenant
	// key must win.
	tc, err := f.resolver(raw).Resolve(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, SourceSaaS, tc.Source)
	assert.Equal(t, "t_1", tc.TenantID)
}

func TestResolveRevokedKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw, key, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)
	require.NoError(t, f.repo.Revoke(ctx, key.ID, "t_1"))

	_, err = f.resolver("static-key").Resolve(ctx, raw)
	assert.ErrorIs(t, err, ErrUnauthorized, "revoked key must never yield a stale context")
}

func TestResolveSuspendedTenant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw, _, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)

	tn, _ := f.tenants.Get(ctx, "t_1")
	tn.Status = tenant.StatusSuspended
	require.NoError(t, f.tenants.Update(ctx, tn))

	_, err = f.resolver("static-key").Resolve(ctx, raw)
	assert.ErrorIs(t, err, ErrTenantSuspended)
}

// failingKeyStore simulates a durable-store outage.
type failingKeyStore struct{}

func (failingKeyStore) Create(context.Context, *apikey.Key) error { return errors.New("down") }
func (failingKeyStore) GetByHash(context.Context, string) (*apikey.Key, error) {
	return nil, errors.New("connection refused")
}
func (failingKeyStore) ListByTenant(context.Context, string) ([]*apikey.Key, error) {
	return nil, errors.New("down")
}
func (failingKeyStore) Revoke(context.Context, string, string) error { return errors.New("down") }

func TestResolveStorageOutageFailsClosed(t *testing.T) {
	f := newFixture(t)
	repo := apikey.NewRepository(failingKeyStore{}, f.tenants)

	// Even with dev mode nominally available, a storage outage must be
	// surfaced, never downgraded to admission.
	r := NewResolver(repo, Config{DefaultRateLimit: ratelimit.MustParseSpec("60/minute")})
	_, err := r.Resolve(context.Background(), "some-key")

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}
