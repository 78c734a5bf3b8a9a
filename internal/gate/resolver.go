package gate

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/chartgate/chartgate/internal/apikey"
	"github.com/chartgate/chartgate/internal/ratelimit"
	"github.com/chartgate/chartgate/internal/tenant"
)

// Config is the immutable configuration the resolution chain runs against.
// It is captured at construction so resolution is deterministic and testable
// without touching process environment.
type Config struct {
	// FallbackKeys is the statically configured allow-list of raw secrets.
	// When empty, unauthenticated requests are admitted in dev mode.
	FallbackKeys []string

	// DefaultRateLimit applies to env-fallback contexts, which have no plan.
	DefaultRateLimit ratelimit.Spec
}

// Resolver turns an inbound credential into a TenantContext using a fixed
// precedence: SaaS key lookup, then the static fallback list, then dev mode
// when no static keys exist at all. The chain is an explicit ordered slice,
// not a registry, so precedence is visible in one place.
type Resolver struct {
	repo       *apikey.Repository
	cfg        Config
	strategies []strategy
}

// strategy inspects one credential source. It returns (ctx, true, nil) on a
// match, (nil, false, nil) to pass to the next strategy, or a terminal
// error that stops the chain.
type strategy func(ctx context.Context, credential string) (*TenantContext, bool, error)

// NewResolver creates a resolver over the key repository and static config.
func NewResolver(repo *apikey.Repository, cfg Config) *Resolver {
	r := &Resolver{repo: repo, cfg: cfg}
	r.strategies = []strategy{
		r.resolveSaaS,
		r.resolveFallback,
		r.resolveDevMode,
	}
	return r
}

// Resolve runs the strategy chain. First match wins; if nothing matches the
// request is unauthorized.
func (r *Resolver) Resolve(ctx context.Context, credential string) (*TenantContext, error) {
	for _, s := range r.strategies {
		tc, ok, err := s(ctx, credential)
		if err != nil {
			return nil, err
		}
		if ok {
			return tc, nil
		}
	}
	return nil, ErrUnauthorized
}

// resolveSaaS matches the credential against dynamically provisioned tenant
// keys. A provisioned key always wins over a colliding fallback key because
// this strategy runs first. A suspended tenant is a terminal rejection, not
// a fall-through: the key is bound, the account is just blocked.
func (r *Resolver) resolveSaaS(ctx context.Context, credential string) (*TenantContext, bool, error) {
	if credential == "" {
		return nil, false, nil
	}

	match, err := r.repo.FindBySecret(ctx, credential)
	if err != nil {
		if errors.Is(err, apikey.ErrKeyNotFound) {
			return nil, false, nil
		}
		// A storage outage must fail closed, never degrade to fallback or
		// dev-mode admission.
		return nil, false, &StorageError{Op: "key lookup", Err: err}
	}

	if match.Tenant.Status != tenant.StatusActive {
		return nil, false, ErrTenantSuspended
	}

	spec, err := ratelimit.ParseSpec(match.Plan.RateLimit)
	if err != nil {
		// A malformed plan row falls back to the default rather than
		// rejecting paying traffic.
		spec = r.cfg.DefaultRateLimit
	}

	return &TenantContext{
		TenantID:     match.Tenant.ID,
		PlanID:       match.Plan.ID,
		RateLimit:    spec,
		MonthlyQuota: match.Plan.MonthlyQuota,
		Source:       SourceSaaS,
		credential:   credential,
	}, true, nil
}

// resolveFallback matches against the static allow-list. Comparison is
// constant-time per candidate so the list never leaks prefix information.
func (r *Resolver) resolveFallback(_ context.Context, credential string) (*TenantContext, bool, error) {
	if credential == "" {
		return nil, false, nil
	}

	matched := false
	for _, k := range r.cfg.FallbackKeys {
		if subtle.ConstantTimeCompare([]byte(k), []byte(credential)) == 1 {
			matched = true
		}
	}
	if !matched {
		return nil, false, nil
	}

	return &TenantContext{
		RateLimit:    r.cfg.DefaultRateLimit,
		MonthlyQuota: 0, // no tenant, no quota
		Source:       SourceEnvFallback,
		credential:   credential,
	}, true, nil
}

// resolveDevMode admits when the operator has configured zero static keys.
// A credential mismatch while keys ARE configured never reaches here with a
// match: it falls off the chain and is rejected.
func (r *Resolver) resolveDevMode(_ context.Context, credential string) (*TenantContext, bool, error) {
	if len(r.cfg.FallbackKeys) > 0 {
		return nil, false, nil
	}
	return &TenantContext{
		Source:     SourceDevMode,
		credential: credential,
	}, true, nil
}
