// Package gate is the admission core that fronts every chart-creation
// request: credential resolution, rate limiting, and quota enforcement,
// composed in a fixed order with typed rejections.
package gate

import "github.com/chartgate/chartgate/internal/ratelimit"

// AuthSource identifies which resolution strategy produced a TenantContext.
type AuthSource string

const (
	SourceSaaS        AuthSource = "saas_db"
	SourceEnvFallback AuthSource = "env_fallback"
	SourceDevMode     AuthSource = "dev_mode"
)

// TenantContext is the ephemeral result of resolving one request's
// credential. It is recomputed every request and never persisted.
type TenantContext struct {
	// TenantID is empty for env-fallback and dev-mode auth, which carry no
	// tenant binding.
	TenantID string `json:"tenantId,omitempty"`
	PlanID   string `json:"planId,omitempty"`

	RateLimit    ratelimit.Spec `json:"-"`
	MonthlyQuota int64          `json:"-"` // 0 = unbounded
	Source       AuthSource     `json:"authSource"`

	// credential is the raw presented secret, kept only to pool limiter
	// state for tenant-less contexts.
	credential string
}

// LimiterKey returns the identity the rate limiter pools on: the tenant
// when there is one (so all keys of a tenant share a window), otherwise the
// raw credential, and a fixed bucket for credential-less dev mode.
func (tc *TenantContext) LimiterKey() string {
	if tc.TenantID != "" {
		return "tenant:" + tc.TenantID
	}
	if tc.credential != "" {
		return "cred:" + tc.credential
	}
	return "dev"
}

// Metered reports whether quota accounting applies: only tenant-bound
// contexts have a usage record.
func (tc *TenantContext) Metered() bool {
	return tc.TenantID != ""
}
