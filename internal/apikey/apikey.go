// Package apikey manages per-tenant API credentials.
//
// Secrets are stored only as SHA-256 hashes; the raw secret is returned
// exactly once at creation time. Lookup hashes the presented secret and
// matches against a unique index, so no comparison ever walks the stored
// hash byte by byte against attacker-controlled input.
package apikey

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/chartgate/chartgate/internal/idgen"
	"github.com/chartgate/chartgate/internal/tenant"
)

// Errors
var (
	ErrKeyNotFound = errors.New("apikey: not found")
)

// Key represents a stored API key. The raw secret is never persisted.
type Key struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenantId"`
	Hash      string     `json:"-"`
	KeyPrefix string     `json:"keyPrefix"` // first chars of the raw secret, for display
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

// Revoked reports whether the key has been revoked.
func (k *Key) Revoked() bool { return k.RevokedAt != nil }

// Store persists API keys.
type Store interface {
	Create(ctx context.Context, key *Key) error
	// GetByHash returns the live (non-revoked) key with the given secret
	// hash, or ErrKeyNotFound. Revoked keys are indistinguishable from
	// absent ones.
	GetByHash(ctx context.Context, hash string) (*Key, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*Key, error)
	// Revoke marks a key revoked. If tenantID is non-empty the key must
	// belong to that tenant.
	Revoke(ctx context.Context, keyID, tenantID string) error
}

// Match is the result of resolving a presented secret: the key plus the
// owning tenant and its plan.
type Match struct {
	Key    *Key
	Tenant *tenant.Tenant
	Plan   *tenant.Plan
}

// Repository resolves presented secrets to tenants and manages key
// lifecycle. It joins the key store with the tenant store.
type Repository struct {
	keys    Store
	tenants tenant.Store
}

// NewRepository creates a key repository over the given stores.
func NewRepository(keys Store, tenants tenant.Store) *Repository {
	return &Repository{keys: keys, tenants: tenants}
}

// Generate creates a new API key for a tenant.
// Returns the raw secret (shown once, never retrievable again) and the
// stored metadata.
func (r *Repository) Generate(ctx context.Context, tenantID, name string) (rawSecret string, key *Key, err error) {
	if _, err := r.tenants.Get(ctx, tenantID); err != nil {
		return "", nil, err
	}

	rawSecret = "ck_" + idgen.Hex(32)

	key = &Key{
		ID:        idgen.WithPrefix("ak_"),
		TenantID:  tenantID,
		Hash:      HashSecret(rawSecret),
		KeyPrefix: rawSecret[:8],
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	if err := r.keys.Create(ctx, key); err != nil {
		return "", nil, err
	}
	return rawSecret, key, nil
}

// FindBySecret resolves a presented secret to its key, tenant, and plan.
// A revoked key, or a key whose tenant row has vanished, yields
// ErrKeyNotFound; storage failures pass through unchanged so callers can
// distinguish "no match" from "store down".
func (r *Repository) FindBySecret(ctx context.Context, presented string) (*Match, error) {
	if presented == "" {
		return nil, ErrKeyNotFound
	}

	key, err := r.keys.GetByHash(ctx, HashSecret(presented))
	if err != nil {
		return nil, err
	}

	tn, err := r.tenants.Get(ctx, key.TenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	plan, err := r.tenants.GetPlan(ctx, tn.PlanID)
	if err != nil {
		return nil, err
	}

	return &Match{Key: key, Tenant: tn, Plan: plan}, nil
}

// List returns all keys for a tenant, revoked ones included.
func (r *Repository) List(ctx context.Context, tenantID string) ([]*Key, error) {
	return r.keys.ListByTenant(ctx, tenantID)
}

// Revoke revokes a key owned by the given tenant.
func (r *Repository) Revoke(ctx context.Context, keyID, tenantID string) error {
	return r.keys.Revoke(ctx, keyID, tenantID)
}

// HashSecret returns the hex SHA-256 digest of a raw secret.
func HashSecret(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
