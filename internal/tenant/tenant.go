// Package tenant provides multi-tenancy for the Chartgate platform.
package tenant

import (
	"errors"
	"time"
)

// Errors
var (
	ErrTenantNotFound = errors.New("tenant: not found")
	ErrEmailTaken     = errors.New("tenant: email already registered")
	ErrPlanNotFound   = errors.New("tenant: unknown plan")
)

// Status represents a tenant's lifecycle state. Tenants are never deleted,
// only suspended by an operator.
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
)

// Plan is a named limit profile: a short-window rate limit and a monthly
// chart quota. MonthlyQuota 0 means unbounded.
type Plan struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RateLimit    string `json:"rateLimit"` // spec string, e.g. "60/minute"
	MonthlyQuota int64  `json:"monthlyQuota"`
}

// Unlimited reports whether the plan has no monthly quota.
func (p Plan) Unlimited() bool { return p.MonthlyQuota == 0 }

// Tenant represents a billed account using the platform.
type Tenant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	PlanID       string    `json:"planId"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
