// Package account provides the self-service tenant surface: registration,
// login, API key lifecycle, and usage reporting.
//
// Authentication model:
// - Register and login are public
// - Everything else requires a Bearer session token from login
// - API keys themselves are managed here but consumed by the chart gate
package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/chartgate/chartgate/internal/apikey"
	"github.com/chartgate/chartgate/internal/idgen"
	"github.com/chartgate/chartgate/internal/tenant"
	"github.com/chartgate/chartgate/internal/token"
	"github.com/chartgate/chartgate/internal/usage"
	"github.com/chartgate/chartgate/internal/validation"
)

// Errors
var (
	ErrBadCredentials = errors.New("account: invalid email or password")
)

// Service implements account operations over the tenant and key stores.
type Service struct {
	tenants tenant.Store
	keys    *apikey.Repository
	tokens  *token.Issuer
	usage   usage.Tracker
	logger  *slog.Logger
}

// NewService creates an account service.
func NewService(tenants tenant.Store, keys *apikey.Repository, tokens *token.Issuer, tracker usage.Tracker, logger *slog.Logger) *Service {
	return &Service{
		tenants: tenants,
		keys:    keys,
		tokens:  tokens,
		usage:   tracker,
		logger:  logger,
	}
}

// Register creates a tenant on the given plan and issues its first API key.
// The raw key is returned once and never retrievable again.
func (s *Service) Register(ctx context.Context, name, email, password, planID string) (*tenant.Tenant, string, error) {
	if planID == "" {
		planID = tenant.PlanFree
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	t := &tenant.Tenant{
		ID:           idgen.WithPrefix("t_"),
		Name:         validation.SanitizeName(name),
		Email:        email,
		PasswordHash: string(hash),
		PlanID:       planID,
		Status:       tenant.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.tenants.Create(ctx, t); err != nil {
		return nil, "", err
	}

	rawKey, _, err := s.keys.Generate(ctx, t.ID, "Default key")
	if err != nil {
		// Tenant exists but has no key; they can create one after login.
		s.logger.Warn("initial key generation failed",
			"tenant_id", t.ID,
			"error", err,
		)
		return t, "", nil
	}
	return t, rawKey, nil
}

// Login verifies credentials and returns a session token.
// Suspended tenants may still log in to inspect their account; only chart
// requests are blocked for them.
func (s *Service) Login(ctx context.Context, email, password string) (string, *tenant.Tenant, error) {
	t, err := s.tenants.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			return "", nil, ErrBadCredentials
		}
		return "", nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrBadCredentials
	}

	tok, err := s.tokens.Issue(t.ID, t.Email)
	if err != nil {
		return "", nil, err
	}
	return tok, t, nil
}

// Get returns a tenant with its plan.
func (s *Service) Get(ctx context.Context, tenantID string) (*tenant.Tenant, *tenant.Plan, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.tenants.GetPlan(ctx, t.PlanID)
	if err != nil {
		return nil, nil, err
	}
	return t, p, nil
}

// Usage returns the current-period counter plus recent history.
func (s *Service) Usage(ctx context.Context, tenantID string, historyLimit int) (current usage.Record, history []usage.Record, err error) {
	period := usage.CurrentPeriod(time.Now())
	count, err := s.usage.Count(ctx, tenantID, period)
	if err != nil {
		return usage.Record{}, nil, err
	}
	current = usage.Record{
		TenantID:    tenantID,
		Period:      period,
		PeriodStart: period.Start(),
		Count:       count,
	}

	history, err = s.usage.History(ctx, tenantID, historyLimit)
	if err != nil {
		return usage.Record{}, nil, err
	}
	return current, history, nil
}
