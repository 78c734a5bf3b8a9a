// Package usage tracks monthly request quotas per tenant.
//
// Unlike the rate limiter, quota state is durable: a process restart must
// not reset counts within an active billing period. Each calendar month
// gets a fresh record; prior periods are retained for reporting and never
// carry a remainder forward.
package usage

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrQuotaExceeded = errors.New("usage: monthly quota exceeded")
)

// Period identifies a calendar-month billing period, e.g. "2026-08".
type Period string

// CurrentPeriod returns the billing period containing t (UTC).
func CurrentPeriod(t time.Time) Period {
	return Period(t.UTC().Format("2006-01"))
}

// Start returns the first instant of the period.
func (p Period) Start() time.Time {
	t, err := time.Parse("2006-01", string(p))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Record is the usage counter for one (tenant, period) pair.
type Record struct {
	TenantID    string    `json:"tenantId"`
	Period      Period    `json:"period"`
	PeriodStart time.Time `json:"periodStart"`
	Count       int64     `json:"requestCount"`
}

// Unbounded is the remaining value returned by Reserve when the plan has no
// quota.
const Unbounded int64 = -1

// Tracker enforces monthly quotas with exact accounting under concurrency.
type Tracker interface {
	// Reserve atomically increments the counter for (tenantID, period)
	// unless the increment would exceed quota. Under concurrent calls racing
	// the quota boundary, exactly one brings the count to quota; the rest
	// observe ErrQuotaExceeded. quota 0 means unbounded: the call always
	// succeeds, still increments for reporting, and returns Unbounded.
	// Returns the requests remaining after this reservation.
	Reserve(ctx context.Context, tenantID string, period Period, quota int64) (remaining int64, err error)

	// Release undoes one reservation, compensating for a handler that
	// failed or was cancelled after admission. It never drops the counter
	// below zero and never touches other periods.
	Release(ctx context.Context, tenantID string, period Period) error

	// Count returns the counter for (tenantID, period); 0 if absent.
	Count(ctx context.Context, tenantID string, period Period) (int64, error)

	// History returns up to limit records for the tenant, newest period
	// first.
	History(ctx context.Context, tenantID string, limit int) ([]Record, error)
}
