package gate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/chartgate/chartgate/internal/metrics"
	"github.com/chartgate/chartgate/internal/ratelimit"
	"github.com/chartgate/chartgate/internal/traces"
	"github.com/chartgate/chartgate/internal/usage"
)

// Gate orchestrates admission for one request:
//
//	resolve identity → rate check → quota reserve → admit
//
// and charges usage only once the handler confirms success. Rejections are
// typed; the gate recovers none of them locally.
type Gate struct {
	resolver *Resolver
	limiter  *ratelimit.Limiter
	usage    usage.Tracker
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures the gate.
type Option func(*Gate)

// WithClock overrides the time source (for tests).
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a gate over the given resolver, limiter, and usage tracker.
func New(resolver *Resolver, limiter *ratelimit.Limiter, tracker usage.Tracker, logger *slog.Logger, opts ...Option) *Gate {
	g := &Gate{
		resolver: resolver,
		limiter:  limiter,
		usage:    tracker,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Admission is a successfully admitted request. The quota reservation it
// carries must be settled by exactly one of Complete or Abort.
type Admission struct {
	TenantContext

	// Remaining is the quota left after this reservation;
	// usage.Unbounded for plans without one.
	Remaining int64

	period   usage.Period
	reserved bool
}

// Admit runs the admission pipeline for a presented credential.
// On success the returned Admission holds a quota reservation (for metered
// contexts). On failure it returns one of the taxonomy errors.
func (g *Gate) Admit(ctx context.Context, credential string) (*Admission, error) {
	ctx, span := traces.StartSpan(ctx, "gate.admit")
	defer span.End()

	tc, err := g.resolver.Resolve(ctx, credential)
	if err != nil {
		g.observeRejection(err)
		return nil, err
	}
	span.SetAttributes(
		traces.TenantID(tc.TenantID),
		traces.AuthSource(string(tc.Source)),
		traces.PlanID(tc.PlanID),
	)

	metrics.AuthResolutions.WithLabelValues(string(tc.Source)).Inc()

	if d := g.limiter.Allow(tc.LimiterKey(), tc.RateLimit); !d.Allowed {
		metrics.GateDecisions.WithLabelValues("throttled").Inc()
		return nil, &ThrottledError{RetryAfter: d.RetryAfter}
	}

	adm := &Admission{TenantContext: *tc, Remaining: usage.Unbounded}

	if tc.Metered() {
		period := usage.CurrentPeriod(g.now())
		span.SetAttributes(traces.Period(string(period)))
		remaining, err := g.usage.Reserve(ctx, tc.TenantID, period, tc.MonthlyQuota)
		if err != nil {
			if errors.Is(err, usage.ErrQuotaExceeded) {
				metrics.GateDecisions.WithLabelValues("quota_exceeded").Inc()
				return nil, ErrQuotaExceeded
			}
			metrics.GateDecisions.WithLabelValues("storage_error").Inc()
			return nil, &StorageError{Op: "quota reserve", Err: err}
		}
		adm.Remaining = remaining
		adm.period = period
		adm.reserved = true
	}

	metrics.GateDecisions.WithLabelValues("admitted").Inc()
	return adm, nil
}

// Complete confirms the handler succeeded: the reservation made at Admit
// stands as the usage record for this request.
func (g *Gate) Complete(_ context.Context, adm *Admission) {
	if adm.reserved {
		metrics.UsageRecorded.Inc()
		adm.reserved = false
	}
}

// Abort compensates for a handler that failed or was cancelled after
// admission: the quota reservation is released so the tenant is not charged
// for a chart that was never produced.
func (g *Gate) Abort(ctx context.Context, adm *Admission) {
	if !adm.reserved {
		return
	}
	adm.reserved = false

	// The request context may already be cancelled; the release must still
	// reach storage.
	if err := g.usage.Release(context.WithoutCancel(ctx), adm.TenantID, adm.period); err != nil {
		g.logger.Warn("usage release failed, tenant may be overcharged by one",
			"tenant_id", adm.TenantID,
			"period", adm.period,
			"error", err,
		)
	}
}

func (g *Gate) observeRejection(err error) {
	var se *StorageError
	switch {
	case errors.Is(err, ErrUnauthorized):
		metrics.GateDecisions.WithLabelValues("unauthorized").Inc()
	case errors.Is(err, ErrTenantSuspended):
		metrics.GateDecisions.WithLabelValues("suspended").Inc()
	case errors.As(err, &se):
		metrics.GateDecisions.WithLabelValues("storage_error").Inc()
	}
}
