package gate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartgate/chartgate/internal/ratelimit"
	"github.com/chartgate/chartgate/internal/tenant"
	"github.com/chartgate/chartgate/internal/usage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newGate(t *testing.T, f *fixture, tracker usage.Tracker, fallbackKeys ...string) *Gate {
	t.Helper()
	limiter := ratelimit.New()
	t.Cleanup(limiter.Stop)
	return New(f.resolver(fallbackKeys...), limiter, tracker, discardLogger())
}

func TestAdmitAndComplete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw, _, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)

	tracker := usage.NewMemoryTracker()
	g := newGate(t, f, tracker, "static-key")

	adm, err := g.Admit(ctx, raw)
	require.NoError(t, err)
	assert.EqualValues(t, 99, adm.Remaining)

	g.Complete(ctx, adm)

	count, _ := tracker.Count(ctx, "t_1", usage.CurrentPeriod(time.Now()))
	assert.EqualValues(t, 1, count)
}

func TestAbortReleasesReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw, _, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)

	tracker := usage.NewMemoryTracker()
	g := newGate(t, f, tracker, "static-key")

	adm, err := g.Admit(ctx, raw)
	require.NoError(t, err)
	g.Abort(ctx, adm)

	count, _ := tracker.Count(ctx, "t_1", usage.CurrentPeriod(time.Now()))
	assert.EqualValues(t, 0, count, "a failed handler must not be charged")

	// Abort after Complete (or twice) is a no-op.
	adm, err = g.Admit(ctx, raw)
	require.NoError(t, err)
	g.Complete(ctx, adm)
	g.Abort(ctx, adm)

	count, _ = tracker.Count(ctx, "t_1", usage.CurrentPeriod(time.Now()))
	assert.EqualValues(t, 1, count)
}

func TestAbortSurvivesCancelledRequestContext(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw, _, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)

	tracker := usage.NewMemoryTracker()
	g := newGate(t, f, tracker, "static-key")

	reqCtx, cancel := context.WithCancel(ctx)
	adm, err := g.Admit(reqCtx, raw)
	require.NoError(t, err)

	// Caller cancels after ADMIT but before RECORD_USAGE.
	cancel()
	g.Abort(reqCtx, adm)

	count, _ := tracker.Count(ctx, "t_1", usage.CurrentPeriod(time.Now()))
	assert.EqualValues(t, 0, count)
}

// Example scenario from the product contract: plan {rate 2/second, quota 3}.
// Two requests pass; the third in the same window is throttled even though
// quota remains; after the window it passes; the fourth is out of quota.
func TestRateAndQuotaInteraction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tenants.SeedPlan(tenant.Plan{
		ID: "burst", Name: "Burst", RateLimit: "2/second", MonthlyQuota: 3,
	})
	tn, _ := f.tenants.Get(ctx, "t_1")
	tn.PlanID = "burst"
	require.NoError(t, f.tenants.Update(ctx, tn))

	raw, _, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)

	tracker := usage.NewMemoryTracker()
	g := newGate(t, f, tracker, "static-key")
	period := usage.CurrentPeriod(time.Now())

	// Requests 1 and 2 admit and count.
	for i := 1; i <= 2; i++ {
		adm, err := g.Admit(ctx, raw)
		require.NoError(t, err, "request %d", i)
		g.Complete(ctx, adm)
	}
	count, _ := tracker.Count(ctx, "t_1", period)
	require.EqualValues(t, 2, count)

	// Request 3 inside the window: throttled, independent of quota.
	_, err = g.Admit(ctx, raw)
	var throttled *ThrottledError
	require.ErrorAs(t, err, &throttled)
	assert.GreaterOrEqual(t, throttled.RetryAfter, 1)
	count, _ = tracker.Count(ctx, "t_1", period)
	assert.EqualValues(t, 2, count, "a throttled request is not charged")

	// After the window rolls over, request 3 is admitted.
	time.Sleep(1100 * time.Millisecond)
	adm, err := g.Admit(ctx, raw)
	require.NoError(t, err)
	assert.EqualValues(t, 0, adm.Remaining)
	g.Complete(ctx, adm)

	// Request 4: quota exceeded regardless of rate-window state.
	time.Sleep(1100 * time.Millisecond)
	_, err = g.Admit(ctx, raw)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestRevokedMidMonthKeepsUsageHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	raw, key, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)

	tracker := usage.NewMemoryTracker()
	g := newGate(t, f, tracker, "static-key")

	for i := 0; i < 5; i++ {
		adm, err := g.Admit(ctx, raw)
		require.NoError(t, err)
		g.Complete(ctx, adm)
	}

	require.NoError(t, f.repo.Revoke(ctx, key.ID, "t_1"))

	_, err = g.Admit(ctx, raw)
	assert.ErrorIs(t, err, ErrUnauthorized)

	count, _ := tracker.Count(ctx, "t_1", usage.CurrentPeriod(time.Now()))
	assert.EqualValues(t, 5, count, "revocation does not erase recorded usage")
}

func TestUnmeteredContextsSkipQuota(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tracker := usage.NewMemoryTracker()
	g := newGate(t, f, tracker, "static-key")

	adm, err := g.Admit(ctx, "static-key")
	require.NoError(t, err)
	assert.Equal(t, SourceEnvFallback, adm.Source)
	assert.Equal(t, usage.Unbounded, adm.Remaining)
	g.Complete(ctx, adm)

	hist, _ := tracker.History(ctx, "", 10)
	assert.Empty(t, hist, "tenant-less contexts have no usage records")
}

func TestConcurrentAdmissionAtQuotaBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tenants.SeedPlan(tenant.Plan{
		ID: "tiny", Name: "Tiny", RateLimit: "1000/second", MonthlyQuota: 10,
	})
	tn, _ := f.tenants.Get(ctx, "t_1")
	tn.PlanID = "tiny"
	require.NoError(t, f.tenants.Update(ctx, tn))

	raw, _, err := f.repo.Generate(ctx, "t_1", "default")
	require.NoError(t, err)

	tracker := usage.NewMemoryTracker()
	g := newGate(t, f, tracker, "static-key")

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, quotaRejected := 0, 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			adm, err := g.Admit(ctx, raw)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				g.Complete(ctx, adm)
				admitted++
			case errors.Is(err, ErrQuotaExceeded):
				quotaRejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, admitted)
	assert.Equal(t, 30, quotaRejected)

	count, _ := tracker.Count(ctx, "t_1", usage.CurrentPeriod(time.Now()))
	assert.EqualValues(t, 10, count)
}
