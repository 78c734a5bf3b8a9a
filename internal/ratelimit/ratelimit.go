// Package ratelimit enforces short-window request-rate ceilings per resolved
// identity.
//
// State is purely in-memory and resets on restart: the limiter protects
// against bursts, while long-term accounting belongs to the usage tracker.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int // requests left in the current window, 0 when throttled
	RetryAfter int // whole seconds until the next slot opens, 0 when allowed
}

// Limiter tracks fixed-window counters keyed by identity. Each entry locks
// independently, so contention stays per-key rather than serializing
// unrelated tenants.
type Limiter struct {
	entries sync.Map // identity → *entry
	stop    chan struct{}
	stopped sync.Once
	now     func() time.Time
}

type entry struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// New creates a limiter and starts its background sweep of idle entries.
func New() *Limiter {
	l := &Limiter{
		stop: make(chan struct{}),
		now:  time.Now,
	}
	go l.sweepLoop()
	return l
}

// Allow checks whether a request for the given identity fits within spec.
// The spec is evaluated per call, so a plan change applies to the very next
// request. An unlimited spec always admits.
func (l *Limiter) Allow(identity string, spec Spec) Decision {
	if spec.Unlimited() {
		return Decision{Allowed: true, Remaining: math.MaxInt32}
	}

	v, _ := l.entries.LoadOrStore(identity, &entry{})
	e := v.(*entry)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := l.now()
	if e.windowStart.IsZero() || now.Sub(e.windowStart) >= spec.Window {
		e.windowStart = now
		e.count = 0
	}

	if e.count >= spec.Limit {
		wait := e.windowStart.Add(spec.Window).Sub(now)
		retry := int(math.Ceil(wait.Seconds()))
		if retry < 1 {
			retry = 1
		}
		return Decision{RetryAfter: retry}
	}

	e.count++
	return Decision{Allowed: true, Remaining: spec.Limit - e.count}
}

// Stop terminates the background sweep goroutine.
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.stop) })
}

const sweepInterval = time.Minute

// sweepLoop drops entries idle for more than an hour. An hour covers the
// largest window unit, so a counter is never dropped mid-window.
func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cutoff := l.now().Add(-time.Hour)
			l.entries.Range(func(key, v any) bool {
				e := v.(*entry)
				e.mu.Lock()
				idle := e.windowStart.Before(cutoff)
				e.mu.Unlock()
				if idle {
					l.entries.Delete(key)
				}
				return true
			})
		case <-l.stop:
			return
		}
	}
}
