package gate

import (
	"errors"
	"fmt"
)

// Rejection taxonomy. Every failure of the admission pipeline maps to
// exactly one of these; the gate never downgrades one reason into another.
var (
	// ErrUnauthorized: no credential, or the credential matches nothing
	// while static keys are configured.
	ErrUnauthorized = errors.New("gate: unauthorized")

	// ErrTenantSuspended: the key matched but the owning tenant is
	// suspended. Administrative, independent of rate or quota state.
	ErrTenantSuspended = errors.New("gate: tenant suspended")

	// ErrQuotaExceeded: the tenant's monthly allotment is spent. Not
	// retryable until the next billing period.
	ErrQuotaExceeded = errors.New("gate: monthly quota exceeded")
)

// ThrottledError is a transient rate-limit rejection. The caller should
// retry after the given number of seconds.
type ThrottledError struct {
	RetryAfter int
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("gate: rate limit exceeded, retry after %ds", e.RetryAfter)
}

// StorageError wraps a durable-store failure. It is the only 5xx-class
// condition in the gate: admission fails closed, but the reason is surfaced
// distinctly from Unauthorized so an outage is never mistaken for a bad key.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("gate: storage unavailable during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
