package gate

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAPIKey is the request header carrying the API key secret.
	HeaderAPIKey = "X-API-Key"

	// ContextKeyAdmission is the gin context key holding the *Admission.
	ContextKeyAdmission = "gateAdmission"
)

// Middleware gates a route group behind the full admission pipeline.
// Public endpoints simply do not use it.
//
// The handler chain runs only after ADMIT; once it returns, the quota
// reservation is confirmed or rolled back depending on outcome. A request
// cancelled before the handler finished is treated as a failure — the
// tenant is charged only for charts actually produced.
func Middleware(g *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		adm, err := g.Admit(c.Request.Context(), c.GetHeader(HeaderAPIKey))
		if err != nil {
			Reject(c, err)
			return
		}
		c.Set(ContextKeyAdmission, adm)

		c.Next()

		if c.Request.Context().Err() != nil || c.Writer.Status() >= 400 || len(c.Errors) > 0 {
			g.Abort(c.Request.Context(), adm)
			return
		}
		g.Complete(c.Request.Context(), adm)
	}
}

// GetAdmission returns the admission stored by Middleware.
func GetAdmission(c *gin.Context) (*Admission, bool) {
	v, ok := c.Get(ContextKeyAdmission)
	if !ok {
		return nil, false
	}
	adm, ok := v.(*Admission)
	return adm, ok
}

// Reject writes the HTTP response for a gate rejection. Every taxonomy
// error maps deterministically to one status and machine-readable code.
func Reject(c *gin.Context, err error) {
	var throttled *ThrottledError
	var storage *StorageError

	switch {
	case errors.As(err, &throttled):
		c.Header("Retry-After", strconv.Itoa(throttled.RetryAfter))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":      "rate_limit_exceeded",
			"message":    "Too many requests. Retry after the indicated delay.",
			"retryAfter": throttled.RetryAfter,
		})
	case errors.Is(err, ErrQuotaExceeded):
		// Also 429, but deliberately without Retry-After: the condition
		// holds until the next billing period and must not be busy-retried.
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":   "quota_exceeded",
			"message": "Monthly chart quota exhausted for this billing period.",
		})
	case errors.Is(err, ErrTenantSuspended):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":   "tenant_suspended",
			"message": "This account is suspended. Contact support.",
		})
	case errors.As(err, &storage):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Temporary backend failure. Try again shortly.",
		})
	default:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "Missing or invalid API key. Provide the X-API-Key header.",
		})
	}
}
