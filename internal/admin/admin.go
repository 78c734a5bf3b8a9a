// Package admin provides operator-only endpoints for tenant management:
// plan changes, suspension, and usage inspection.
package admin

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderSecret is the request header carrying the operator secret.
const HeaderSecret = "X-Admin-Secret"

// RequireSecret guards admin routes with a shared operator secret.
// With no secret configured the routes are disabled outright — an open
// admin surface is worse than none.
func RequireSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "admin_disabled",
				"message": "Admin endpoints are disabled. Set ADMIN_SECRET to enable.",
			})
			return
		}
		presented := c.GetHeader(HeaderSecret)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Missing or invalid " + HeaderSecret + " header.",
			})
			return
		}
		c.Next()
	}
}
