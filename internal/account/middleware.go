package account

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/chartgate/chartgate/internal/token"
)

// ContextKeyTenantID is the gin context key holding the authenticated
// tenant ID.
const ContextKeyTenantID = "accountTenantID"

// RequireToken authenticates requests with a Bearer session token.
// Expired tokens get a distinct error code so clients know to log in again
// rather than treat the token as corrupt.
func RequireToken(issuer *token.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "Provide an Authorization: Bearer token from /v1/account/login.",
			})
			return
		}

		tenantID, err := issuer.Verify(raw)
		if err != nil {
			code := "invalid_token"
			if errors.Is(err, token.ErrExpiredToken) {
				code = "expired_token"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   code,
				"message": "Session token rejected. Log in again.",
			})
			return
		}

		c.Set(ContextKeyTenantID, tenantID)
		c.Next()
	}
}

// TenantID returns the tenant ID stored by RequireToken.
func TenantID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextKeyTenantID)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
