// Package validation provides input validation middleware for the Chartgate API.
package validation

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB). Chart payloads are
// data series, not images; anything larger is abuse.
const MaxRequestSize = 1 << 20

// MaxNameLength bounds user-supplied display names (tenant names, key names,
// chart titles).
const MaxNameLength = 200

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeName trims, bounds, and strips null bytes from a user-supplied
// display name.
func SanitizeName(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > MaxNameLength {
		s = s[:MaxNameLength]
	}
	return strings.ReplaceAll(s, "\x00", "")
}
