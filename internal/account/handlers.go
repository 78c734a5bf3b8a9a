package account

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chartgate/chartgate/internal/metrics"
	"github.com/chartgate/chartgate/internal/tenant"
)

// Handler provides HTTP endpoints for account management.
type Handler struct {
	service *Service
}

// NewHandler creates a new account handler.
func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Plan     string `json:"plan"`
}

// Register creates a tenant and returns its first API key.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	t, rawKey, err := h.service.Register(c.Request.Context(), req.Name, req.Email, req.Password, req.Plan)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "email_taken",
				"message": "An account with this email already exists.",
			})
		case errors.Is(err, tenant.ErrPlanNotFound):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_plan",
				"message": "Unknown plan: " + req.Plan,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		}
		return
	}

	resp := gin.H{
		"tenantId": t.ID,
		"name":     t.Name,
		"email":    t.Email,
		"plan":     t.PlanID,
	}
	if rawKey != "" {
		resp["apiKey"] = rawKey
		resp["warning"] = "Store this key securely. It will not be shown again."
	}
	c.JSON(http.StatusCreated, resp)
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies credentials and returns a session token.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	tok, t, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "bad_credentials",
				"message": "Invalid email or password.",
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	metrics.TokensIssued.Inc()
	c.JSON(http.StatusOK, gin.H{
		"token":    tok,
		"tenantId": t.ID,
		"status":   string(t.Status),
	})
}

// Me returns the authenticated tenant's profile and plan.
func (h *Handler) Me(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	t, p, err := h.service.Get(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant_not_found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenantId":  t.ID,
		"name":      t.Name,
		"email":     t.Email,
		"status":    string(t.Status),
		"createdAt": t.CreatedAt,
		"plan": gin.H{
			"id":           p.ID,
			"name":         p.Name,
			"rateLimit":    p.RateLimit,
			"monthlyQuota": p.MonthlyQuota,
		},
	})
}

// ListKeys returns the tenant's API keys, revoked ones included. Only
// metadata is exposed, never hashes or raw secrets.
func (h *Handler) ListKeys(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	keys, err := h.service.keys.List(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	out := make([]gin.H, len(keys))
	for i, k := range keys {
		out[i] = gin.H{
			"id":        k.ID,
			"name":      k.Name,
			"keyPrefix": k.KeyPrefix,
			"createdAt": k.CreatedAt,
			"revoked":   k.Revoked(),
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"keys":  out,
		"count": len(out),
	})
}

// CreateKeyRequest is the request body for creating a key.
type CreateKeyRequest struct {
	Name string `json:"name"`
}

// CreateKey issues a new API key for the tenant.
func (h *Handler) CreateKey(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req CreateKeyRequest
	c.ShouldBindJSON(&req)
	if req.Name == "" {
		req.Name = "Additional key"
	}

	rawKey, key, err := h.service.keys.Generate(c.Request.Context(), tenantID, req.Name)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"apiKey":    rawKey,
		"keyId":     key.ID,
		"keyPrefix": key.KeyPrefix,
		"name":      key.Name,
		"warning":   "Store this key securely. It will not be shown again.",
	})
}

// RevokeKey revokes one of the tenant's API keys. Revocation takes effect
// on the next chart request; usage already recorded is kept.
func (h *Handler) RevokeKey(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	keyID := c.Param("keyId")
	if err := h.service.keys.Revoke(c.Request.Context(), keyID, tenantID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "key_not_found",
			"message": "Key not found or already revoked",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Key revoked",
		"keyId":   keyID,
	})
}

// Usage returns the current billing period counter and recent history.
func (h *Handler) Usage(c *gin.Context) {
	tenantID, ok := TenantID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	current, history, err := h.service.Usage(c.Request.Context(), tenantID, 12)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	_, plan, err := h.service.Get(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	remaining := plan.MonthlyQuota - current.Count
	if plan.Unlimited() {
		remaining = -1
	} else if remaining < 0 {
		remaining = 0
	}

	c.JSON(http.StatusOK, gin.H{
		"period":       string(current.Period),
		"requestCount": current.Count,
		"monthlyQuota": plan.MonthlyQuota,
		"remaining":    remaining,
		"history":      history,
	})
}
