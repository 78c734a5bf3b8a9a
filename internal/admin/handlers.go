package admin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chartgate/chartgate/internal/tenant"
	"github.com/chartgate/chartgate/internal/usage"
)

// Handler provides admin HTTP endpoints.
type Handler struct {
	tenants tenant.Store
	usage   usage.Tracker
}

// NewHandler creates a new admin handler.
func NewHandler(tenants tenant.Store, tracker usage.Tracker) *Handler {
	return &Handler{tenants: tenants, usage: tracker}
}

// RegisterRoutes sets up admin routes on an already-guarded group.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/admin/tenants", h.listTenants)
	r.GET("/admin/tenants/:id", h.getTenant)
	r.PATCH("/admin/tenants/:id", h.updateTenant)
	r.GET("/admin/tenants/:id/usage", h.tenantUsage)
}

func (h *Handler) listTenants(c *gin.Context) {
	tenants, err := h.tenants.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	out := make([]gin.H, len(tenants))
	for i, t := range tenants {
		out[i] = gin.H{
			"id":        t.ID,
			"name":      t.Name,
			"email":     t.Email,
			"plan":      t.PlanID,
			"status":    string(t.Status),
			"createdAt": t.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"tenants": out,
		"count":   len(out),
	})
}

func (h *Handler) getTenant(c *gin.Context) {
	t, err := h.tenants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant_not_found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":        t.ID,
		"name":      t.Name,
		"email":     t.Email,
		"plan":      t.PlanID,
		"status":    string(t.Status),
		"createdAt": t.CreatedAt,
		"updatedAt": t.UpdatedAt,
	})
}

// UpdateTenantRequest is the request body for plan/status changes.
// Both fields are optional; omitted fields are left unchanged.
type UpdateTenantRequest struct {
	Plan   string `json:"plan"`
	Status string `json:"status"`
}

func (h *Handler) updateTenant(c *gin.Context) {
	var req UpdateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	t, err := h.tenants.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant_not_found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	if req.Plan != "" {
		if _, err := h.tenants.GetPlan(c.Request.Context(), req.Plan); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "unknown_plan",
				"message": "Unknown plan: " + req.Plan,
			})
			return
		}
		t.PlanID = req.Plan
	}

	switch req.Status {
	case "":
	case string(tenant.StatusActive):
		t.Status = tenant.StatusActive
	case string(tenant.StatusSuspended):
		t.Status = tenant.StatusSuspended
	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": "Status must be active or suspended.",
		})
		return
	}

	t.UpdatedAt = time.Now().UTC()
	if err := h.tenants.Update(c.Request.Context(), t); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	// Plan and status changes take effect on the tenant's next request;
	// nothing is cached per-credential.
	c.JSON(http.StatusOK, gin.H{
		"id":     t.ID,
		"plan":   t.PlanID,
		"status": string(t.Status),
	})
}

func (h *Handler) tenantUsage(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.tenants.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, tenant.ErrTenantNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "tenant_not_found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	limit := 12
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 120 {
			limit = n
		}
	}

	history, err := h.usage.History(c.Request.Context(), id, limit)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	period := usage.CurrentPeriod(time.Now())
	count, err := h.usage.Count(c.Request.Context(), id, period)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage_unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tenantId":     id,
		"period":       string(period),
		"requestCount": count,
		"history":      history,
	})
}
