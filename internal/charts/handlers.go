package charts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chartgate/chartgate/internal/gate"
	"github.com/chartgate/chartgate/internal/traces"
)

// Handler serves the gated chart endpoint.
type Handler struct {
	service Service
}

// NewHandler creates a chart handler.
func NewHandler(s Service) *Handler {
	return &Handler{service: s}
}

// Create handles POST /v1/charts. The route must sit behind gate.Middleware:
// a 4xx/5xx response here makes the middleware roll back the quota
// reservation, so validation failures never consume quota.
func (h *Handler) Create(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": err.Error(),
		})
		return
	}

	tenantID := ""
	if adm, ok := gate.GetAdmission(c); ok {
		tenantID = adm.TenantID
	}

	ctx, span := traces.StartSpan(c.Request.Context(), "charts.create",
		traces.TenantID(tenantID),
		traces.ChartType(req.Type),
	)
	defer span.End()

	result, err := h.service.Create(ctx, tenantID, req)
	if err != nil {
		if errors.Is(err, ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "Unsupported chart type or malformed series data.",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render_failed"})
		return
	}

	c.JSON(http.StatusCreated, result)
}
