// Package charts defines the chart-generation boundary behind the gate.
//
// The rendering pipeline is pluggable; the platform only cares that each
// admitted request maps to exactly one Create call, whose success or
// failure decides whether the tenant is charged.
package charts

import (
	"context"
	"errors"
	"time"

	"github.com/chartgate/chartgate/internal/idgen"
)

// Errors
var (
	ErrInvalidRequest = errors.New("charts: invalid chart request")
)

// Supported chart types.
var chartTypes = map[string]bool{
	"line":    true,
	"bar":     true,
	"pie":     true,
	"scatter": true,
	"area":    true,
}

// Series is one named data series.
type Series struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values" binding:"required"`
}

// Request describes a chart to generate.
type Request struct {
	Type   string   `json:"type" binding:"required"`
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
	Series []Series `json:"series" binding:"required"`
}

// Validate checks structural constraints the binding tags cannot express.
func (r *Request) Validate() error {
	if !chartTypes[r.Type] {
		return ErrInvalidRequest
	}
	if len(r.Series) == 0 {
		return ErrInvalidRequest
	}
	for _, s := range r.Series {
		if len(s.Values) == 0 {
			return ErrInvalidRequest
		}
		if len(r.Labels) > 0 && len(s.Values) != len(r.Labels) {
			return ErrInvalidRequest
		}
	}
	return nil
}

// Result is a generated chart.
type Result struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title,omitempty"`
	Points    int       `json:"points"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service generates charts for admitted requests.
type Service interface {
	Create(ctx context.Context, tenantID string, req Request) (*Result, error)
}

// Renderer is the built-in Service implementation. It validates the
// request and materializes a chart record; actual rasterization happens
// downstream of this boundary.
type Renderer struct {
	now func() time.Time
}

// NewRenderer creates the built-in chart service.
func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

func (r *Renderer) Create(ctx context.Context, tenantID string, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	points := 0
	for _, s := range req.Series {
		points += len(s.Values)
	}

	return &Result{
		ID:        idgen.WithPrefix("ch_"),
		Type:      req.Type,
		Title:     req.Title,
		Points:    points,
		CreatedAt: r.now().UTC(),
	}, nil
}

var _ Service = (*Renderer)(nil)
