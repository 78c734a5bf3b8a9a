package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	assert.True(t, healthy, "empty registry should be healthy")
	assert.Empty(t, statuses)
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("main_db", func(_ context.Context) Status {
		return Status{Name: "main_db", Healthy: true}
	})
	r.Register("usage_db", func(_ context.Context) Status {
		return Status{Name: "usage_db", Healthy: false, Detail: "connection refused"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	assert.False(t, healthy)
	assert.Len(t, statuses, 2)
	assert.Equal(t, "connection refused", statuses[1].Detail)
}

func TestRegistryIgnoresNilChecker(t *testing.T) {
	r := NewRegistry()
	r.Register("noop", nil)
	_, statuses := r.CheckAll(context.Background())
	assert.Empty(t, statuses)
}

func TestRegistryConcurrentRegisterAndCheck(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Register("checker", func(_ context.Context) Status {
				return Status{Name: "checker", Healthy: true}
			})
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.CheckAll(context.Background())
		}()
	}
	wg.Wait()
}

func TestReadinessEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)

	reg := NewRegistry()
	router := gin.New()
	router.GET("/healthz", reg.Liveness)
	router.GET("/readyz", reg.Readiness)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	reg.Register("main_db", func(_ context.Context) Status {
		return Status{Name: "main_db", Healthy: false, Detail: "down"}
	})

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "degraded")

	// Liveness never depends on subsystem state.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
