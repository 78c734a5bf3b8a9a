package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chartgate/chartgate/internal/config"
	"github.com/chartgate/chartgate/internal/gate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal in-memory config for testing.
func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		Env:             "development",
		LogLevel:        "error",
		FallbackAPIKeys: []string{"static-test-key"},
		JWTSecret:       "test-secret",
		TokenTTLHours:   1,
		RateLimit:       "60/minute",
		AdminSecret:     "admin-secret",
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.limiter.Stop() })
	return s
}

func (s *Server) do(method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthAndInfoEndpoints(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodGet, "/v1/auth", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), gate.HeaderAPIKey)

	w = s.do(http.MethodGet, "/v1/plans", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"free"`)
	assert.Contains(t, w.Body.String(), `"id":"enterprise"`)

	w = s.do(http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodGet, "/healthz", nil, nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = s.do(http.MethodGet, "/healthz", map[string]string{"X-Request-ID": "upstream-1"}, nil)
	assert.Equal(t, "upstream-1", w.Header().Get("X-Request-ID"))
}

// Full journey: register → login → chart request with the issued key.
func TestEndToEndChartFlow(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodPost, "/v1/account/register", nil, gin.H{
		"name":     "Acme",
		"email":    "ops@acme.test",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reg struct {
		TenantID string `json:"tenantId"`
		APIKey   string `json:"apiKey"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	require.NotEmpty(t, reg.APIKey)

	chartReq := gin.H{
		"type":   "line",
		"title":  "Signups",
		"series": []gin.H{{"name": "signups", "values": []float64{3, 1, 4}}},
	}
	w = s.do(http.MethodPost, "/v1/charts", map[string]string{gate.HeaderAPIKey: reg.APIKey}, chartReq)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"type":"line"`)

	// The request was charged against the tenant's quota.
	w = s.do(http.MethodPost, "/v1/account/login", nil, gin.H{
		"email":    "ops@acme.test",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))

	w = s.do(http.MethodGet, "/v1/account/usage", map[string]string{"Authorization": "Bearer " + login.Token}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"requestCount":1`)

	// A malformed chart request is rejected and not charged.
	w = s.do(http.MethodPost, "/v1/charts", map[string]string{gate.HeaderAPIKey: reg.APIKey}, gin.H{
		"type":   "hologram",
		"series": []gin.H{{"values": []float64{1}}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/v1/account/usage", map[string]string{"Authorization": "Bearer " + login.Token}, nil)
	assert.Contains(t, w.Body.String(), `"requestCount":1`)
}

func TestChartRequiresKeyWhenKeysConfigured(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodPost, "/v1/charts", nil, gin.H{
		"type":   "bar",
		"series": []gin.H{{"values": []float64{1}}},
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "unauthorized")
}

func TestFallbackKeyAdmitsWithoutTenant(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodPost, "/v1/charts", map[string]string{gate.HeaderAPIKey: "static-test-key"}, gin.H{
		"type":   "pie",
		"series": []gin.H{{"values": []float64{1, 2}}},
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestDevModeWithNoStaticKeys(t *testing.T) {
	cfg := testConfig()
	cfg.FallbackAPIKeys = nil
	s := newTestServer(t, cfg)

	w := s.do(http.MethodPost, "/v1/charts", nil, gin.H{
		"type":   "scatter",
		"series": []gin.H{{"values": []float64{5}}},
	})
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestAdminGuard(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodGet, "/v1/admin/tenants", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/v1/admin/tenants", map[string]string{"X-Admin-Secret": "admin-secret"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminSuspensionBlocksCharts(t *testing.T) {
	s := newTestServer(t, testConfig())

	w := s.do(http.MethodPost, "/v1/account/register", nil, gin.H{
		"name":     "Acme",
		"email":    "ops@acme.test",
		"password": "hunter2hunter2",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var reg struct {
		TenantID string `json:"tenantId"`
		APIKey   string `json:"apiKey"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))

	w = s.do(http.MethodPatch, "/v1/admin/tenants/"+reg.TenantID,
		map[string]string{"X-Admin-Secret": "admin-secret"},
		gin.H{"status": "suspended"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/v1/charts", map[string]string{gate.HeaderAPIKey: reg.APIKey}, gin.H{
		"type":   "line",
		"series": []gin.H{{"values": []float64{1}}},
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "tenant_suspended")
}

func TestSecurityHeadersPresent(t *testing.T) {
	s := newTestServer(t, testConfig())
	w := s.do(http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}
