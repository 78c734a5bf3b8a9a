// Package server sets up the HTTP server with all routes.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/chartgate/chartgate/internal/account"
	"github.com/chartgate/chartgate/internal/admin"
	"github.com/chartgate/chartgate/internal/apikey"
	"github.com/chartgate/chartgate/internal/charts"
	"github.com/chartgate/chartgate/internal/config"
	"github.com/chartgate/chartgate/internal/gate"
	"github.com/chartgate/chartgate/internal/health"
	"github.com/chartgate/chartgate/internal/idgen"
	"github.com/chartgate/chartgate/internal/logging"
	"github.com/chartgate/chartgate/internal/metrics"
	"github.com/chartgate/chartgate/internal/ratelimit"
	"github.com/chartgate/chartgate/internal/security"
	"github.com/chartgate/chartgate/internal/tenant"
	"github.com/chartgate/chartgate/internal/token"
	"github.com/chartgate/chartgate/internal/traces"
	"github.com/chartgate/chartgate/internal/usage"
	"github.com/chartgate/chartgate/internal/validation"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg     *config.Config
	tenants tenant.Store
	keys    *apikey.Repository
	tracker usage.Tracker
	limiter *ratelimit.Limiter
	gate    *gate.Gate
	issuer  *token.Issuer
	charts  charts.Service
	health  *health.Registry

	db      *sql.DB // nil if using in-memory
	usageDB *sql.DB // nil if shared with db or in-memory

	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	tracesClose  func(context.Context) error
	cancelRunCtx context.CancelFunc

	ready atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithChartService sets a custom chart backend (for testing).
func WithChartService(svc charts.Service) Option {
	return func(s *Server) {
		s.charts = svc
	}
}

// New creates a new server instance.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()
	s.health = health.NewRegistry()

	// Storage: Postgres if DATABASE_URL is set, otherwise in-memory.
	if cfg.DatabaseURL != "" {
		db, err := openDB(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.tenants = tenant.NewPostgresStore(db)
		s.keys = apikey.NewRepository(apikey.NewPostgresStore(db), s.tenants)
		s.health.RegisterDB("main_db", db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		// Usage may live on its own database so quota writes do not
		// contend with credential reads.
		if cfg.UsageDatabaseURL != "" && cfg.UsageDatabaseURL != cfg.DatabaseURL {
			udb, err := openDB(cfg.UsageDatabaseURL)
			if err != nil {
				_ = db.Close()
				return nil, err
			}
			s.usageDB = udb
			s.tracker = usage.NewPostgresTracker(udb)
			s.health.RegisterDB("usage_db", udb)
			s.logger.Info("using separate usage database", "url", maskDSN(cfg.UsageDatabaseURL))
		} else {
			s.tracker = usage.NewPostgresTracker(db)
		}
	} else {
		s.tenants = tenant.NewMemoryStore()
		s.keys = apikey.NewRepository(apikey.NewMemoryStore(), s.tenants)
		s.tracker = usage.NewMemoryTracker()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Session token issuer. Without a configured secret (development only,
	// Validate rejects this in production) a random one is generated per
	// boot, invalidating tokens across restarts.
	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = idgen.Hex(32)
		s.logger.Warn("JWT_SECRET not set, using ephemeral signing secret")
	}
	s.issuer = token.NewIssuer(jwtSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)

	// Admission pipeline.
	defaultSpec, err := ratelimit.ParseSpec(cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT %q: %w", cfg.RateLimit, err)
	}
	resolver := gate.NewResolver(s.keys, gate.Config{
		FallbackKeys:     cfg.FallbackAPIKeys,
		DefaultRateLimit: defaultSpec,
	})
	s.limiter = ratelimit.New()
	s.gate = gate.New(resolver, s.limiter, s.tracker, s.logger)

	if len(cfg.FallbackAPIKeys) == 0 && cfg.DatabaseURL == "" {
		s.logger.Warn("no API_KEYS configured, running in dev mode: all requests admitted")
	}

	if s.charts == nil {
		s.charts = charts.NewRenderer()
	}

	// Tracing.
	shutdown, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.tracesClose = shutdown

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return db, nil
}

// maskDSN hides the password in a connection string for logging.
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Honor an existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.health.Liveness)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")

	// Public info endpoints
	v1.GET("/auth", s.authInfoHandler)
	v1.GET("/plans", s.plansHandler)

	// Chart generation, behind the full admission pipeline
	chartHandler := charts.NewHandler(s.charts)
	v1.POST("/charts", gate.Middleware(s.gate), chartHandler.Create)

	// Account self-service
	accountSvc := account.NewService(s.tenants, s.keys, s.issuer, s.tracker, s.logger)
	accountHandler := account.NewHandler(accountSvc)
	acct := v1.Group("/account")
	acct.POST("/register", accountHandler.Register)
	acct.POST("/login", accountHandler.Login)
	authed := acct.Group("", account.RequireToken(s.issuer))
	authed.GET("/me", accountHandler.Me)
	authed.GET("/keys", accountHandler.ListKeys)
	authed.POST("/keys", accountHandler.CreateKey)
	authed.DELETE("/keys/:keyId", accountHandler.RevokeKey)
	authed.GET("/usage", accountHandler.Usage)

	// Operator endpoints
	guarded := v1.Group("", admin.RequireSecret(s.cfg.AdminSecret))
	admin.NewHandler(s.tenants, s.tracker).RegisterRoutes(guarded)
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	s.health.Readiness(c)
}

func (s *Server) authInfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"type":   "api_key",
		"header": gate.HeaderAPIKey + ": ck_...",
		"note":   "API keys are issued at registration and via POST /v1/account/keys.",
		"publicEndpoints": []string{
			"GET /v1/auth",
			"GET /v1/plans",
			"POST /v1/account/register",
			"POST /v1/account/login",
		},
		"protectedEndpoints": []string{
			"POST /v1/charts",
			"GET /v1/account/me",
			"GET /v1/account/keys",
			"GET /v1/account/usage",
		},
	})
}

func (s *Server) plansHandler(c *gin.Context) {
	plans := make([]tenant.Plan, 0, len(tenant.DefaultPlans))
	for _, p := range tenant.DefaultPlans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool {
		return plans[i].MonthlyQuota < plans[j].MonthlyQuota
	})
	c.JSON(http.StatusOK, gin.H{"plans": plans})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.limiter != nil {
		s.limiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	if s.tracesClose != nil {
		if err := s.tracesClose(ctx); err != nil {
			s.logger.Error("trace flush error", "error", err)
		}
	}

	if s.usageDB != nil {
		if err := s.usageDB.Close(); err != nil {
			s.logger.Error("usage database close error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
