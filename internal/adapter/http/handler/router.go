package handler

import (
	"fx-liquidity-engine/internal/adapter/http/middleware"
	redisStore "fx-liquidity-engine/internal/adapter/storage/redis"
	"fx-liquidity-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	TransferSvc    ports.TransferService
	RateSvc        ports.RateService
	QuoteSvc       ports.QuoteService
	ReportingSvc   ports.ReportingService
	Rebalancer     ports.RebalanceRunner
	AuthSvc        ports.AuthService
	TokenSvc       ports.TokenService
	AuditSvc       ports.AuditService         // nil = audit logging disabled
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	OpenAPISpec    []byte
	CORSOrigins    []string
	Mode           string // gin mode; empty means release
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	mode := deps.Mode
	if mode == "" {
		mode = gin.ReleaseMode
	}
	gin.SetMode(mode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.CORS(deps.CORSOrigins))
	r.Use(middleware.MaxBodySize(maxBodyBytes))

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	docs := NewDocsHandler(deps.OpenAPISpec)
	swagger := r.Group("/swagger")
	{
		swagger.GET("", docs.UI)
		swagger.GET("/spec", docs.Spec)
	}

	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	v1.POST("/auth/token", rl("auth_token"), authHandler.IssueToken)

	transferHandler := NewTransferHandler(deps.TransferSvc)
	transfers := v1.Group("/transfers")
	{
		transfers.POST("", rl("transfers"), transferHandler.Initiate)
		transfers.GET("/:id", rl("read"), transferHandler.Get)
	}

	rateHandler := NewRateHandler(deps.RateSvc, deps.QuoteSvc)
	v1.GET("/rates/latest", rl("read"), rateHandler.Latest)
	v1.GET("/quotes", rl("read"), rateHandler.Quote)

	// --- Operator routes (JWT) ---
	operator := v1.Group("", middleware.JWTAuth(deps.TokenSvc, ports.RoleOperator, deps.Logger))
	adminHandler := NewAdminHandler(deps.ReportingSvc, deps.Rebalancer)
	{
		operator.POST("/rates", rl("rates"), rateHandler.UpdateRate)
		operator.GET("/currencies", rl("read"), adminHandler.Currencies)
		operator.GET("/revenue", rl("read"), adminHandler.Revenue)
		operator.POST("/admin/rebalance", rl("admin"), adminHandler.Rebalance)
	}

	return r
}
