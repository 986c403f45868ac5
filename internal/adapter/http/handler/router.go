package handler

import (
	"delivery-settlement/internal/adapter/http/middleware"
	redisStore "delivery-settlement/internal/adapter/storage/redis"
	"delivery-settlement/internal/core/domain"
	"delivery-settlement/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	OrderSvc       ports.OrderService
	AssignSvc      ports.AssignmentService
	SettlementSvc  ports.SettlementService
	ReportingSvc   ports.ReportingService
	LedgerSvc      ports.LedgerService
	EventSvc       ports.PaymentEventService
	PushTokens     ports.PushTokenStore
	TokenSvc       ports.TokenService
	SigSvc         ports.SignatureService
	WebhookSecret  string
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = audit logging disabled
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.HealthCheckers...))

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

	// --- Processor callbacks (HMAC signed, no JWT) ---
	webhookHandler := NewWebhookHandler(deps.EventSvc)
	v1.POST("/webhooks/payments",
		rl("webhooks"),
		middleware.WebhookSignature(deps.WebhookSecret, deps.SigSvc, deps.Logger),
		webhookHandler.Receive,
	)

	// --- JWT-authenticated routes ---
	authed := v1.Group("", middleware.JWTAuth(deps.TokenSvc, deps.Logger))
	admin := middleware.RequireRole(domain.RoleAdmin)
	driver := middleware.RequireRole(domain.RoleDriver)

	orderHandler := NewOrderHandler(deps.OrderSvc)
	orders := authed.Group("/orders")
	{
		orders.POST("", rl("orders_create"), orderHandler.Create)
		orders.GET("/:id", rl("orders"), orderHandler.Get)
		orders.GET("/:id/events", rl("orders"), orderHandler.Events)
		orders.POST("/:id/accept", rl("orders"), orderHandler.Accept)
		orders.POST("/:id/prepare", rl("orders"), orderHandler.Prepare)
		orders.POST("/:id/ready", rl("orders"), orderHandler.Ready)
		orders.POST("/:id/assign", rl("orders"), orderHandler.Assign)
		orders.POST("/:id/auto-assign", rl("admin"), admin, orderHandler.AutoAssign)
		orders.POST("/:id/pickup", rl("orders"), orderHandler.PickUp)
		orders.POST("/:id/deliver", rl("orders"), orderHandler.Deliver)
		orders.POST("/:id/cancel", rl("orders"), orderHandler.Cancel)
		orders.POST("/:id/regret-cancel", rl("orders"), orderHandler.RegretCancel)
	}

	driverHandler := NewDriverHandler(deps.AssignSvc, deps.PushTokens)
	drivers := authed.Group("/drivers")
	{
		drivers.GET("/rank", rl("admin"), admin, driverHandler.Rank)
		drivers.PUT("/me/location", rl("location"), driver, driverHandler.UpdateLocation)
	}
	authed.PUT("/push-tokens", rl("orders"), driverHandler.RegisterPushToken)
	authed.DELETE("/push-tokens", rl("orders"), driverHandler.RemovePushToken)

	settlementHandler := NewSettlementHandler(deps.SettlementSvc)
	settlements := authed.Group("/settlements")
	{
		settlements.GET("", rl("settlements"), settlementHandler.List)
		settlements.GET("/:id", rl("settlements"), settlementHandler.Get)
		settlements.POST("/:id/proof", rl("settlements"), driver, settlementHandler.SubmitProof)
		settlements.POST("/:id/approve", rl("admin"), admin, settlementHandler.Approve)
		settlements.POST("/:id/reject", rl("admin"), admin, settlementHandler.Reject)
	}

	walletHandler := NewWalletHandler(deps.ReportingSvc, deps.LedgerSvc)
	wallets := authed.Group("/wallets")
	{
		wallets.GET("/me", rl("wallets"), walletHandler.GetOwn)
		wallets.GET("/:id", rl("wallets"), walletHandler.Get)
		wallets.GET("/:id/transactions", rl("wallets"), walletHandler.ListTransactions)
	}

	adminGroup := authed.Group("/admin", rl("admin"), admin)
	{
		adminGroup.POST("/settlements/close-week", settlementHandler.CloseWeek)
		adminGroup.POST("/settlements/block-overdue", settlementHandler.BlockOverdue)
		adminGroup.POST("/wallets/:id/adjustments", walletHandler.Adjust)
		adminGroup.POST("/wallets/:id/reconcile", walletHandler.Reconcile)
	}

	return r
}
