package router

import (
	"time"

	"closeout/internal/config"
	"closeout/internal/handler"
	"closeout/internal/infra"
	"closeout/internal/middleware"
	"closeout/internal/repository"
	"closeout/internal/service"
	"closeout/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client, dispatcher *worker.Dispatcher, webhookCB *infra.CircuitBreaker) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories ─────────────────────────────────────────────────────────
	// The session repo fans closes out through the notifier; reconciliation
	// writes bypass it via SaveSilent.
	notifier := worker.NewSessionNotifier(dispatcher, log.With().Str("component", "notifier").Logger())
	sessionRepo := repository.NewSessionRepository(db, notifier)
	chargeRepo := repository.NewChargeRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	eventRepo := repository.NewEventRepository(db)
	storeRepo := repository.NewStoreRepository(db)

	// ── Services ─────────────────────────────────────────────────────────────
	totals := service.NewTotalsRecalculator(service.DrawerCashCalculator{})
	reportGen := service.NewReportGenerator()
	finder := service.NewOrphanFinder(chargeRepo, receiptRepo, eventRepo,
		log.With().Str("component", "orphan_finder").Logger())

	sessionSvc := service.NewSessionService(sessionRepo, storeRepo, totals, reportGen)
	regenSvc := service.NewRegenerationService(sessionRepo, finder, totals, reportGen,
		log.With().Str("component", "regeneration").Logger())

	// ── Handlers ─────────────────────────────────────────────────────────────
	sessionsH := handler.NewSessionsHandler(sessionSvc)
	regenerateH := handler.NewRegenerateHandler(regenSvc, dispatcher)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb, webhookCB))

	// Protected routes
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		// Roles: cashier, supervisor, admin — declared per-endpoint
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", middleware.RequireRole("cashier", "supervisor", "admin"), sessionsH.Open)
			sessions.GET("", middleware.RequireRole("supervisor", "admin"), sessionsH.List)
			sessions.GET("/:id", middleware.RequireRole("supervisor", "admin"), sessionsH.Get)
			sessions.POST("/:id/close", middleware.RequireRole("cashier", "supervisor", "admin"), sessionsH.Close)
			sessions.GET("/:id/report", middleware.RequireRole("supervisor", "admin"), sessionsH.Report)
			// Reconciliation rewrites history — admin only
			sessions.POST("/:id/regenerate", middleware.RequireRole("admin"), regenerateH.Session)
		}

		reports := v1.Group("/reports", middleware.RequireRole("admin"))
		{
			reports.POST("/regenerate", regenerateH.Batch)
			reports.POST("/regenerate/async", regenerateH.BatchAsync)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
