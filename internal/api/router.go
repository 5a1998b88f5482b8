package api

import (
	"time"

	chefHandler "ai-chef/internal/api/handlers/chef"
	"ai-chef/internal/api/handlers/health"
	"ai-chef/internal/api/middleware"
	"ai-chef/internal/core/ai/cache"
	"ai-chef/internal/core/ai/queue"
	"ai-chef/internal/core/ai/quota"
	aiservice "ai-chef/internal/core/ai/service"
	"ai-chef/internal/core/chef"
	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/infrastructure/metrics"
	"ai-chef/internal/pkg/common"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies 路由需要的已初始化服務
type Dependencies struct {
	Config    *config.Config
	Chef      *chef.Service
	Generator *aiservice.Service
	Quotas    *quota.Manager
	Store     cache.Store
	Queue     *queue.Manager
	Metrics   *metrics.Collector
}

// SetupRouter 設置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config

	common.LogInfo("Starting router setup",
		zap.Bool("debug_mode", cfg.App.Debug),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Env),
	)

	// 設置 gin 模式
	if !cfg.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 創建路由引擎
	router := gin.New()

	// 註冊基礎中間件
	router.Use(middleware.Recovery())
	router.Use(requestid.New(requestid.WithGenerator(common.GenerateUUID))) // 自動生成請求 ID
	router.Use(middleware.RequestContext())
	router.Use(middleware.Logger())
	router.Use(deps.Metrics.HTTPMiddleware())

	// CORS 設置
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 請求體大小限制與逾時
	router.Use(middleware.BodySizeLimit(cfg.Server.MaxBodyBytes))
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	var generator chefHandler.GeneratorStatus
	var providers []string
	if deps.Generator != nil {
		generator = deps.Generator
		providers = deps.Generator.Providers()
	}

	// 健康檢查路由
	healthHandler := health.NewHandler(cfg.App.Version, deps.Store, deps.Queue, providers)
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/live", healthHandler.LivenessCheck)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	// API 路由組
	api := router.Group("/api/v1")
	if cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window))
	}
	{
		handler := chefHandler.NewHandler(deps.Chef, deps.Quotas, deps.Store, generator, cfg.App.Debug)
		dedup := middleware.NewDeduplicator(cfg.DedupWindow)

		chefGroup := api.Group("/chef")
		{
			// 搜尋快取與內容倉庫，必要時生成
			chefGroup.POST("/search", dedup.Middleware(), handler.HandleSearch)

			// 直接生成新食譜
			chefGroup.POST("/generate", dedup.Middleware(), handler.HandleGenerate)

			// 額度與統計
			chefGroup.GET("/quota", handler.HandleQuotaStatus)
			chefGroup.GET("/quota/:provider", handler.HandleProviderQuota)
			chefGroup.GET("/stats", handler.HandleStats)
		}
	}

	common.LogInfo("Router setup completed successfully",
		zap.Strings("providers", providers),
		zap.Bool("rate_limit_enabled", cfg.RateLimit.Enabled),
		zap.Duration("request_timeout", cfg.Server.RequestTimeout),
		zap.Int64("max_body_size", cfg.Server.MaxBodyBytes),
	)

	return router
}
