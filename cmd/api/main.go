package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ai-chef/internal/api"
	"ai-chef/internal/core/ai/cache"
	"ai-chef/internal/core/ai/queue"
	"ai-chef/internal/core/ai/quota"
	aiservice "ai-chef/internal/core/ai/service"
	"ai-chef/internal/core/chef"
	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/infrastructure/content"
	"ai-chef/internal/infrastructure/metrics"
	"ai-chef/internal/pkg/common"

	"go.uber.org/zap"
)

func main() {
	// 載入設定（含 .env）
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化 logger（需在載入 config 後）
	if err := common.InitLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer common.Sync()

	common.LogInfo("載入設定",
		zap.Strings("providers", cfg.AI.Providers),
		zap.String("gemini_api_key", config.MaskAPIKey(cfg.Gemini.APIKey)),
		zap.String("groq_api_key", config.MaskAPIKey(cfg.Groq.APIKey)),
		zap.String("cache_backend", cfg.Cache.Backend),
		zap.String("content_provider", cfg.Content.Provider),
	)

	// 初始化快取
	store, err := newStore(cfg.Cache)
	if err != nil {
		common.LogFatal("Failed to initialize cache store", zap.Error(err))
	}
	defer store.Close()

	// 內容倉庫
	repo, err := content.New(cfg.Content)
	if err != nil {
		common.LogFatal("Failed to initialize content repository", zap.Error(err))
	}

	collector := metrics.New()
	quotas := quota.NewManagerFromConfig(cfg.Quota, time.Now)
	queueManager := queue.NewManager(cfg.Queue)
	defer queueManager.Close()

	providers := aiservice.BuildProviders(cfg)
	if len(providers) == 0 {
		common.LogWarn("沒有可用的 AI 供應商，生成功能將無法使用")
	}
	generator := aiservice.NewService(cfg.AI, providers, quotas, queueManager, collector)
	chefService := chef.NewService(cfg.Search, store, repo, generator, collector)

	// 設置路由
	router := api.SetupRouter(api.Dependencies{
		Config:    cfg,
		Chef:      chefService,
		Generator: generator,
		Quotas:    quotas,
		Store:     store,
		Queue:     queueManager,
		Metrics:   collector,
	})

	// 設置 HTTP 服務器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// 啟動服務器
	go func() {
		common.LogInfo("啟動應用",
			zap.String("version", cfg.App.Version),
			zap.String("env", cfg.App.Env),
			zap.Bool("debug", cfg.App.Debug),
			zap.Int("port", cfg.Server.Port),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			common.LogError("Failed to start server",
				zap.Error(err),
			)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	common.LogInfo("Shutting down server...")

	// 設置關閉超時
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		common.LogError("Server forced to shutdown",
			zap.Error(err),
		)
		return
	}

	common.LogInfo("Server exited")
}

// newStore 依 backend 建立快取
func newStore(cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewManager(cfg), nil
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return cache.NewRedisStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}
