package health

import (
	"net/http"
	"runtime"
	"time"

	"ai-chef/internal/core/ai/cache"
	"ai-chef/internal/core/ai/queue"
	"ai-chef/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthResponse 健康檢查響應
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime"`
	Cache     *cache.Stats           `json:"cache,omitempty"`
	Queue     *queue.Status          `json:"queue,omitempty"`
	Providers []string               `json:"providers"`
}

// Handler 健康檢查處理器
type Handler struct {
	version   string
	store     cache.Store
	queue     *queue.Manager
	providers []string
}

// NewHandler 創建健康檢查處理器
func NewHandler(version string, store cache.Store, q *queue.Manager, providers []string) *Handler {
	if providers == nil {
		providers = []string{}
	}
	return &Handler{version: version, store: store, queue: q, providers: providers}
}

// HealthCheck 健康檢查處理器
func (h *Handler) HealthCheck(c *gin.Context) {
	// 獲取運行時信息
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   h.version,
		Runtime: map[string]interface{}{
			"goroutines": runtime.NumGoroutine(),
			"memory": map[string]interface{}{
				"alloc":       m.Alloc,
				"total_alloc": m.TotalAlloc,
				"sys":         m.Sys,
				"num_gc":      m.NumGC,
			},
		},
		Providers: h.providers,
	}
	if h.store != nil {
		stats := h.store.Stats()
		response.Cache = &stats
	}
	if h.queue != nil {
		response.Queue = h.queue.GetQueueStatus()
	}

	common.LogDebug("Health check request",
		zap.String("client_ip", c.ClientIP()),
		zap.String("path", c.Request.URL.Path),
	)

	c.JSON(http.StatusOK, response)
}

// ReadinessCheck 快取後端可用且至少有一個 AI 供應商時為就緒
func (h *Handler) ReadinessCheck(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if h.store != nil {
		if stats := h.store.Stats(); stats.Size < 0 {
			checks["cache"] = "unavailable"
			ready = false
		} else {
			checks["cache"] = "ok"
		}
	}
	if len(h.providers) == 0 {
		checks["providers"] = "none configured"
		ready = false
	} else {
		checks["providers"] = "ok"
	}

	if !ready {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": checks})
}

// LivenessCheck 存活檢查處理器
func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
