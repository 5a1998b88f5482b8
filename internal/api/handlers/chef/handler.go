// Package chef 食譜搜尋與生成的 HTTP 處理器
package chef

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"ai-chef/internal/core/ai/cache"
	"ai-chef/internal/core/ai/queue"
	"ai-chef/internal/core/ai/quota"
	chefcore "ai-chef/internal/core/chef"
	"ai-chef/internal/core/query"
	"ai-chef/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SearchRequest 搜尋請求體
type SearchRequest struct {
	query.RecipeQuery
	Generate bool `json:"generate"`
}

// ErrorWithResult 生成失敗時仍附上已完成的搜尋結果
type ErrorWithResult struct {
	common.ErrorResponse
	Result *chefcore.SearchResult `json:"result,omitempty"`
}

// GeneratorStatus 生成服務的唯讀狀態
type GeneratorStatus interface {
	Providers() []string
	QueueStatus() *queue.Status
}

// StatsResponse 服務統計
type StatsResponse struct {
	Cache     cache.Stats   `json:"cache"`
	Queue     *queue.Status `json:"queue,omitempty"`
	Providers []string      `json:"providers"`
}

// Handler 食譜處理器
type Handler struct {
	svc       *chefcore.Service
	quotas    *quota.Manager
	store     cache.Store
	generator GeneratorStatus
	debug     bool
}

// NewHandler 創建食譜處理器
func NewHandler(svc *chefcore.Service, quotas *quota.Manager, store cache.Store, generator GeneratorStatus, debug bool) *Handler {
	if quotas == nil {
		quotas = quota.NewManager()
	}
	return &Handler{svc: svc, quotas: quotas, store: store, generator: generator, debug: debug}
}

// HandleSearch POST /api/v1/chef/search
func (h *Handler) HandleSearch(c *gin.Context) {
	var req SearchRequest
	if !h.bind(c, &req) {
		return
	}

	result, err := h.svc.Search(c.Request.Context(), chefcore.SearchRequest{
		Query:    req.RecipeQuery,
		Generate: req.Generate,
	})
	if result != nil {
		c.Set("search_source", result.Source)
	}
	if err != nil {
		h.writeError(c, err, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleGenerate POST /api/v1/chef/generate
func (h *Handler) HandleGenerate(c *gin.Context) {
	var q query.RecipeQuery
	if !h.bind(c, &q) {
		return
	}

	result, err := h.svc.Generate(c.Request.Context(), q)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleQuotaStatus GET /api/v1/chef/quota
func (h *Handler) HandleQuotaStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": h.quotas.StatusAll()})
}

// HandleProviderQuota GET /api/v1/chef/quota/:provider
func (h *Handler) HandleProviderQuota(c *gin.Context) {
	name := c.Param("provider")
	st, err := h.quotas.Status(name)
	if err != nil {
		if errors.Is(err, quota.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, common.ErrorResponse{
				Code:    common.ErrCodeNotFound,
				Message: "unknown provider: " + name,
			})
			return
		}
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, st)
}

// HandleStats GET /api/v1/chef/stats
func (h *Handler) HandleStats(c *gin.Context) {
	resp := StatsResponse{Providers: []string{}}
	if h.store != nil {
		resp.Cache = h.store.Stats()
	}
	if h.generator != nil {
		resp.Queue = h.generator.QueueStatus()
		resp.Providers = h.generator.Providers()
	}
	c.JSON(http.StatusOK, resp)
}

// bind 解析 JSON 請求體；失敗時已寫出回應
func (h *Handler) bind(c *gin.Context, v interface{}) bool {
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, common.ErrorResponse{
			Code:    common.ErrCodeRequestTooLarge,
			Message: "Request body too large",
		})
		return false
	}

	resp := common.ErrorResponse{
		Code:    common.ErrCodeInvalidRequest,
		Message: "Invalid request format",
	}
	if h.debug {
		resp.Details = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
	return false
}

// writeError 將錯誤對應到 HTTP 狀態碼
func (h *Handler) writeError(c *gin.Context, err error, result *chefcore.SearchResult) {
	_ = c.Error(err)

	status, resp := errorResponse(err)
	if h.debug && resp.Details == "" {
		resp.Details = err.Error()
	}

	var quotaErr *common.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.Header("Retry-After", strconv.Itoa(quotaErr.RetryAfterSeconds()))
	}

	if status >= http.StatusInternalServerError {
		common.LogError("食譜請求失敗", zap.Int("status", status), zap.Error(err))
	}

	c.JSON(status, ErrorWithResult{ErrorResponse: resp, Result: result})
}

func errorResponse(err error) (int, common.ErrorResponse) {
	var (
		validationErr *common.ValidationError
		quotaErr      *common.QuotaExceededError
		generationErr *common.GenerationError
		customErr     *common.CustomError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, common.ErrorResponse{
			Code:    common.ErrCodeValidation,
			Message: "Invalid recipe request",
			Fields:  validationErr.Fields,
		}
	case errors.As(err, &quotaErr):
		return http.StatusTooManyRequests, common.ErrorResponse{
			Code:    common.ErrCodeQuotaExceeded,
			Title:   "Daily Recipe Limit Reached",
			Message: "Recipe generation is temporarily unavailable. Please try again in " + common.FormatResetIn(quotaErr.ResetIn) + ".",
			ResetIn: common.FormatResetIn(quotaErr.ResetIn),
		}
	case errors.As(err, &customErr):
		return customErr.Status, common.ErrorResponse{
			Code:    customErr.Code,
			Message: customErr.Message,
		}
	case errors.Is(err, context.DeadlineExceeded) && !errors.As(err, &generationErr):
		return http.StatusGatewayTimeout, common.ErrorResponse{
			Code:    common.ErrCodeGatewayTimeout,
			Message: "Request timeout",
		}
	case errors.As(err, &generationErr):
		msg := "We couldn't create a recipe right now. Please try again."
		if strings.Contains(generationErr.Reason, "malformed") {
			msg = "The recipe came back incomplete. Please try again."
		}
		return http.StatusBadGateway, common.ErrorResponse{
			Code:    common.ErrCodeGenerationFailed,
			Title:   "Something Went Wrong",
			Message: msg,
		}
	default:
		return http.StatusInternalServerError, common.ErrorResponse{
			Code:    common.ErrCodeInternalError,
			Message: "Internal server error",
		}
	}
}
