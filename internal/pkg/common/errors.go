package common

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// ErrorResponse 定義 API 錯誤響應結構
type ErrorResponse struct {
	Code    string            `json:"code"`               // 錯誤代碼
	Message string            `json:"message"`            // 錯誤信息
	Title   string            `json:"title,omitempty"`    // 給 UI 顯示的標題
	Fields  map[string]string `json:"fields,omitempty"`   // 欄位驗證訊息
	ResetIn string            `json:"reset_in,omitempty"` // 額度重置倒數
	Details string            `json:"details,omitempty"`  // 詳細信息（僅在開發模式顯示）
}

// CustomError 定義自定義錯誤類型
type CustomError struct {
	Code    string // 錯誤代碼
	Message string // 錯誤信息
	Err     error  // 原始錯誤
	Status  int    // HTTP 狀態碼
}

func (e *CustomError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Err
}

// NewError 創建新的自定義錯誤
func NewError(code string, message string, status int, err error) *CustomError {
	return &CustomError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// 預定義錯誤代碼
const (
	// 客戶端錯誤 (4xx)
	ErrCodeInvalidRequest  = "INVALID_REQUEST"   // 400
	ErrCodeValidation      = "VALIDATION_ERROR"  // 400
	ErrCodeNotFound        = "NOT_FOUND"         // 404
	ErrCodeRequestTimeout  = "REQUEST_TIMEOUT"   // 408
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE" // 413
	ErrCodeTooManyRequests = "TOO_MANY_REQUESTS" // 429
	ErrCodeQuotaExceeded   = "QUOTA_EXCEEDED"    // 429

	// 服務器錯誤 (5xx)
	ErrCodeInternalError      = "INTERNAL_ERROR"      // 500
	ErrCodeGenerationFailed   = "GENERATION_FAILED"   // 502
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE" // 503
	ErrCodeGatewayTimeout     = "GATEWAY_TIMEOUT"     // 504
)

// 預定義錯誤
var (
	ErrInvalidRequest     = NewError(ErrCodeInvalidRequest, "無效的請求", http.StatusBadRequest, nil)
	ErrNotFound           = NewError(ErrCodeNotFound, "資源不存在", http.StatusNotFound, nil)
	ErrTooManyRequests    = NewError(ErrCodeTooManyRequests, "請求過於頻繁", http.StatusTooManyRequests, nil)
	ErrInternalError      = NewError(ErrCodeInternalError, "服務器內部錯誤", http.StatusInternalServerError, nil)
	ErrServiceUnavailable = NewError(ErrCodeServiceUnavailable, "服務暫時不可用", http.StatusServiceUnavailable, nil)
	ErrQueueFull          = NewError("QUEUE_FULL", "生成佇列已滿", http.StatusServiceUnavailable, nil)

	// ErrCacheMiss 快取中沒有對應的項目
	ErrCacheMiss = errors.New("cache miss")

	// ErrGeneration 所有生成失敗（含額度不足）都可用 errors.Is 判斷
	ErrGeneration = errors.New("recipe generation failed")

	// ErrQuotaExceeded 供應商額度耗盡
	ErrQuotaExceeded = errors.New("provider quota exceeded")
)

// ValidationError 表示驗證錯誤，Fields 以 JSON 欄位名稱為鍵
type ValidationError struct {
	Fields map[string]string
}

// Error 實現 error 介面
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError 創建新的驗證錯誤
func NewValidationError(fields map[string]string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// IsValidationError 檢查是否為驗證錯誤
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RepositoryFetchError 內容倉庫讀取失敗，搜尋流程會以空結果取代
type RepositoryFetchError struct {
	Err error
}

func (e *RepositoryFetchError) Error() string {
	return fmt.Sprintf("content repository fetch failed: %v", e.Err)
}

func (e *RepositoryFetchError) Unwrap() error {
	return e.Err
}

// GenerationError AI 生成失敗（供應商錯誤、JSON 格式錯誤等）
type GenerationError struct {
	Provider string
	Reason   string
	Err      error
}

func (e *GenerationError) Error() string {
	msg := "recipe generation failed"
	if e.Provider != "" {
		msg += " (" + e.Provider + ")"
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// Is 讓 errors.Is(err, ErrGeneration) 成立
func (e *GenerationError) Is(target error) bool {
	return target == ErrGeneration
}

// QuotaExceededError 額度耗盡，是 GenerationError 的一種
type QuotaExceededError struct {
	Provider string
	Reason   string
	ResetIn  time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %s (resets in %s)", e.Provider, e.Reason, FormatResetIn(e.ResetIn))
}

// Is 同時匹配 ErrQuotaExceeded 與 ErrGeneration
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded || target == ErrGeneration
}

// RetryAfterSeconds 給 Retry-After header 使用，至少 1 秒
func (e *QuotaExceededError) RetryAfterSeconds() int {
	secs := int(e.ResetIn.Round(time.Second) / time.Second)
	if secs < 1 {
		return 1
	}
	return secs
}

// FormatResetIn 將剩餘時間格式化為 "3h 12m"、"12m 5s" 或 "45s"
func FormatResetIn(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	d = d.Round(time.Second)
	h := int(d / time.Hour)
	m := int((d % time.Hour) / time.Minute)
	s := int((d % time.Minute) / time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
