package provider

import (
	"context"
	"fmt"
)

// Window 額度窗口
type Window string

const (
	WindowMinute Window = "minute"
	WindowDay    Window = "day"
)

// Request 表示發送到 AI 提供者的請求
type Request struct {
	SystemPrompt   string  `json:"system_prompt"`
	UserPrompt     string  `json:"user_prompt"`
	ResponseFormat string  `json:"response_format,omitempty"` // "json" 或空字串
	MaxTokens      int     `json:"max_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// RateLimitSnapshot 供應商在回應 header 中回報的額度
type RateLimitSnapshot struct {
	HasRequests       bool
	RequestsLimit     int
	RequestsRemaining int
	RequestsWindow    Window

	HasTokens       bool
	TokensLimit     int
	TokensRemaining int
	TokensWindow    Window
}

// Response 表示從 AI 提供者收到的響應
type Response struct {
	Provider  string             `json:"provider"`
	Model     string             `json:"model"`
	Content   string             `json:"content"`
	Usage     Usage              `json:"usage"`
	RateLimit *RateLimitSnapshot `json:"-"`
}

// Generator 定義 AI 提供者介面
type Generator interface {
	// Name 供應商名稱，對應額度設定
	Name() string

	// Generate 生成 AI 響應
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// StatusError 供應商回傳非 2xx 狀態
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, body)
}

// RateLimited 供應商回報 429
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == 429
}
