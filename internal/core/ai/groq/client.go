// Package groq 透過 OpenAI 相容的 chat completions API 呼叫 Groq
package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ai-chef/internal/core/ai/provider"
	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/pkg/common"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Name 供應商名稱
const Name = "groq"

// Client Groq 客戶端
type Client struct {
	model  string
	client *resty.Client
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage provider.Usage `json:"usage"`
}

// NewClient 創建 Groq 客戶端
func NewClient(cfg config.ProviderConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Authorization", fmt.Sprintf("Bearer %s", cfg.APIKey)).
		SetHeader("Content-Type", "application/json")

	return &Client{
		model:  cfg.Model,
		client: client,
	}
}

// Name 供應商名稱
func (c *Client) Name() string {
	return Name
}

// Generate 呼叫 chat completions
func (c *Client) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	body := chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserPrompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.ResponseFormat == "json" {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	// 發送請求
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Groq: %w", err)
	}

	snapshot := ParseRateLimitHeaders(resp.Header())

	if resp.StatusCode() != http.StatusOK {
		return &provider.Response{Provider: Name, RateLimit: snapshot}, &provider.StatusError{
			Provider:   Name,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
	}

	// 解析回應
	var result chatResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse Groq response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in Groq response")
	}

	common.LogDebug("Groq 回應",
		zap.String("model", result.Model),
		zap.Int("total_tokens", result.Usage.TotalTokens),
	)

	return &provider.Response{
		Provider:  Name,
		Model:     result.Model,
		Content:   result.Choices[0].Message.Content,
		Usage:     result.Usage,
		RateLimit: snapshot,
	}, nil
}

// ParseRateLimitHeaders 解析 x-ratelimit-* header
// requests 為每日額度，tokens 為每分鐘額度
func ParseRateLimitHeaders(h http.Header) *provider.RateLimitSnapshot {
	snap := &provider.RateLimitSnapshot{
		RequestsWindow: provider.WindowDay,
		TokensWindow:   provider.WindowMinute,
	}

	if limit, ok := headerInt(h, "x-ratelimit-limit-requests"); ok {
		if remaining, ok := headerInt(h, "x-ratelimit-remaining-requests"); ok {
			snap.HasRequests = true
			snap.RequestsLimit = limit
			snap.RequestsRemaining = remaining
		}
	}
	if limit, ok := headerInt(h, "x-ratelimit-limit-tokens"); ok {
		if remaining, ok := headerInt(h, "x-ratelimit-remaining-tokens"); ok {
			snap.HasTokens = true
			snap.TokensLimit = limit
			snap.TokensRemaining = remaining
		}
	}

	if !snap.HasRequests && !snap.HasTokens {
		return nil
	}
	return snap
}

func headerInt(h http.Header, key string) (int, bool) {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
