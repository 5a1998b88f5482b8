// Package service 以多個 AI 供應商生成食譜，依設定順序逐一嘗試
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ai-chef/internal/core/ai/gemini"
	"ai-chef/internal/core/ai/groq"
	"ai-chef/internal/core/ai/provider"
	"ai-chef/internal/core/ai/queue"
	"ai-chef/internal/core/ai/quota"
	"ai-chef/internal/core/query"
	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/infrastructure/metrics"
	"ai-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// Result 生成結果
type Result struct {
	Recipe   common.RecipeRecord
	Provider string
	Model    string
	Usage    provider.Usage
}

// Service AI 服務
type Service struct {
	config    config.AIConfig
	providers []provider.Generator
	quotas    *quota.Manager
	queue     *queue.Manager
	metrics   *metrics.Collector
}

// NewService 創建 AI 服務；providers 的順序即為嘗試順序
func NewService(cfg config.AIConfig, providers []provider.Generator, quotas *quota.Manager, q *queue.Manager, m *metrics.Collector) *Service {
	if quotas == nil {
		quotas = quota.NewManager()
	}
	return &Service{
		config:    cfg,
		providers: providers,
		quotas:    quotas,
		queue:     q,
		metrics:   m,
	}
}

// BuildProviders 依 ai.providers 的順序建立已啟用且有金鑰的供應商
func BuildProviders(cfg *config.Config) []provider.Generator {
	var out []provider.Generator
	for _, name := range cfg.AI.Providers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case gemini.Name:
			if cfg.Gemini.Enabled && cfg.Gemini.APIKey != "" {
				out = append(out, gemini.NewClient(cfg.Gemini))
			}
		case groq.Name:
			if cfg.Groq.Enabled && cfg.Groq.APIKey != "" {
				out = append(out, groq.NewClient(cfg.Groq))
			}
		default:
			common.LogWarn("未知的 AI 供應商，已略過", zap.String("provider", name))
		}
	}
	return out
}

// Providers 目前可用的供應商名稱
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for _, p := range s.providers {
		names = append(names, p.Name())
	}
	return names
}

// QueueStatus 生成佇列狀態，未設定佇列時回傳 nil
func (s *Service) QueueStatus() *queue.Status {
	if s.queue == nil {
		return nil
	}
	return s.queue.GetQueueStatus()
}

// GenerateRecipe 依序嘗試各供應商直到生成一份完整食譜
//
// 本地額度拒絕或供應商回報額度耗盡（429）的供應商會被跳過；全部被拒時回傳 *common.QuotaExceededError，
// 其 ResetIn 為最快恢復的供應商。其餘失敗回傳 *common.GenerationError。
func (s *Service) GenerateRecipe(ctx context.Context, q query.RecipeQuery) (*Result, error) {
	if len(s.providers) == 0 {
		return nil, &common.GenerationError{Reason: "no AI provider configured"}
	}

	if s.queue != nil {
		release, err := s.queue.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	system, user := BuildPrompts(q)
	req := &provider.Request{
		SystemPrompt:   system,
		UserPrompt:     user,
		ResponseFormat: "json",
		MaxTokens:      s.config.MaxTokens,
		Temperature:    s.config.Temperature,
	}

	var soonest *common.QuotaExceededError
	var lastErr error

	for _, p := range s.providers {
		if err := ctx.Err(); err != nil {
			return nil, &common.GenerationError{Reason: "request cancelled", Err: err}
		}

		name := p.Name()
		tracker, tracked := s.quotas.Tracker(name)

		var res *quota.Reservation
		if tracked {
			d := tracker.CheckAndReserve(s.config.EstimatedTokens)
			if !d.Allowed {
				s.metrics.QuotaDenied(name)
				if soonest == nil || d.ResetIn < soonest.ResetIn {
					soonest = &common.QuotaExceededError{Provider: name, Reason: d.Reason, ResetIn: d.ResetIn}
				}
				continue
			}
			res = d.Reservation
		}

		resp, err := s.call(ctx, p, req)

		if err != nil {
			if tracked {
				s.release(tracker, res)
				if resp != nil {
					tracker.ApplyRateLimit(resp.RateLimit)
				}
				if qe := s.providerExhausted(tracker, err); qe != nil {
					if soonest == nil || qe.ResetIn < soonest.ResetIn {
						soonest = qe
					}
					continue
				}
			}
			lastErr = &common.GenerationError{Provider: name, Reason: "provider request failed", Err: err}
			continue
		}

		if tracked {
			actual := resp.Usage.TotalTokens
			if actual <= 0 {
				actual = res.Tokens
			}
			if err := tracker.Commit(res, actual); err != nil {
				common.LogWarn("額度結算失敗", zap.String("provider", name), zap.Error(err))
			}
			// 供應商回報的數字最後套用，覆蓋本地結算
			tracker.ApplyRateLimit(resp.RateLimit)
		}

		recipe, err := ParseRecipe(resp.Content)
		if err != nil {
			common.LogError("AI 回應解析失敗",
				zap.String("provider", name),
				zap.Int("ai_response_length", len(resp.Content)),
				zap.Error(err),
			)
			s.metrics.ObserveGeneration(name, "malformed", 0)
			lastErr = &common.GenerationError{Provider: name, Reason: "malformed recipe JSON", Err: err}
			continue
		}
		if recipe.Cuisine == "" {
			recipe.Cuisine = q.Country
		}

		return &Result{
			Recipe:   recipe,
			Provider: name,
			Model:    resp.Model,
			Usage:    resp.Usage,
		}, nil
	}

	if lastErr != nil {
		return nil, lastErr
	}
	if soonest != nil {
		return nil, soonest
	}
	return nil, &common.GenerationError{Reason: "no AI provider available"}
}

// call 在 generation_timeout 內呼叫單一供應商
func (s *Service) call(ctx context.Context, p provider.Generator, req *provider.Request) (*provider.Response, error) {
	callCtx := ctx
	if s.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.config.GenerationTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := p.Generate(callCtx, req)
	elapsed := time.Since(start)

	if err == nil && (resp == nil || strings.TrimSpace(resp.Content) == "") {
		err = errors.New("empty AI response")
	}
	common.LogAICall(p.Name(), elapsed, err, common.RequestIDFromContext(ctx))

	outcome := "success"
	var statusErr *provider.StatusError
	switch {
	case errors.As(err, &statusErr) && statusErr.RateLimited():
		outcome = "rate_limited"
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	s.metrics.ObserveGeneration(p.Name(), outcome, elapsed)

	return resp, err
}

// providerExhausted 供應商回 429 且套用回報後本地額度也已拒絕時，回傳額度錯誤
func (s *Service) providerExhausted(tracker *quota.Tracker, err error) *common.QuotaExceededError {
	var statusErr *provider.StatusError
	if !errors.As(err, &statusErr) || !statusErr.RateLimited() {
		return nil
	}
	d := tracker.Check(s.config.EstimatedTokens)
	if d.Allowed {
		return nil
	}
	s.metrics.QuotaDenied(tracker.Provider())
	return &common.QuotaExceededError{Provider: tracker.Provider(), Reason: d.Reason, ResetIn: d.ResetIn}
}

func (s *Service) release(tracker *quota.Tracker, res *quota.Reservation) {
	if err := tracker.Release(res); err != nil {
		common.LogWarn("額度釋放失敗", zap.String("provider", tracker.Provider()), zap.Error(err))
	}
}

// ParseRecipe 去除 code fence 後嚴格解析食譜 JSON；前後夾帶文字或缺少必要欄位都視為錯誤
func ParseRecipe(content string) (common.RecipeRecord, error) {
	var recipe common.RecipeRecord

	text := common.StripCodeFence(content)
	if !strings.HasPrefix(text, "{") {
		return recipe, errors.New("response is not a JSON object")
	}
	if err := common.ParseJSON(text, &recipe); err != nil {
		return recipe, err
	}

	recipe.Title = strings.TrimSpace(recipe.Title)
	recipe.Description = strings.TrimSpace(recipe.Description)
	instructions := recipe.Instructions[:0]
	for _, step := range recipe.Instructions {
		if step = strings.TrimSpace(step); step != "" {
			instructions = append(instructions, step)
		}
	}
	recipe.Instructions = instructions

	if missing := recipe.Missing(); len(missing) > 0 {
		return recipe, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}
	return recipe, nil
}
