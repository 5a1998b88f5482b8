// Package chef 食譜搜尋流程：精確快取、模糊快取、內容倉庫，最後才交給 AI 生成
package chef

import (
	"context"
	"errors"
	"time"

	"ai-chef/internal/core/ai/cache"
	aiservice "ai-chef/internal/core/ai/service"
	"ai-chef/internal/core/query"
	"ai-chef/internal/core/similarity"
	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/infrastructure/content"
	"ai-chef/internal/infrastructure/metrics"
	"ai-chef/internal/pkg/common"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RecipeGenerator AI 生成能力
type RecipeGenerator interface {
	GenerateRecipe(ctx context.Context, q query.RecipeQuery) (*aiservice.Result, error)
}

// Service 搜尋服務
type Service struct {
	cfg       config.SearchConfig
	store     cache.Store
	repo      content.Repository
	generator RecipeGenerator
	metrics   *metrics.Collector
	now       func() time.Time
}

// NewService 創建搜尋服務
func NewService(cfg config.SearchConfig, store cache.Store, repo content.Repository, gen RecipeGenerator, m *metrics.Collector) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		repo:      repo,
		generator: gen,
		metrics:   m,
		now:       time.Now,
	}
}

// Search 執行搜尋
//
// 精確命中時直接回傳，不評分、不讀內容倉庫、不呼叫 AI。
// 否則模糊快取與內容倉庫並行搜尋，兩者都沒有結果時 ShouldGenerateNew 為 true；
// req.Generate 為 true 時接著生成，生成失敗會同時回傳已算好的結果與錯誤。
func (s *Service) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	start := time.Now()

	hash, err := query.Hash(req.Query)
	if err != nil {
		return nil, err
	}
	q := req.Query.Clone()
	result := newResult(hash)

	// 精確快取
	entry, err := s.store.Get(ctx, hash)
	switch {
	case err == nil:
		s.metrics.CacheLookup("exact_hit")
		s.serveExact(ctx, result, entry)
		s.metrics.ObserveSearch(result.Source, time.Since(start))
		return result, nil
	case errors.Is(err, common.ErrCacheMiss):
		s.metrics.CacheLookup("miss")
	default:
		common.LogWarn("快取讀取失敗，改以搜尋處理", zap.String("hash", hash), zap.Error(err))
		s.metrics.CacheLookup("error")
	}

	profile := similarity.ProfileFromQuery(q)

	var g errgroup.Group
	g.Go(func() error {
		result.CachedResults = s.fuzzySearch(ctx, profile)
		return nil
	})
	g.Go(func() error {
		result.RecipePosts = s.repositorySearch(ctx, profile)
		return nil
	})
	_ = g.Wait()

	result.ShouldGenerateNew = len(result.CachedResults) == 0 && len(result.RecipePosts) == 0

	common.LogInfo("食譜搜尋完成",
		zap.String("hash", hash),
		zap.Int("cached_results", len(result.CachedResults)),
		zap.Int("recipe_posts", len(result.RecipePosts)),
		zap.Bool("should_generate_new", result.ShouldGenerateNew),
	)

	if req.Generate && result.ShouldGenerateNew {
		if err := s.generate(ctx, result, hash, q); err != nil {
			s.metrics.ObserveSearch(result.Source, time.Since(start))
			return result, err
		}
	}

	s.metrics.ObserveSearch(result.Source, time.Since(start))
	return result, nil
}

// Generate 使用者明確要求生成，不經過搜尋
func (s *Service) Generate(ctx context.Context, q query.RecipeQuery) (*SearchResult, error) {
	hash, err := query.Hash(q)
	if err != nil {
		return nil, err
	}
	result := newResult(hash)
	if err := s.generate(ctx, result, hash, q.Clone()); err != nil {
		return result, err
	}
	return result, nil
}

func (s *Service) serveExact(ctx context.Context, result *SearchResult, entry *cache.Entry) {
	usage := entry.UsageCount
	if n, err := s.store.IncrementUsage(ctx, entry.QueryHash); err == nil {
		usage = n
	} else {
		common.LogWarn("使用次數更新失敗", zap.String("hash", entry.QueryHash), zap.Error(err))
	}

	common.LogCacheHit("exact", entry.QueryHash)
	recipe := entry.Recipe.Clone()
	result.Source = SourceExact
	result.FreshResponse = &recipe
	result.CachedResults = []CachedMatch{cachedMatch(*entry, usage, 1, nil)}
}

func (s *Service) fuzzySearch(ctx context.Context, profile similarity.Profile) []CachedMatch {
	entries, err := s.store.List(ctx)
	if err != nil {
		common.LogError("快取列舉失敗", zap.Error(err))
		return []CachedMatch{}
	}

	candidates := make([]similarity.Candidate, len(entries))
	for i, e := range entries {
		candidates[i] = similarity.Candidate{
			Profile:    similarity.ProfileFromQuery(e.Input),
			UsageCount: e.UsageCount,
		}
	}

	matches := similarity.FindBestMatches(profile, candidates, s.cfg.FuzzyThreshold, s.cfg.FuzzyLimit)
	out := make([]CachedMatch, 0, len(matches))
	for _, m := range matches {
		e := entries[m.Index]
		usage := e.UsageCount
		if n, err := s.store.IncrementUsage(ctx, e.QueryHash); err == nil {
			usage = n
		} else {
			common.LogWarn("使用次數更新失敗", zap.String("hash", e.QueryHash), zap.Error(err))
		}
		breakdown := m.Breakdown
		out = append(out, cachedMatch(e, usage, m.Score, &breakdown))
	}
	if len(out) > 0 {
		s.metrics.CacheLookup("fuzzy_hit")
	}
	return out
}

func (s *Service) repositorySearch(ctx context.Context, profile similarity.Profile) []PostMatch {
	if s.repo == nil {
		return []PostMatch{}
	}

	repoCtx := ctx
	if s.cfg.RepositoryTimeout > 0 {
		var cancel context.CancelFunc
		repoCtx, cancel = context.WithTimeout(ctx, s.cfg.RepositoryTimeout)
		defer cancel()
	}

	posts, err := s.repo.ListRecipes(repoCtx)
	if err != nil {
		var fetchErr *common.RepositoryFetchError
		if !errors.As(err, &fetchErr) {
			err = &common.RepositoryFetchError{Err: err}
		}
		common.LogWarn("內容倉庫讀取失敗，以空結果繼續", zap.Error(err))
		s.metrics.RepositoryFailure()
		return []PostMatch{}
	}

	candidates := make([]similarity.Candidate, len(posts))
	for i, p := range posts {
		candidates[i] = similarity.Candidate{Profile: postProfile(p)}
	}

	matches := similarity.FindBestMatches(profile, candidates, s.cfg.RepositoryThreshold, s.cfg.RepositoryLimit)
	out := make([]PostMatch, 0, len(matches))
	for _, m := range matches {
		p := posts[m.Index]
		breakdown := m.Breakdown
		out = append(out, PostMatch{
			Slug:      p.Slug,
			Tags:      append([]string{}, p.Tags...),
			Recipe:    p.Recipe.Clone(),
			Score:     m.Score,
			Breakdown: &breakdown,
		})
	}
	return out
}

// generate 呼叫 AI 並將新食譜寫入快取（UsageCount = 1）
func (s *Service) generate(ctx context.Context, result *SearchResult, hash string, q query.RecipeQuery) error {
	if s.generator == nil {
		return &common.GenerationError{Reason: "generation is not configured"}
	}

	gen, err := s.generator.GenerateRecipe(ctx, q)
	if err != nil {
		common.LogWarn("食譜生成失敗", zap.String("hash", hash), zap.Error(err))
		return err
	}

	entry := cache.Entry{
		QueryHash:  hash,
		Input:      q,
		Recipe:     gen.Recipe,
		UsageCount: 1,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Put(ctx, hash, entry); err != nil {
		common.LogError("新食譜寫入快取失敗", zap.String("hash", hash), zap.Error(err))
	}

	recipe := gen.Recipe.Clone()
	result.Source = SourceGenerated
	result.FreshResponse = &recipe
	result.Provider = gen.Provider

	common.LogInfo("新食譜已生成",
		zap.String("hash", hash),
		zap.String("provider", gen.Provider),
		zap.String("title", recipe.Title),
	)
	return nil
}

func cachedMatch(e cache.Entry, usage int64, score float64, breakdown *similarity.Breakdown) CachedMatch {
	c := e.Clone()
	return CachedMatch{
		QueryHash:  c.QueryHash,
		Input:      c.Input,
		Recipe:     c.Recipe,
		UsageCount: usage,
		CreatedAt:  c.CreatedAt,
		Score:      score,
		Breakdown:  breakdown,
	}
}
