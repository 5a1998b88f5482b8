package chef

import (
	"time"

	"ai-chef/internal/core/query"
	"ai-chef/internal/core/similarity"
	"ai-chef/internal/pkg/common"
)

// 結果來源
const (
	SourceExact     = "cache_exact"
	SourceSearch    = "search"
	SourceGenerated = "generated"
)

// SearchRequest 搜尋請求，Generate 為 true 時在沒有任何結果時直接生成
type SearchRequest struct {
	Query    query.RecipeQuery
	Generate bool
}

// PostMatch 內容倉庫中的相似文章
type PostMatch struct {
	Slug      string                `json:"slug"`
	Tags      []string              `json:"tags"`
	Recipe    common.RecipeRecord   `json:"recipe"`
	Score     float64               `json:"score"`
	Breakdown *similarity.Breakdown `json:"breakdown,omitempty"`
}

// CachedMatch 快取中的相似食譜；精確命中時沒有 Breakdown
type CachedMatch struct {
	QueryHash  string                `json:"queryHash"`
	Input      query.RecipeQuery     `json:"input"`
	Recipe     common.RecipeRecord   `json:"recipe"`
	UsageCount int64                 `json:"usageCount"`
	CreatedAt  time.Time             `json:"createdAt"`
	Score      float64               `json:"score"`
	Breakdown  *similarity.Breakdown `json:"breakdown,omitempty"`
}

// SearchResult 搜尋結果，RecipePosts 與 CachedResults 一定不是 nil
type SearchResult struct {
	QueryHash         string               `json:"queryHash"`
	Source            string               `json:"source"`
	RecipePosts       []PostMatch          `json:"recipePosts"`
	CachedResults     []CachedMatch        `json:"cachedResults"`
	ShouldGenerateNew bool                 `json:"shouldGenerateNew"`
	FreshResponse     *common.RecipeRecord `json:"freshResponse"`
	Provider          string               `json:"provider,omitempty"`
}

func newResult(hash string) *SearchResult {
	return &SearchResult{
		QueryHash:     hash,
		Source:        SourceSearch,
		RecipePosts:   []PostMatch{},
		CachedResults: []CachedMatch{},
	}
}
