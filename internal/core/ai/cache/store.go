// Package cache 保存已生成的食譜，支援精確查詢與完整列舉
package cache

import (
	"context"
	"time"

	"ai-chef/internal/core/query"
	"ai-chef/internal/pkg/common"
)

// Entry 快取條目
type Entry struct {
	QueryHash  string              `json:"queryHash"`
	Input      query.RecipeQuery   `json:"input"`
	Recipe     common.RecipeRecord `json:"recipe"`
	UsageCount int64               `json:"usageCount"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Clone 深拷貝，呼叫端拿到的條目不與 store 共用切片
func (e Entry) Clone() Entry {
	out := e
	out.Input = e.Input.Clone()
	out.Recipe = e.Recipe.Clone()
	return out
}

// Stats 快取統計
type Stats struct {
	Backend   string  `json:"backend"`
	Size      int     `json:"size"`
	MaxSize   int     `json:"max_size"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRatio  float64 `json:"hit_ratio"`
}

// Store 食譜快取介面
// Get 找不到時回傳 common.ErrCacheMiss；List 依建立順序回傳
type Store interface {
	Get(ctx context.Context, hash string) (*Entry, error)
	Put(ctx context.Context, hash string, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
	IncrementUsage(ctx context.Context, hash string) (int64, error)
	Stats() Stats
	Close() error
}

func hitRatio(hits, misses int64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}
