package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// CacheManager 行程內的快取實作
type CacheManager struct {
	maxSize int
	mu      sync.RWMutex
	store   map[string]*cacheEntry
	order   []string
	stats   cacheStats
}

// cacheEntry 使用次數獨立成原子計數器，遞增只需讀鎖
type cacheEntry struct {
	entry Entry
	usage atomic.Int64
}

// cacheStats 緩存統計
type cacheStats struct {
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// NewManager 創建新的緩存管理器，MaxSize 為 0 時不淘汰
func NewManager(cfg config.CacheConfig) *CacheManager {
	m := &CacheManager{
		maxSize: cfg.MaxSize,
		store:   make(map[string]*cacheEntry),
	}

	common.LogInfo("快取管理員已初始化",
		zap.String("backend", "memory"),
		zap.Int("最大容量", cfg.MaxSize),
	)

	return m
}

// Get 取得快取條目的副本
func (m *CacheManager) Get(ctx context.Context, hash string) (*Entry, error) {
	m.mu.RLock()
	ce, exists := m.store[hash]
	var out Entry
	if exists {
		out = ce.entry.Clone()
		out.UsageCount = ce.usage.Load()
	}
	m.mu.RUnlock()

	if !exists {
		m.stats.misses.Add(1)
		common.LogCacheMiss("memory", hash)
		return nil, common.ErrCacheMiss
	}

	m.stats.hits.Add(1)
	common.LogCacheHit("memory", hash)
	return &out, nil
}

// Put 新增或覆寫快取條目
func (m *CacheManager) Put(ctx context.Context, hash string, entry Entry) error {
	stored := entry.Clone()
	stored.QueryHash = hash
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	usage := stored.UsageCount
	if usage < 1 {
		usage = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ce, exists := m.store[hash]; exists {
		ce.entry = stored
		ce.usage.Store(usage)
		common.LogInfo("快取已覆寫", zap.String("鍵", hash))
		return nil
	}

	// 檢查緩存大小
	if m.maxSize > 0 && len(m.store) >= m.maxSize {
		m.evictLeastUsed()
	}

	ce := &cacheEntry{entry: stored}
	ce.usage.Store(usage)
	m.store[hash] = ce
	m.order = append(m.order, hash)

	common.LogInfo("快取已儲存",
		zap.String("鍵", hash),
		zap.Int("目前容量", len(m.store)),
	)
	return nil
}

// List 依建立順序回傳所有條目的副本
func (m *CacheManager) List(ctx context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, 0, len(m.order))
	for _, hash := range m.order {
		ce := m.store[hash]
		e := ce.entry.Clone()
		e.UsageCount = ce.usage.Load()
		out = append(out, e)
	}
	return out, nil
}

// IncrementUsage 原子遞增使用次數
func (m *CacheManager) IncrementUsage(ctx context.Context, hash string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ce, exists := m.store[hash]
	if !exists {
		return 0, common.ErrCacheMiss
	}
	return ce.usage.Add(1), nil
}

// evictLeastUsed 淘汰使用次數最少的條目，同數時淘汰最舊的；呼叫前需持有寫鎖
func (m *CacheManager) evictLeastUsed() {
	victim := -1
	var lowest int64
	for i, hash := range m.order {
		usage := m.store[hash].usage.Load()
		if victim == -1 || usage < lowest {
			victim = i
			lowest = usage
		}
	}
	if victim == -1 {
		return
	}

	hash := m.order[victim]
	delete(m.store, hash)
	m.order = append(m.order[:victim], m.order[victim+1:]...)
	m.stats.evictions.Add(1)

	common.LogInfo("快取已淘汰(最少使用)",
		zap.String("鍵", hash),
		zap.Int64("使用次數", lowest),
	)
}

// Stats 獲取緩存統計信息
func (m *CacheManager) Stats() Stats {
	m.mu.RLock()
	size := len(m.store)
	m.mu.RUnlock()

	hits, misses := m.stats.hits.Load(), m.stats.misses.Load()
	return Stats{
		Backend:   "memory",
		Size:      size,
		MaxSize:   m.maxSize,
		Hits:      hits,
		Misses:    misses,
		Evictions: m.stats.evictions.Load(),
		HitRatio:  hitRatio(hits, misses),
	}
}

// Close 關閉緩存管理器
func (m *CacheManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.store = make(map[string]*cacheEntry)
	m.order = nil
	common.LogInfo("快取管理員已關閉",
		zap.Int64("命中次數", m.stats.hits.Load()),
		zap.Int64("未命中次數", m.stats.misses.Load()),
		zap.Int64("淘汰次數", m.stats.evictions.Load()),
	)
	return nil
}
