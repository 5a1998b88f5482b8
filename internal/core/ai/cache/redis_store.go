package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/pkg/common"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	recipeKeyPrefix = "chef:recipe:"
	usageKeyPrefix  = "chef:usage:"
	indexKey        = "chef:recipes"
)

// RedisStore 以 Redis 保存快取條目
// 條目 JSON 存在 chef:recipe:<hash>，使用次數存在 chef:usage:<hash>，
// chef:recipes 為依建立時間排序的索引
type RedisStore struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedisStore 連線 Redis 並建立快取
func NewRedisStore(ctx context.Context, cfg config.CacheConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 測試連接
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	common.LogInfo("快取管理員已初始化",
		zap.String("backend", "redis"),
		zap.String("addr", cfg.RedisAddr),
	)
	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient 使用既有的 client
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func recipeKey(hash string) string { return recipeKeyPrefix + hash }
func usageKey(hash string) string  { return usageKeyPrefix + hash }

// Get 獲取緩存
func (s *RedisStore) Get(ctx context.Context, hash string) (*Entry, error) {
	vals, err := s.client.MGet(ctx, recipeKey(hash), usageKey(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}

	entry, ok, err := decodeEntry(vals[0], vals[1])
	if err != nil {
		return nil, err
	}
	if !ok {
		s.misses.Add(1)
		common.LogCacheMiss("redis", hash)
		return nil, common.ErrCacheMiss
	}

	s.hits.Add(1)
	common.LogCacheHit("redis", hash)
	return entry, nil
}

// Put 設置緩存
func (s *RedisStore) Put(ctx context.Context, hash string, entry Entry) error {
	stored := entry
	stored.QueryHash = hash
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	if stored.UsageCount < 1 {
		stored.UsageCount = 1
	}

	// 序列化條目
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, recipeKey(hash), data, 0)
		pipe.Set(ctx, usageKey(hash), stored.UsageCount, 0)
		pipe.ZAddNX(ctx, indexKey, &redis.Z{
			Score:  float64(stored.CreatedAt.UnixNano()),
			Member: hash,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	common.LogInfo("快取已儲存", zap.String("backend", "redis"), zap.String("鍵", hash))
	return nil
}

// List 依建立時間回傳所有條目
func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	hashes, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cache index: %w", err)
	}
	if len(hashes) == 0 {
		return []Entry{}, nil
	}

	keys := make([]string, 0, len(hashes)*2)
	for _, h := range hashes {
		keys = append(keys, recipeKey(h), usageKey(h))
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list cache: %w", err)
	}

	out := make([]Entry, 0, len(hashes))
	for i := range hashes {
		entry, ok, err := decodeEntry(vals[2*i], vals[2*i+1])
		if err != nil {
			common.LogWarn("快取條目解析失敗", zap.String("鍵", hashes[i]), zap.Error(err))
			continue
		}
		if ok {
			out = append(out, *entry)
		}
	}
	return out, nil
}

// IncrementUsage 以 INCR 原子遞增使用次數
func (s *RedisStore) IncrementUsage(ctx context.Context, hash string) (int64, error) {
	// 條目不會被刪除，先檢查存在再 INCR 不會產生孤立計數
	n, err := s.client.Exists(ctx, recipeKey(hash)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to check cache entry: %w", err)
	}
	if n == 0 {
		return 0, common.ErrCacheMiss
	}
	count, err := s.client.Incr(ctx, usageKey(hash)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}

// Stats 快取統計；Size 讀取失敗時為 -1
func (s *RedisStore) Stats() Stats {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	size := -1
	if n, err := s.client.ZCard(ctx, indexKey).Result(); err == nil {
		size = int(n)
	} else {
		common.LogWarn("讀取快取大小失敗", zap.Error(err))
	}

	hits, misses := s.hits.Load(), s.misses.Load()
	return Stats{
		Backend:  "redis",
		Size:     size,
		Hits:     hits,
		Misses:   misses,
		HitRatio: hitRatio(hits, misses),
	}
}

// Close 關閉 Redis 連線
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// decodeEntry 解析 MGET 回傳的 (entry JSON, usage) 配對
func decodeEntry(rawEntry, rawUsage interface{}) (*Entry, bool, error) {
	if rawEntry == nil {
		return nil, false, nil
	}
	data, ok := rawEntry.(string)
	if !ok {
		return nil, false, errors.New("unexpected cache entry type")
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cache: %w", err)
	}

	if usage, ok := rawUsage.(string); ok {
		if n, err := strconv.ParseInt(usage, 10, 64); err == nil {
			entry.UsageCount = n
		}
	}
	return &entry, true, nil
}
