package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"ai-chef/internal/pkg/common"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreWithClient(client)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStorePutGet(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)

	_, err := s.Get(ctx, "h1")
	assert.ErrorIs(t, err, common.ErrCacheMiss)

	require.NoError(t, s.Put(ctx, "h1", sampleEntry("Garlic Pasta")))
	assert.True(t, mr.Exists("chef:recipe:h1"))

	usage, err := mr.Get("chef:usage:h1")
	require.NoError(t, err)
	assert.Equal(t, "1", usage)

	got, err := s.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, "Garlic Pasta", got.Recipe.Title)
	assert.Equal(t, "h1", got.QueryHash)
	assert.Equal(t, int64(1), got.UsageCount)
	assert.Equal(t, []string{"garlic", "chicken", "pasta"}, got.Input.Ingredients)

	stats := s.Stats()
	assert.Equal(t, "redis", stats.Backend)
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestRedisStoreListByCreation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, h := range []string{"late", "early", "middle"} {
		e := sampleEntry(h)
		e.CreatedAt = base.Add(time.Duration([]int{3, 1, 2}[i]) * time.Minute)
		require.NoError(t, s.Put(ctx, h, e))
	}

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "early", list[0].QueryHash)
	assert.Equal(t, "middle", list[1].QueryHash)
	assert.Equal(t, "late", list[2].QueryHash)
}

func TestRedisStoreListEmpty(t *testing.T) {
	s, _ := newTestRedisStore(t)
	list, err := s.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestRedisStoreIncrementUsage(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestRedisStore(t)

	_, err := s.IncrementUsage(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrCacheMiss)

	require.NoError(t, s.Put(ctx, "h1", sampleEntry("x")))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementUsage(ctx, "h1")
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(21), got.UsageCount)
}

func TestRedisStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestRedisStore(t)
	mr.Close()

	_, err := s.Get(ctx, "h1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, common.ErrCacheMiss)
	assert.Equal(t, -1, s.Stats().Size)
}
