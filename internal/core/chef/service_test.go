package chef

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ai-chef/internal/core/ai/cache"
	aiservice "ai-chef/internal/core/ai/service"
	"ai-chef/internal/core/query"
	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/pkg/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	calls atomic.Int32
	posts []common.PublishedRecipe
	err   error
	delay time.Duration
}

func (r *countingRepo) ListRecipes(ctx context.Context) ([]common.PublishedRecipe, error) {
	r.calls.Add(1)
	if r.delay > 0 {
		select {
		case <-time.After(r.delay):
		case <-ctx.Done():
			return nil, &common.RepositoryFetchError{Err: ctx.Err()}
		}
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.posts, nil
}

type fakeGenerator struct {
	mu     sync.Mutex
	calls  int
	recipe common.RecipeRecord
	err    error
}

func (g *fakeGenerator) GenerateRecipe(ctx context.Context, q query.RecipeQuery) (*aiservice.Result, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &aiservice.Result{Recipe: g.recipe, Provider: "gemini"}, nil
}

func (g *fakeGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func searchConfig() config.SearchConfig {
	return config.SearchConfig{
		FuzzyThreshold:      0.65,
		FuzzyLimit:          3,
		RepositoryThreshold: 0.30,
		RepositoryLimit:     5,
		RepositoryTimeout:   time.Second,
	}
}

func chickenQuery() query.RecipeQuery {
	return query.RecipeQuery{
		Description: "creamy garlic chicken pasta for a weeknight dinner",
		Country:     "Italian",
		Protein:     "Chicken",
		Taste:       []string{"Savory", "Creamy"},
		Ingredients: []string{"garlic", "chicken", "pasta"},
	}
}

func generatedRecipe() common.RecipeRecord {
	return common.RecipeRecord{
		Title:        "Creamy Garlic Chicken Pasta",
		Ingredients:  common.IngredientList{{Item: "chicken"}, {Item: "garlic"}, {Item: "pasta"}},
		Instructions: []string{"Cook."},
	}
}

func putEntry(t *testing.T, store cache.Store, q query.RecipeQuery, title string, usage int64) string {
	t.Helper()
	hash, err := query.Hash(q)
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), hash, cache.Entry{
		QueryHash:  hash,
		Input:      q,
		Recipe:     common.RecipeRecord{Title: title, Ingredients: common.IngredientList{{Item: "x"}}, Instructions: []string{"y"}},
		UsageCount: usage,
		CreatedAt:  time.Now(),
	}))
	return hash
}

func carbonaraPost() common.PublishedRecipe {
	return common.PublishedRecipe{
		Slug: "chicken-carbonara",
		Tags: []string{"Italian", "Chicken", "Savory"},
		Recipe: common.RecipeRecord{
			Title:       "Chicken Carbonara",
			Description: "Creamy pasta with garlic and crispy chicken.",
			Ingredients: common.IngredientList{
				{Item: "400 g spaghetti pasta"},
				{Item: "2 chicken breasts"},
				{Item: "3 cloves garlic"},
			},
		},
	}
}

func tofuPost() common.PublishedRecipe {
	return common.PublishedRecipe{
		Slug: "mapo-tofu",
		Tags: []string{"Chinese", "Tofu", "Spicy"},
		Recipe: common.RecipeRecord{
			Title:       "Mapo Tofu",
			Ingredients: common.IngredientList{{Item: "tofu"}, {Item: "chili"}, {Item: "scallion"}},
		},
	}
}

func TestSearchValidationError(t *testing.T) {
	repo := &countingRepo{}
	svc := NewService(searchConfig(), cache.NewManager(config.CacheConfig{}), repo, &fakeGenerator{}, nil)

	q := chickenQuery()
	q.Ingredients = []string{"garlic"}
	_, err := svc.Search(context.Background(), SearchRequest{Query: q})

	var ve *common.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Fields, "ingredients")
	assert.EqualValues(t, 0, repo.calls.Load())
}

func TestSearchExactHitShortCircuits(t *testing.T) {
	store := cache.NewManager(config.CacheConfig{})
	repo := &countingRepo{posts: []common.PublishedRecipe{carbonaraPost()}}
	gen := &fakeGenerator{recipe: generatedRecipe()}
	svc := NewService(searchConfig(), store, repo, gen, nil)

	hash := putEntry(t, store, chickenQuery(), "Cached Pasta", 1)

	// 順序與大小寫不同仍視為同一查詢
	q := chickenQuery()
	q.Ingredients = []string{"Pasta", "chicken", "GARLIC"}
	q.Taste = []string{"creamy", "savory"}

	res, err := svc.Search(context.Background(), SearchRequest{Query: q, Generate: true})
	require.NoError(t, err)

	assert.Equal(t, SourceExact, res.Source)
	assert.Equal(t, hash, res.QueryHash)
	require.NotNil(t, res.FreshResponse)
	assert.Equal(t, "Cached Pasta", res.FreshResponse.Title)
	require.Len(t, res.CachedResults, 1)
	assert.EqualValues(t, 2, res.CachedResults[0].UsageCount)
	assert.Nil(t, res.CachedResults[0].Breakdown)
	assert.NotNil(t, res.RecipePosts)
	assert.False(t, res.ShouldGenerateNew)

	assert.EqualValues(t, 0, repo.calls.Load())
	assert.Equal(t, 0, gen.Calls())

	entry, err := store.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.EqualValues(t, 2, entry.UsageCount)
}

func TestSearchFuzzyAndRepository(t *testing.T) {
	store := cache.NewManager(config.CacheConfig{})
	repo := &countingRepo{posts: []common.PublishedRecipe{tofuPost(), carbonaraPost()}}
	gen := &fakeGenerator{recipe: generatedRecipe()}
	svc := NewService(searchConfig(), store, repo, gen, nil)

	similar := chickenQuery()
	similar.Description = "quick garlic chicken pasta for busy nights"
	similarHash := putEntry(t, store, similar, "Similar Pasta", 4)

	unrelated := query.RecipeQuery{
		Description: "spicy thai tofu noodles",
		Country:     "Thai",
		Protein:     "Tofu",
		Taste:       []string{"Spicy"},
		Ingredients: []string{"tofu", "noodles", "chili"},
	}
	putEntry(t, store, unrelated, "Tofu Noodles", 10)

	res, err := svc.Search(context.Background(), SearchRequest{Query: chickenQuery(), Generate: true})
	require.NoError(t, err)

	assert.Equal(t, SourceSearch, res.Source)
	require.Len(t, res.CachedResults, 1)
	assert.Equal(t, similarHash, res.CachedResults[0].QueryHash)
	assert.Greater(t, res.CachedResults[0].Score, 0.65)
	assert.EqualValues(t, 5, res.CachedResults[0].UsageCount)

	require.Len(t, res.RecipePosts, 1)
	assert.Equal(t, "chicken-carbonara", res.RecipePosts[0].Slug)
	assert.Greater(t, res.RecipePosts[0].Score, 0.30)

	// 已有結果時不生成
	assert.False(t, res.ShouldGenerateNew)
	assert.Nil(t, res.FreshResponse)
	assert.Equal(t, 0, gen.Calls())
	assert.EqualValues(t, 1, repo.calls.Load())
}

func TestSearchSingleSourceSkipsGeneration(t *testing.T) {
	t.Run("fuzzy cache only", func(t *testing.T) {
		store := cache.NewManager(config.CacheConfig{})
		repo := &countingRepo{posts: []common.PublishedRecipe{tofuPost()}}
		gen := &fakeGenerator{recipe: generatedRecipe()}
		svc := NewService(searchConfig(), store, repo, gen, nil)

		similar := chickenQuery()
		similar.Description = "quick garlic chicken pasta for busy nights"
		putEntry(t, store, similar, "Similar Pasta", 1)

		res, err := svc.Search(context.Background(), SearchRequest{Query: chickenQuery(), Generate: true})
		require.NoError(t, err)
		require.Len(t, res.CachedResults, 1)
		require.NotNil(t, res.CachedResults[0].Breakdown)
		assert.Equal(t, 1.0, res.CachedResults[0].Breakdown.Country)
		assert.Empty(t, res.RecipePosts)
		assert.False(t, res.ShouldGenerateNew)
		assert.Equal(t, SourceSearch, res.Source)
		assert.Equal(t, 0, gen.Calls())
	})

	t.Run("content repository only", func(t *testing.T) {
		repo := &countingRepo{posts: []common.PublishedRecipe{carbonaraPost()}}
		gen := &fakeGenerator{recipe: generatedRecipe()}
		svc := NewService(searchConfig(), cache.NewManager(config.CacheConfig{}), repo, gen, nil)

		res, err := svc.Search(context.Background(), SearchRequest{Query: chickenQuery(), Generate: true})
		require.NoError(t, err)
		assert.Empty(t, res.CachedResults)
		require.Len(t, res.RecipePosts, 1)
		assert.False(t, res.ShouldGenerateNew)
		assert.Nil(t, res.FreshResponse)
		assert.Equal(t, 0, gen.Calls())
	})
}

func TestSearchQuickChickenDinnerFindsTaggedPost(t *testing.T) {
	repo := &countingRepo{posts: []common.PublishedRecipe{carbonaraPost()}}
	svc := NewService(searchConfig(), cache.NewManager(config.CacheConfig{}), repo, &fakeGenerator{}, nil)

	q := query.RecipeQuery{
		Description: "quick chicken dinner",
		Country:     "Italian",
		Protein:     "Chicken",
		Taste:       []string{"Savory"},
		Ingredients: []string{"garlic", "chicken", "pasta"},
	}
	res, err := svc.Search(context.Background(), SearchRequest{Query: q})
	require.NoError(t, err)

	require.Len(t, res.RecipePosts, 1)
	post := res.RecipePosts[0]
	assert.Equal(t, "chicken-carbonara", post.Slug)
	assert.Greater(t, post.Score, 0.3)
	require.NotNil(t, post.Breakdown)
	assert.Equal(t, 1.0, post.Breakdown.Country)
	assert.Equal(t, 1.0, post.Breakdown.Protein)
	assert.Equal(t, 1.0, post.Breakdown.Taste)
	assert.Equal(t, 1.0, post.Breakdown.Ingredients)
	assert.False(t, res.ShouldGenerateNew)
}

func TestSearchFuzzyLimit(t *testing.T) {
	store := cache.NewManager(config.CacheConfig{})
	svc := NewService(searchConfig(), store, &countingRepo{}, nil, nil)

	for i := 0; i < 5; i++ {
		q := chickenQuery()
		q.Description = fmt.Sprintf("garlic chicken pasta variation number %d", i)
		putEntry(t, store, q, fmt.Sprintf("Pasta %d", i), int64(i+1))
	}

	res, err := svc.Search(context.Background(), SearchRequest{Query: chickenQuery()})
	require.NoError(t, err)
	require.Len(t, res.CachedResults, 3)
	for i := 1; i < len(res.CachedResults); i++ {
		assert.GreaterOrEqual(t, res.CachedResults[i-1].Score, res.CachedResults[i].Score)
	}
}

func TestSearchRepositoryFailureDegrades(t *testing.T) {
	tests := []struct {
		name string
		repo *countingRepo
	}{
		{name: "error", repo: &countingRepo{err: errors.New("github down")}},
		{name: "timeout", repo: &countingRepo{posts: []common.PublishedRecipe{carbonaraPost()}, delay: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := searchConfig()
			cfg.RepositoryTimeout = 20 * time.Millisecond
			svc := NewService(cfg, cache.NewManager(config.CacheConfig{}), tt.repo, nil, nil)

			res, err := svc.Search(context.Background(), SearchRequest{Query: chickenQuery()})
			require.NoError(t, err)
			assert.NotNil(t, res.RecipePosts)
			assert.Empty(t, res.RecipePosts)
			assert.NotNil(t, res.CachedResults)
			assert.True(t, res.ShouldGenerateNew)
			assert.Nil(t, res.FreshResponse)
		})
	}
}

func TestSearchGeneratesWhenNothingMatches(t *testing.T) {
	store := cache.NewManager(config.CacheConfig{})
	repo := &countingRepo{posts: []common.PublishedRecipe{tofuPost()}}
	gen := &fakeGenerator{recipe: generatedRecipe()}
	svc := NewService(searchConfig(), store, repo, gen, nil)

	// 未要求生成時只回報決策
	res, err := svc.Search(context.Background(), SearchRequest{Query: chickenQuery()})
	require.NoError(t, err)
	assert.True(t, res.ShouldGenerateNew)
	assert.Equal(t, 0, gen.Calls())

	res, err = svc.Search(context.Background(), SearchRequest{Query: chickenQuery(), Generate: true})
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, res.Source)
	assert.Equal(t, "gemini", res.Provider)
	require.NotNil(t, res.FreshResponse)
	assert.Equal(t, "Creamy Garlic Chicken Pasta", res.FreshResponse.Title)
	assert.Equal(t, 1, gen.Calls())

	entry, err := store.Get(context.Background(), res.QueryHash)
	require.NoError(t, err)
	assert.EqualValues(t, 1, entry.UsageCount)

	// 再次搜尋命中精確快取
	again, err := svc.Search(context.Background(), SearchRequest{Query: chickenQuery(), Generate: true})
	require.NoError(t, err)
	assert.Equal(t, SourceExact, again.Source)
	assert.Equal(t, 1, gen.Calls())
	assert.EqualValues(t, 2, repo.calls.Load())
}

func TestSearchGenerationErrorKeepsResults(t *testing.T) {
	gen := &fakeGenerator{err: &common.QuotaExceededError{Provider: "gemini", Reason: "daily request limit reached", ResetIn: time.Hour}}
	svc := NewService(searchConfig(), cache.NewManager(config.CacheConfig{}), &countingRepo{}, gen, nil)

	res, err := svc.Search(context.Background(), SearchRequest{Query: chickenQuery(), Generate: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrQuotaExceeded))

	require.NotNil(t, res)
	assert.True(t, res.ShouldGenerateNew)
	assert.NotEmpty(t, res.QueryHash)
	assert.NotNil(t, res.RecipePosts)
	assert.NotNil(t, res.CachedResults)
	assert.Nil(t, res.FreshResponse)
}

func TestGenerateExplicit(t *testing.T) {
	store := cache.NewManager(config.CacheConfig{})
	gen := &fakeGenerator{recipe: generatedRecipe()}
	repo := &countingRepo{posts: []common.PublishedRecipe{carbonaraPost()}}
	svc := NewService(searchConfig(), store, repo, gen, nil)

	res, err := svc.Generate(context.Background(), chickenQuery())
	require.NoError(t, err)
	assert.Equal(t, SourceGenerated, res.Source)
	assert.Equal(t, 1, gen.Calls())
	assert.EqualValues(t, 0, repo.calls.Load())

	stats := store.Stats()
	assert.Equal(t, 1, stats.Size)

	_, err = svc.Generate(context.Background(), query.RecipeQuery{})
	assert.True(t, common.IsValidationError(err))

	gen.err = &common.GenerationError{Provider: "groq", Reason: "malformed recipe JSON"}
	res, err = svc.Generate(context.Background(), chickenQuery())
	assert.ErrorIs(t, err, common.ErrGeneration)
	require.NotNil(t, res)
	assert.NotNil(t, res.CachedResults)
}

func TestPostProfile(t *testing.T) {
	p := postProfile(carbonaraPost())
	assert.Equal(t, "Italian", p.Country)
	assert.Equal(t, "Chicken", p.Protein)
	assert.Equal(t, []string{"Savory"}, p.Taste)
	assert.Contains(t, p.Description, "Chicken Carbonara")
	assert.Len(t, p.Ingredients, 3)

	untagged := common.PublishedRecipe{
		Recipe: common.RecipeRecord{
			Cuisine:     "Mexican",
			Ingredients: common.IngredientList{{Item: "2 eggs"}, {Item: "tortillas"}},
		},
	}
	p = postProfile(untagged)
	assert.Equal(t, "Mexican", p.Country)
	assert.Equal(t, "Eggs", p.Protein)
}
