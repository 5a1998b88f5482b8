package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	chefHandler "ai-chef/internal/api/handlers/chef"
	"ai-chef/internal/core/ai/cache"
	"ai-chef/internal/core/ai/provider"
	"ai-chef/internal/core/ai/queue"
	"ai-chef/internal/core/ai/quota"
	aiservice "ai-chef/internal/core/ai/service"
	"ai-chef/internal/core/chef"
	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/infrastructure/content"
	"ai-chef/internal/infrastructure/metrics"
	"ai-chef/internal/pkg/common"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const recipeContent = `{"title":"Garlic Chicken Pasta","description":"Weeknight pasta.","ingredients":["2 chicken breasts","3 cloves garlic","300 g pasta"],"instructions":["Boil pasta.","Sear chicken."]}`

type stubProvider struct {
	content string
}

func (p *stubProvider) Name() string { return "gemini" }

func (p *stubProvider) Generate(ctx context.Context, req *provider.Request) (*provider.Response, error) {
	return &provider.Response{
		Provider: "gemini",
		Model:    "gemini-test",
		Content:  p.content,
		Usage:    provider.Usage{TotalTokens: 100},
	}, nil
}

type testEnv struct {
	router  *gin.Engine
	store   cache.Store
	metrics *metrics.Collector
}

func newTestEnv(t *testing.T, providerContent string, limits config.LimitsConfig) *testEnv {
	t.Helper()

	cfg := &config.Config{
		App:    config.AppConfig{Version: "test"},
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second, MaxBodyBytes: 1 << 16},
		AI:     config.AIConfig{GenerationTimeout: time.Second, EstimatedTokens: 100},
		Search: config.SearchConfig{
			FuzzyThreshold:      0.65,
			FuzzyLimit:          3,
			RepositoryThreshold: 0.30,
			RepositoryLimit:     5,
			RepositoryTimeout:   time.Second,
		},
		Queue: config.QueueConfig{Workers: 2, MaxSize: 10},
	}

	store := cache.NewManager(config.CacheConfig{})
	q := queue.NewManager(cfg.Queue)
	t.Cleanup(q.Close)
	m := metrics.New()
	quotas := quota.NewManagerFromConfig(config.QuotaConfig{Gemini: limits}, time.Now)

	gen := aiservice.NewService(cfg.AI, []provider.Generator{&stubProvider{content: providerContent}}, quotas, q, m)
	svc := chef.NewService(cfg.Search, store, content.NewStaticRepository(nil), gen, m)

	router := SetupRouter(Dependencies{
		Config:    cfg,
		Chef:      svc,
		Generator: gen,
		Quotas:    quotas,
		Store:     store,
		Queue:     q,
		Metrics:   m,
	})
	return &testEnv{router: router, store: store, metrics: m}
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func queryBody(description string, generate bool) string {
	body := map[string]interface{}{
		"description": description,
		"country":     "Italian",
		"protein":     "Chicken",
		"taste":       []string{"Savory"},
		"ingredients": []string{"garlic", "chicken", "pasta"},
		"generate":    generate,
	}
	data, _ := json.Marshal(body)
	return string(data)
}

func TestHealthRoutes(t *testing.T) {
	env := newTestEnv(t, recipeContent, config.LimitsConfig{})

	w := env.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	var health struct {
		Status    string   `json:"status"`
		Version   string   `json:"version"`
		Providers []string `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)
	assert.Equal(t, []string{"gemini"}, health.Providers)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/ready", "").Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/live", "").Code)
}

func TestSearchGeneratesThenHitsExactCache(t *testing.T) {
	env := newTestEnv(t, recipeContent, config.LimitsConfig{})

	w := env.do(http.MethodPost, "/api/v1/chef/search", queryBody("garlic chicken pasta for dinner", true))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var first chef.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, chef.SourceGenerated, first.Source)
	assert.Equal(t, "gemini", first.Provider)
	require.NotNil(t, first.FreshResponse)
	assert.Equal(t, "Garlic Chicken Pasta", first.FreshResponse.Title)
	assert.Equal(t, "Italian", first.FreshResponse.Cuisine)

	w = env.do(http.MethodPost, "/api/v1/chef/search", queryBody("garlic chicken pasta for dinner", false))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var second chef.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, chef.SourceExact, second.Source)
	assert.Equal(t, first.QueryHash, second.QueryHash)
	require.Len(t, second.CachedResults, 1)
	assert.Equal(t, int64(2), second.CachedResults[0].UsageCount)
}

func TestSearchErrors(t *testing.T) {
	env := newTestEnv(t, recipeContent, config.LimitsConfig{})

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "malformed json",
			body:     `{"description":`,
			wantCode: http.StatusBadRequest,
			wantErr:  common.ErrCodeInvalidRequest,
		},
		{
			name:     "empty body",
			body:     "",
			wantCode: http.StatusBadRequest,
			wantErr:  common.ErrCodeInvalidRequest,
		},
		{
			name:     "wrong field type",
			body:     `{"description":"garlic chicken pasta for dinner","taste":"Savory"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  common.ErrCodeInvalidRequest,
		},
		{
			name:     "validation failure",
			body:     `{"description":"short","country":"Atlantis","protein":"Chicken","taste":["Savory"],"ingredients":["garlic"]}`,
			wantCode: http.StatusBadRequest,
			wantErr:  common.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/v1/chef/search", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)

			var resp common.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantErr, resp.Code)
			if tt.wantErr == common.ErrCodeValidation {
				assert.Contains(t, resp.Fields, "country")
				assert.Contains(t, resp.Fields, "ingredients")
			}
		})
	}
}

func TestGenerateQuotaExceeded(t *testing.T) {
	env := newTestEnv(t, recipeContent, config.LimitsConfig{RPD: 1})

	w := env.do(http.MethodPost, "/api/v1/chef/generate", queryBody("garlic chicken pasta for dinner", false))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/api/v1/chef/generate", queryBody("another garlic chicken pasta idea", false))
	require.Equal(t, http.StatusTooManyRequests, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp common.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, common.ErrCodeQuotaExceeded, resp.Code)
	assert.Equal(t, "Daily Recipe Limit Reached", resp.Title)
	assert.NotEmpty(t, resp.ResetIn)

	w = env.do(http.MethodGet, "/api/v1/chef/quota/gemini", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st quota.ProviderStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.NotNil(t, st.LLM)
	assert.Equal(t, 1, st.LLM.RequestsToday)
}

func TestSearchGenerationFailureKeepsResult(t *testing.T) {
	env := newTestEnv(t, "not a recipe", config.LimitsConfig{})

	w := env.do(http.MethodPost, "/api/v1/chef/search", queryBody("garlic chicken pasta for dinner", true))
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())

	var resp chefHandler.ErrorWithResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, common.ErrCodeGenerationFailed, resp.Code)
	assert.Equal(t, "Something Went Wrong", resp.Title)
	require.NotNil(t, resp.Result)
	assert.True(t, resp.Result.ShouldGenerateNew)
	assert.Nil(t, resp.Result.FreshResponse)

	assert.Equal(t, 0, env.store.Stats().Size)
}

func TestDuplicateGenerateRejected(t *testing.T) {
	env := newTestEnv(t, recipeContent, config.LimitsConfig{})
	body := queryBody("garlic chicken pasta for dinner", false)

	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/chef/generate", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(http.MethodPost, "/api/v1/chef/generate", body).Code)
}

func TestQuotaAndStatsRoutes(t *testing.T) {
	env := newTestEnv(t, recipeContent, config.LimitsConfig{RPM: 15})

	w := env.do(http.MethodGet, "/api/v1/chef/quota", "")
	require.Equal(t, http.StatusOK, w.Code)
	var all struct {
		Providers []quota.ProviderStatus `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &all))
	require.Len(t, all.Providers, 2)
	assert.Equal(t, "gemini", all.Providers[0].Provider)
	assert.Equal(t, 15, all.Providers[0].LLM.Limits.RPM)

	w = env.do(http.MethodGet, "/api/v1/chef/quota/openai", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodGet, "/api/v1/chef/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats chefHandler.StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "memory", stats.Cache.Backend)
	assert.Equal(t, []string{"gemini"}, stats.Providers)
	require.NotNil(t, stats.Queue)
	assert.Equal(t, 2, stats.Queue.Workers)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, recipeContent, config.LimitsConfig{})

	require.Equal(t, http.StatusOK, env.do(http.MethodGet, "/live", "").Code)

	w := env.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(),
		`ai_chef_http_requests_total{method="GET",path="/live",status_code="200"} 1`))
}
