package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"gemini", "groq"}, cfg.AI.Providers)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 0, cfg.Cache.MaxSize)
	assert.Equal(t, 0.65, cfg.Search.FuzzyThreshold)
	assert.Equal(t, 3, cfg.Search.FuzzyLimit)
	assert.Equal(t, 0.3, cfg.Search.RepositoryThreshold)
	assert.Equal(t, 5, cfg.Search.RepositoryLimit)
	assert.Equal(t, 8*time.Second, cfg.Search.RepositoryTimeout)
	assert.Equal(t, "America/Los_Angeles", cfg.Quota.Gemini.Timezone)
	assert.Equal(t, 10000, cfg.Quota.YouTubeDailyUnits)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("AI_PROVIDERS", "Groq, gemini")
	t.Setenv("GROQ_API_KEY", "gsk_test_key_123456")
	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_SEARCH_FUZZY_LIMIT", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"groq", "gemini"}, cfg.AI.Providers)
	assert.Equal(t, "gsk_test_key_123456", cfg.Groq.APIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Search.FuzzyLimit)
}

func validConfig() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080},
		AI:      AIConfig{Providers: []string{"gemini"}, GenerationTimeout: time.Second},
		Cache:   CacheConfig{Backend: "memory"},
		Queue:   QueueConfig{Workers: 1},
		Content: ContentConfig{Provider: "static"},
		Search: SearchConfig{
			FuzzyThreshold:      0.65,
			RepositoryThreshold: 0.3,
			RepositoryTimeout:   time.Second,
		},
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no port", func(c *Config) { c.Server.Port = 0 }, "port"},
		{"no providers", func(c *Config) { c.AI.Providers = nil }, "provider"},
		{"unknown provider", func(c *Config) { c.AI.Providers = []string{"openai"} }, "openai"},
		{"bad backend", func(c *Config) { c.Cache.Backend = "disk" }, "disk"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, "redis_addr"},
		{"github without repo", func(c *Config) { c.Content.Provider = "github" }, "owner"},
		{"threshold above one", func(c *Config) { c.Search.FuzzyThreshold = 1.2 }, "fuzzy_threshold"},
		{"negative threshold", func(c *Config) { c.Search.RepositoryThreshold = -0.1 }, "repository_threshold"},
		{"bad rate limit", func(c *Config) { c.RateLimit = RateLimitConfig{Enabled: true} }, "rate limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := validateConfig(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", MaskAPIKey("short"))
	assert.Equal(t, "abcd...wxyz", MaskAPIKey("abcdefghijklmnopqrstuvwxyz"))
}
