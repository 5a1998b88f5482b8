package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App         AppConfig       `mapstructure:"app"`
	Server      ServerConfig    `mapstructure:"server"`
	Gemini      ProviderConfig  `mapstructure:"gemini"`
	Groq        ProviderConfig  `mapstructure:"groq"`
	AI          AIConfig        `mapstructure:"ai"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Queue       QueueConfig     `mapstructure:"queue"`
	Content     ContentConfig   `mapstructure:"content"`
	Search      SearchConfig    `mapstructure:"search"`
	Quota       QuotaConfig     `mapstructure:"quota"`
	RateLimit   RateLimitConfig `mapstructure:"rate_limit"`
	DedupWindow time.Duration   `mapstructure:"dedup_window"`
	LogLevel    string          `mapstructure:"log_level"`
	LogFile     string          `mapstructure:"log_file"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes"`
}

// ProviderConfig LLM 供應商設定（Gemini、Groq 共用）
type ProviderConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AIConfig AI 生成設定
type AIConfig struct {
	Providers         []string      `mapstructure:"providers"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Temperature       float64       `mapstructure:"temperature"`
	EstimatedTokens   int           `mapstructure:"estimated_tokens"`
}

// CacheConfig 食譜快取設定
type CacheConfig struct {
	Backend       string `mapstructure:"backend"`
	MaxSize       int    `mapstructure:"max_size"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// QueueConfig 生成併發設定
type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// ContentConfig 內容倉庫設定
type ContentConfig struct {
	Provider          string        `mapstructure:"provider"`
	BaseURL           string        `mapstructure:"base_url"`
	Owner             string        `mapstructure:"owner"`
	Repo              string        `mapstructure:"repo"`
	Branch            string        `mapstructure:"branch"`
	Path              string        `mapstructure:"path"`
	Token             string        `mapstructure:"token"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	StaticFile        string        `mapstructure:"static_file"`
}

// SearchConfig 搜尋門檻設定
type SearchConfig struct {
	FuzzyThreshold      float64       `mapstructure:"fuzzy_threshold"`
	FuzzyLimit          int           `mapstructure:"fuzzy_limit"`
	RepositoryThreshold float64       `mapstructure:"repository_threshold"`
	RepositoryLimit     int           `mapstructure:"repository_limit"`
	RepositoryTimeout   time.Duration `mapstructure:"repository_timeout"`
}

// LimitsConfig 單一 LLM 供應商的額度（0 表示不限制）
type LimitsConfig struct {
	RPM      int    `mapstructure:"rpm"`
	TPM      int    `mapstructure:"tpm"`
	RPD      int    `mapstructure:"rpd"`
	TPD      int    `mapstructure:"tpd"`
	Timezone string `mapstructure:"timezone"`
}

// QuotaConfig 額度設定
type QuotaConfig struct {
	Gemini            LimitsConfig `mapstructure:"gemini"`
	Groq              LimitsConfig `mapstructure:"groq"`
	YouTubeDailyUnits int          `mapstructure:"youtube_daily_units"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// LoadConfig 載入設定，.env 不存在時只使用環境變數與預設值
func LoadConfig() (*Config, error) {
	// 加載 .env 文件
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()

	// 設定預設值
	setDefaults(v)

	// 設定環境變數前綴
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("gemini.model", "GEMINI_MODEL")
	_ = v.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = v.BindEnv("groq.model", "GROQ_MODEL")
	_ = v.BindEnv("ai.providers", "AI_PROVIDERS")
	_ = v.BindEnv("cache.backend", "CACHE_BACKEND")
	_ = v.BindEnv("cache.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("cache.redis_password", "REDIS_PASSWORD")
	_ = v.BindEnv("content.token", "GITHUB_TOKEN")
	_ = v.BindEnv("content.owner", "GITHUB_OWNER")
	_ = v.BindEnv("content.repo", "GITHUB_REPO")
	_ = v.BindEnv("rate_limit.enabled", "RATE_LIMIT_ENABLED")
	_ = v.BindEnv("rate_limit.requests", "RATE_LIMIT_REQUESTS")
	_ = v.BindEnv("rate_limit.window", "RATE_LIMIT_WINDOW")
	_ = v.BindEnv("dedup_window", "DEDUP_WINDOW")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	// 設定設定檔名稱和路徑
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")

	// 讀取設定檔
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// logger 尚未初始化，改用 fmt.Println
	fmt.Println("Loading configuration",
		"providers:", v.GetStringSlice("ai.providers"),
		"gemini_api_key:", MaskAPIKey(v.GetString("gemini.api_key")),
		"groq_api_key:", MaskAPIKey(v.GetString("groq.api_key")),
		"cache_backend:", v.GetString("cache.backend"),
	)

	// 解析設定
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.AI.Providers = splitList(config.AI.Providers)

	// 驗證必要設定
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// MaskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// splitList 環境變數可能以 "gemini,groq" 單一字串傳入
func splitList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		for _, p := range strings.Split(it, ",") {
			if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "ai-chef")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.max_body_bytes", 64*1024)

	// Gemini 設定
	v.SetDefault("gemini.enabled", true)
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.timeout", "30s")

	// Groq 設定
	v.SetDefault("groq.enabled", true)
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.timeout", "30s")

	// AI 設定
	v.SetDefault("ai.providers", []string{"gemini", "groq"})
	v.SetDefault("ai.generation_timeout", "40s")
	v.SetDefault("ai.max_tokens", 2048)
	v.SetDefault("ai.temperature", 0.7)
	v.SetDefault("ai.estimated_tokens", 1500)

	// 快取設定（max_size 0 表示不淘汰）
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.max_size", 0)
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_db", 0)

	// 隊列設定
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.max_size", 32)

	// 內容倉庫設定（未設定 GitHub 時使用 static）
	v.SetDefault("content.provider", "static")
	v.SetDefault("content.base_url", "https://api.github.com")
	v.SetDefault("content.branch", "main")
	v.SetDefault("content.path", "content/recipes")
	v.SetDefault("content.cache_ttl", "5m")
	v.SetDefault("content.requests_per_second", 5.0)
	v.SetDefault("content.burst", 10)

	// 搜尋設定
	v.SetDefault("search.fuzzy_threshold", 0.65)
	v.SetDefault("search.fuzzy_limit", 3)
	v.SetDefault("search.repository_threshold", 0.3)
	v.SetDefault("search.repository_limit", 5)
	v.SetDefault("search.repository_timeout", "8s")

	// 額度設定
	v.SetDefault("quota.gemini.rpm", 15)
	v.SetDefault("quota.gemini.tpm", 1000000)
	v.SetDefault("quota.gemini.rpd", 1500)
	v.SetDefault("quota.gemini.tpd", 0)
	v.SetDefault("quota.gemini.timezone", "America/Los_Angeles")
	v.SetDefault("quota.groq.rpm", 30)
	v.SetDefault("quota.groq.tpm", 12000)
	v.SetDefault("quota.groq.rpd", 1000)
	v.SetDefault("quota.groq.tpd", 100000)
	v.SetDefault("quota.groq.timezone", "UTC")
	v.SetDefault("quota.youtube_daily_units", 10000)

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 60)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "2s")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "logs/app.log")
}

var knownProviders = map[string]bool{"gemini": true, "groq": true}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	// 驗證伺服器設定
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	// 驗證 AI 設定
	if len(config.AI.Providers) == 0 {
		return fmt.Errorf("at least one ai provider is required")
	}
	for _, p := range config.AI.Providers {
		if !knownProviders[p] {
			return fmt.Errorf("unknown ai provider %q", p)
		}
	}
	if config.AI.GenerationTimeout <= 0 {
		return fmt.Errorf("invalid ai generation timeout")
	}

	// 驗證快取設定
	switch config.Cache.Backend {
	case "memory":
	case "redis":
		if config.Cache.RedisAddr == "" {
			return fmt.Errorf("cache redis_addr is required for redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", config.Cache.Backend)
	}
	if config.Cache.MaxSize < 0 {
		return fmt.Errorf("invalid cache max size")
	}

	// 驗證隊列設定
	if config.Queue.Workers <= 0 {
		return fmt.Errorf("invalid queue workers")
	}
	if config.Queue.MaxSize < 0 {
		return fmt.Errorf("invalid queue max size")
	}

	// 驗證內容倉庫設定
	switch config.Content.Provider {
	case "github":
		if config.Content.Owner == "" || config.Content.Repo == "" {
			return fmt.Errorf("content owner and repo are required for github provider")
		}
	case "static":
	default:
		return fmt.Errorf("unknown content provider %q", config.Content.Provider)
	}

	// 驗證搜尋設定
	for name, th := range map[string]float64{
		"fuzzy_threshold":      config.Search.FuzzyThreshold,
		"repository_threshold": config.Search.RepositoryThreshold,
	} {
		if th < 0 || th > 1 {
			return fmt.Errorf("search %s must be within [0, 1]", name)
		}
	}
	if config.Search.RepositoryTimeout <= 0 {
		return fmt.Errorf("invalid search repository timeout")
	}

	if config.RateLimit.Enabled && (config.RateLimit.Requests <= 0 || config.RateLimit.Window <= 0) {
		return fmt.Errorf("invalid rate limit")
	}

	return nil
}
