package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

const defaultSecret = "your-secret-key-change-in-production"

// Config 应用配置
type Config struct {
	Env         string `validate:"oneof=development production test"`
	AppSecret   string `validate:"required"`
	DatabaseURL string `validate:"required"`
	Port        string `validate:"required,numeric"`
	LogLevel    string `validate:"oneof=trace debug info warn error"`
	LogFormat   string `validate:"oneof=json console"`

	// TMDB 海报与简介
	TMDBAPIKey    string
	TMDBImageBase string  `validate:"required,url"`
	TMDBRateLimit float64 `validate:"gt=0"`

	// 编码器与大模型
	OpenAIAPIKey         string
	OpenAIBaseURL        string `validate:"required,url"`
	OpenAIEmbeddingModel string `validate:"required"`
	OpenAIChatModel      string `validate:"required"`
	LLMProvider          string `validate:"oneof=openai gemini"`
	GeminiAPIKey         string
	GeminiModel          string `validate:"required"`
	CLIPEndpoint         string `validate:"required,url"`

	// 入库与相似度重建
	IngestWorkers             int   `validate:"gte=1,lte=64"`
	SimilarityUserCap         int   `validate:"gte=2"`
	SimilaritySeed            int64 // 0 表示每次随机
	SimilarityRebuildInterval time.Duration

	// 在线推荐
	RecommendTimeout   time.Duration `validate:"gt=0"`
	RecommendCacheSize int           `validate:"gte=1"`
	RecommendCacheTTL  time.Duration `validate:"gt=0"`
	VectorCache        bool
	VectorCacheRefresh time.Duration // 0 表示不定时重新加载
}

// Load 加载配置
func Load() (*Config, error) {
	dbUser := getEnv("DB_USER", "postgres")
	dbPass := getEnv("DB_PASSWORD", "pass")
	dbHost := getEnv("DB_HOST", "localhost")
	dbPort := getEnv("DB_PORT", "5432")
	dbName := getEnv("DB_NAME", "postgres")
	dbSSL := getEnv("DB_SSLMODE", "disable")

	dbURL := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		dbUser, dbPass, dbHost, dbPort, dbName, dbSSL)

	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		AppSecret:   getEnv("APP_SECRET", defaultSecret),
		DatabaseURL: getEnv("DATABASE_URL", dbURL),
		Port:        getEnv("PORT", "5005"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),

		TMDBAPIKey:    getEnv("TMDB_API_KEY", ""),
		TMDBImageBase: getEnv("TMDB_IMAGE_BASE", "https://image.tmdb.org/t/p/w500"),
		TMDBRateLimit: getEnvFloat("TMDB_RATE_LIMIT", 20),

		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
		OpenAIChatModel:      getEnv("OPENAI_CHAT_MODEL", "gpt-4o-2024-08-06"),
		LLMProvider:          getEnv("LLM_PROVIDER", "openai"),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModel:          getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		CLIPEndpoint:         getEnv("CLIP_ENDPOINT", "http://localhost:8001"),

		IngestWorkers:             getEnvInt("INGEST_WORKERS", 4),
		SimilarityUserCap:         getEnvInt("SIMILARITY_USER_CAP", 20000),
		SimilaritySeed:            int64(getEnvInt("SIMILARITY_SEED", 0)),
		SimilarityRebuildInterval: getEnvDuration("SIMILARITY_REBUILD_INTERVAL", 0),

		RecommendTimeout:   getEnvDuration("RECOMMEND_TIMEOUT", 5*time.Second),
		RecommendCacheSize: getEnvInt("RECOMMEND_CACHE_SIZE", 1000),
		RecommendCacheTTL:  getEnvDuration("RECOMMEND_CACHE_TTL", 10*time.Minute),
		VectorCache:        getEnvBool("VECTOR_CACHE", false),
		VectorCacheRefresh: getEnvDuration("VECTOR_CACHE_REFRESH", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	if c.Env == "production" && c.AppSecret == defaultSecret {
		return fmt.Errorf("生产环境禁止使用默认密钥，请设置 APP_SECRET")
	}
	return nil
}

// IsProduction 是否生产环境
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v, err := time.ParseDuration(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}
