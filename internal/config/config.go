package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/lexgraph/lexgraph/pkg/logger"

	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
)

// Config holds all environment-derived settings. It is loaded once at startup
// and passed into constructors; no component reads the process environment
// directly.
type Config struct {
	DatabaseURL string `validate:"required"`
	RedisURL    string

	AIProvider string `validate:"oneof=openai ollama"`
	APIKey     string
	BaseURL    string

	EmbeddingModel  string `validate:"required"`
	EmbeddingDim    int    `validate:"gt=0"`
	ExtractionModel string `validate:"required"`
	AnswerModel     string `validate:"required"`

	ChunkSize            int `validate:"gt=0"`
	ChunkOverlap         int `validate:"gte=0"`
	PagesPerBatch        int `validate:"gt=0"`
	MaxConcurrentBatches int `validate:"gt=0"`

	TopK          int     `validate:"gte=0"`
	MaxDepth      int     `validate:"gte=0"`
	VectorWeight  float64 `validate:"gte=0"`
	KeywordWeight float64 `validate:"gte=0"`
	HybridSearch  bool

	MaxRetries            int   `validate:"gt=0"`
	MaxConcurrentRequests int64 `validate:"gt=0"`

	Port  string
	Debug bool
}

// Load reads the environment (plus an optional .env file) into a validated
// Config. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, using system environment variables")
	}

	cfg := &Config{
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		AIProvider: getEnv("AI_PROVIDER", "openai"),
		APIKey:     getEnv("AI_API_KEY", ""),
		BaseURL:    getEnv("AI_BASE_URL", ""),

		EmbeddingModel:  getEnv("AI_EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:    getEnvInt("AI_EMBEDDING_DIM", 1536),
		ExtractionModel: getEnv("AI_EXTRACTION_MODEL", "gpt-4o-mini"),
		AnswerModel:     getEnv("AI_ANSWER_MODEL", "gpt-4o-mini"),

		ChunkSize:            getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:         getEnvInt("CHUNK_OVERLAP", 200),
		PagesPerBatch:        getEnvInt("PAGES_PER_BATCH", 25),
		MaxConcurrentBatches: getEnvInt("MAX_CONCURRENT_BATCHES", 3),

		TopK:          getEnvInt("SEARCH_TOP_K", 5),
		MaxDepth:      getEnvInt("SEARCH_MAX_DEPTH", 2),
		VectorWeight:  getEnvFloat("SEARCH_VECTOR_WEIGHT", 0.7),
		KeywordWeight: getEnvFloat("SEARCH_KEYWORD_WEIGHT", 0.3),
		HybridSearch:  getEnvBool("SEARCH_HYBRID", true),

		MaxRetries:            getEnvInt("AI_MAX_RETRIES", 3),
		MaxConcurrentRequests: int64(getEnvInt("AI_MAX_CONCURRENT_REQUESTS", 8)),

		Port:  getEnv("PORT", "8080"),
		Debug: getEnvBool("DEBUG", false),
	}

	if cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", cfg.ChunkOverlap, cfg.ChunkSize)
	}
	if cfg.AIProvider == "openai" && cfg.APIKey == "" {
		return nil, fmt.Errorf("AI_API_KEY is required for the openai provider")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvBool(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if value == "true" || value == "false" {
		return value == "true"
	}
	return defaultValue
}
