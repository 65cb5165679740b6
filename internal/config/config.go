package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration, loaded from environment variables
// with sensible defaults for local docker-compose development.
type Config struct {
	Port        string
	Debug       bool
	PostgresDSN string

	MongoURI string
	MongoDB  string

	RedisAddr     string
	RedisPassword string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Research collaborator (OpenAI-compatible chat API).
	ResearchAPIKey  string
	ResearchBaseURL string
	ResearchModel   string

	// Synthesis collaborator.
	SynthesisAPIKey  string
	SynthesisBaseURL string
	SynthesisModel   string

	RequestTimeout     time.Duration
	MaxRetries         int
	IterationDelay     time.Duration
	RequestsPerSecond  float64
	WorkerPollInterval time.Duration
	WorkerConcurrency  int
	ReportTTL          time.Duration
}

// Load reads configuration from the environment.
func Load() *Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DEBUG", false)
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("MONGO_DB", "diligence")
	v.SetDefault("REDIS_ADDR", "redis:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("MINIO_ENDPOINT", "minio:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "")
	v.SetDefault("MINIO_SECRET_KEY", "")
	v.SetDefault("MINIO_BUCKET", "diligence-reports")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("RESEARCH_API_KEY", "")
	v.SetDefault("RESEARCH_BASE_URL", "")
	v.SetDefault("RESEARCH_MODEL", "sonar-pro")
	v.SetDefault("SYNTHESIS_API_KEY", "")
	v.SetDefault("SYNTHESIS_BASE_URL", "")
	v.SetDefault("SYNTHESIS_MODEL", "gpt-4o-mini")
	v.SetDefault("REQUEST_TIMEOUT", "90s")
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("ITERATION_DELAY", "2s")
	v.SetDefault("REQUESTS_PER_SECOND", 0.5)
	v.SetDefault("WORKER_POLL_INTERVAL", "3s")
	v.SetDefault("WORKER_CONCURRENCY", 2)
	v.SetDefault("REPORT_TTL", "720h")

	return &Config{
		Port:               v.GetString("PORT"),
		Debug:              v.GetBool("DEBUG"),
		PostgresDSN:        v.GetString("POSTGRES_DSN"),
		MongoURI:           v.GetString("MONGO_URI"),
		MongoDB:            v.GetString("MONGO_DB"),
		RedisAddr:          v.GetString("REDIS_ADDR"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		MinioEndpoint:      v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey:     v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey:     v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:        v.GetString("MINIO_BUCKET"),
		MinioUseSSL:        v.GetBool("MINIO_USE_SSL"),
		ResearchAPIKey:     v.GetString("RESEARCH_API_KEY"),
		ResearchBaseURL:    v.GetString("RESEARCH_BASE_URL"),
		ResearchModel:      v.GetString("RESEARCH_MODEL"),
		SynthesisAPIKey:    v.GetString("SYNTHESIS_API_KEY"),
		SynthesisBaseURL:   v.GetString("SYNTHESIS_BASE_URL"),
		SynthesisModel:     v.GetString("SYNTHESIS_MODEL"),
		RequestTimeout:     v.GetDuration("REQUEST_TIMEOUT"),
		MaxRetries:         v.GetInt("MAX_RETRIES"),
		IterationDelay:     v.GetDuration("ITERATION_DELAY"),
		RequestsPerSecond:  v.GetFloat64("REQUESTS_PER_SECOND"),
		WorkerPollInterval: v.GetDuration("WORKER_POLL_INTERVAL"),
		WorkerConcurrency:  v.GetInt("WORKER_CONCURRENCY"),
		ReportTTL:          v.GetDuration("REPORT_TTL"),
	}
}
