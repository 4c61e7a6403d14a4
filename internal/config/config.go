// Package config загружает конфигурацию сервиса из окружения и .env
package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Режимы эмбеддера
const (
	EmbedderLocal  = "local"
	EmbedderRemote = "remote"
)

// Config содержит конфигурацию сервиса
type Config struct {
	ServerAddr    string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Embedder            string
	EmbeddingServiceURL string
	EmbeddingTimeout    time.Duration
	EmbeddingSeed       uint64
	FeatureCacheTTL     time.Duration

	DefaultHeartRate float64
	MaxBodyBytes     int64
	RequestTimeout   time.Duration

	WorkerCount int
	BufferSize  int

	LogLevel  string
	LogFormat string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Load читает .env (если есть) и переменные окружения
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ServerAddr:    getEnv("SERVER_ADDR", ":5001"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		Embedder:            getEnv("EMBEDDER", EmbedderLocal),
		EmbeddingServiceURL: getEnv("EMBEDDING_SERVICE_URL", "http://localhost:5002"),
		EmbeddingTimeout:    getEnvDuration("EMBEDDING_TIMEOUT", 30*time.Second),
		EmbeddingSeed:       uint64(getEnvInt("EMBEDDING_SEED", 42)),
		FeatureCacheTTL:     getEnvDuration("FEATURE_CACHE_TTL", time.Hour),

		DefaultHeartRate: getEnvFloat("DEFAULT_HEART_RATE", 75),
		MaxBodyBytes:     int64(getEnvInt("MAX_BODY_BYTES", 32<<20)),
		RequestTimeout:   getEnvDuration("REQUEST_TIMEOUT", 60*time.Second),

		WorkerCount: getEnvInt("WORKER_COUNT", runtime.NumCPU()),
		BufferSize:  getEnvInt("BUFFER_SIZE", 1000),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// getEnv получает переменную окружения со значением по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			return n
		}
	}
	return defaultValue
}

// getEnvFloat получает вещественную переменную окружения
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration получает длительность ("30s", "5m")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
