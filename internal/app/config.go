package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"mediastream/internal/domain"
)

type Config struct {
	HTTPAddr           string
	MongoURI           string // empty = resume positions kept in memory only
	MongoDatabase      string
	LogLevel           string
	LogFormat          string
	AllowedOrigins     []string
	RateLimitRPS       float64
	RateLimitBurst     int
	FetchTimeout       time.Duration
	FetchBandwidthBps  int64 // 0 = unlimited
	BroadcastInterval  time.Duration
	ResumeSaveInterval time.Duration

	Streaming domain.StreamingConfig
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DB", "mediastream"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		AllowedOrigins:     splitCommaList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		RateLimitRPS:       float64(getEnvInt64("RATE_LIMIT_RPS", 100)),
		RateLimitBurst:     int(getEnvInt64("RATE_LIMIT_BURST", 200)),
		FetchTimeout:       getEnvDuration("FETCH_TIMEOUT", 30*time.Second),
		FetchBandwidthBps:  getEnvInt64("FETCH_BANDWIDTH_BPS", 0),
		BroadcastInterval:  getEnvDuration("WS_BROADCAST_INTERVAL", time.Second),
		ResumeSaveInterval: getEnvDuration("RESUME_SAVE_INTERVAL", 10*time.Second),
		Streaming:          loadStreamingConfig(),
	}
}

// loadStreamingConfig starts from the video profile and applies any
// STREAM_* overrides.
func loadStreamingConfig() domain.StreamingConfig {
	cfg := domain.VideoProfile()
	if v := getEnvInt64("STREAM_CHUNK_SIZE_BYTES", 0); v > 0 {
		cfg.ChunkSize = uint64(v)
	}
	if v := getEnvInt64("STREAM_MAX_RETRIES", 0); v > 0 {
		cfg.MaxRetries = int(v)
	}
	if v := getEnvDuration("STREAM_RETRY_BASE_DELAY", 0); v > 0 {
		cfg.RetryBaseDelay = v
	}
	if v := getEnvDuration("STREAM_RECOVERY_BASE_DELAY", 0); v > 0 {
		cfg.RecoveryBaseDelay = v
	}
	if v := getEnvInt64("STREAM_MAX_RECOVERY_ATTEMPTS", 0); v > 0 {
		cfg.MaxRecoveryAttempts = int(v)
	}
	if v := getEnvDuration("STREAM_BUFFER_AHEAD", 0); v > 0 {
		cfg.BufferAhead = v
	}
	if v := getEnvDuration("STREAM_BUFFER_BEHIND", 0); v > 0 {
		cfg.BufferBehind = v
	}
	if v := getEnvInt64("STREAM_MAX_CONCURRENT_FETCHES", 0); v > 0 {
		cfg.MaxConcurrentFetches = int(v)
	}
	if v := getEnvInt64("STREAM_ESTIMATED_BYTES_PER_SEC", 0); v > 0 {
		cfg.EstimatedBytesPerSec = v
	}
	if v := getEnvInt64("STREAM_CLEANUP_THRESHOLD_BYTES", 0); v > 0 {
		cfg.CleanupThresholdBytes = v
	}
	if v := getEnvInt64("STREAM_HARD_LIMIT_BYTES", 0); v > 0 {
		cfg.HardLimitBytes = v
	}
	return cfg.Normalize()
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func splitCommaList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
