package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	MediaDir    string
	FFProbePath string

	Tolerance        time.Duration // sync tolerance announced to clients
	HandshakeTimeout time.Duration // per-client file-ready ack bound
	StatusTimeout    time.Duration // per-client status/resync probe bound
	PollInterval     time.Duration // nominal position poll tick

	RateLimitRPS   float64
	RateLimitBurst int
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		MediaDir:    getEnv("MEDIA_DIR", "media"),
		FFProbePath: getEnv("FFPROBE_PATH", "ffprobe"),

		Tolerance:        getEnvMillis("SYNC_TOLERANCE_MS", 70),
		HandshakeTimeout: getEnvMillis("HANDSHAKE_TIMEOUT_MS", 60_000),
		StatusTimeout:    getEnvMillis("STATUS_TIMEOUT_MS", 5_000),
		PollInterval:     getEnvMillis("POLL_INTERVAL_MS", 100),

		RateLimitRPS:   getEnvFloat("RATE_LIMIT_RPS", 50),
		RateLimitBurst: int(getEnvInt64("RATE_LIMIT_BURST", 100)),
	}
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

func getEnvMillis(key string, fallbackMs int64) time.Duration {
	return time.Duration(getEnvInt64(key, fallbackMs)) * time.Millisecond
}

func getEnvFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
