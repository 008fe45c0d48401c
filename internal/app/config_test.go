package app

import (
	"os"
	"testing"
	"time"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	// Clear all env vars that LoadConfig reads so we get pure defaults.
	envVars := []string{
		"HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT", "MEDIA_DIR", "FFPROBE_PATH",
		"SYNC_TOLERANCE_MS", "HANDSHAKE_TIMEOUT_MS", "STATUS_TIMEOUT_MS",
		"POLL_INTERVAL_MS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":8080"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogFormat", cfg.LogFormat, "text"},
		{"MediaDir", cfg.MediaDir, "media"},
		{"FFProbePath", cfg.FFProbePath, "ffprobe"},
		{"Tolerance", cfg.Tolerance, 70 * time.Millisecond},
		{"HandshakeTimeout", cfg.HandshakeTimeout, 60 * time.Second},
		{"StatusTimeout", cfg.StatusTimeout, 5 * time.Second},
		{"PollInterval", cfg.PollInterval, 100 * time.Millisecond},
		{"RateLimitRPS", cfg.RateLimitRPS, 50.0},
		{"RateLimitBurst", cfg.RateLimitBurst, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	setEnvs(t, map[string]string{
		"HTTP_ADDR":            ":9090",
		"LOG_LEVEL":            "DEBUG",
		"LOG_FORMAT":           "JSON",
		"MEDIA_DIR":            "/srv/media",
		"FFPROBE_PATH":         "/usr/bin/ffprobe",
		"SYNC_TOLERANCE_MS":    "120",
		"HANDSHAKE_TIMEOUT_MS": "30000",
		"STATUS_TIMEOUT_MS":    "2500",
		"POLL_INTERVAL_MS":     "50",
		"RATE_LIMIT_RPS":       "10",
		"RATE_LIMIT_BURST":     "20",
	})

	cfg := LoadConfig()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"HTTPAddr", cfg.HTTPAddr, ":9090"},
		{"LogLevel", cfg.LogLevel, "debug"},
		{"LogFormat", cfg.LogFormat, "json"},
		{"MediaDir", cfg.MediaDir, "/srv/media"},
		{"FFProbePath", cfg.FFProbePath, "/usr/bin/ffprobe"},
		{"Tolerance", cfg.Tolerance, 120 * time.Millisecond},
		{"HandshakeTimeout", cfg.HandshakeTimeout, 30 * time.Second},
		{"StatusTimeout", cfg.StatusTimeout, 2500 * time.Millisecond},
		{"PollInterval", cfg.PollInterval, 50 * time.Millisecond},
		{"RateLimitRPS", cfg.RateLimitRPS, 10.0},
		{"RateLimitBurst", cfg.RateLimitBurst, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", tt.got, tt.got, tt.want, tt.want)
			}
		})
	}
}

func TestLoadConfigIgnoresInvalidNumbers(t *testing.T) {
	setEnvs(t, map[string]string{
		"SYNC_TOLERANCE_MS": "not-a-number",
		"POLL_INTERVAL_MS":  "-5",
		"RATE_LIMIT_RPS":    "0",
	})

	cfg := LoadConfig()
	if cfg.Tolerance != 70*time.Millisecond {
		t.Errorf("Tolerance = %v, want default", cfg.Tolerance)
	}
	if cfg.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want default", cfg.PollInterval)
	}
	if cfg.RateLimitRPS != 50.0 {
		t.Errorf("RateLimitRPS = %v, want default", cfg.RateLimitRPS)
	}
}
