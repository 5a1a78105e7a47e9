package config

import (
	"os"
	"strings"
	"time"
)

type HTTPConfig struct {
	Addr string
}

// AppConfig holds the daemon's configuration, read from environment
// variables with reference defaults.
type AppConfig struct {
	ServiceName string
	LogLevel    string
	AppEnv      string
	HTTP        HTTPConfig

	NATSURL     string
	RedisDSN    string
	DatabaseURL string

	// SyncInterval is the periodic secondary-tier pull cadence.
	SyncInterval time.Duration
}

func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		LogLevel:    strings.TrimSpace(os.Getenv("LOG_LEVEL")),
		AppEnv:      strings.TrimSpace(os.Getenv("APP_ENV")),
		HTTP: HTTPConfig{
			Addr: strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		},
		NATSURL:     strings.TrimSpace(os.Getenv("NATS_URL")),
		RedisDSN:    strings.TrimSpace(os.Getenv("REDIS_DSN")),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		SyncInterval: envDuration("SYNC_INTERVAL", time.Hour),
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "viewtrackd"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return cfg, nil
}

// IsProd reports whether the daemon runs with production guarantees
// (a configured synced tier becomes mandatory).
func (c AppConfig) IsProd() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
