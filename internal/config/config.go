package config

import (
	"os"
	"time"
)

type Config struct {
	DBPath        string
	AssetPath     string
	LockTTL       time.Duration
	SweepInterval time.Duration
}

func Load() Config {
	return Config{
		DBPath:        envOr("WIKI_DB_PATH", "wiki.db"),
		AssetPath:     envOr("WIKI_ASSET_PATH", "assets"),
		LockTTL:       parseDurationOr("WIKI_LOCK_TTL", 30*time.Minute),
		SweepInterval: parseDurationOr("WIKI_LOCK_SWEEP_INTERVAL", 10*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
