package config

import (
	"testing"
	"time"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	if cfg.PresenceTTL != 180*time.Second {
		t.Fatalf("presence ttl = %s, want 180s", cfg.PresenceTTL)
	}
	if cfg.DefaultChannel != "all" {
		t.Fatalf("default channel = %q, want all", cfg.DefaultChannel)
	}
	if cfg.RedisAddr == "" || cfg.LogLevel == "" {
		t.Fatalf("incomplete defaults: %+v", cfg)
	}
}

func TestUpdateFromKeepsUnsetFields(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{
		RedisAddr: "redis.example:6379",
		LogLevel:  "debug",
	})

	if cfg.RedisAddr != "redis.example:6379" {
		t.Fatalf("redis addr = %q", cfg.RedisAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.PresenceTTL != 180*time.Second {
		t.Fatalf("presence ttl should be untouched, got %s", cfg.PresenceTTL)
	}
	if cfg.DefaultChannel != "all" {
		t.Fatalf("default channel should be untouched, got %q", cfg.DefaultChannel)
	}
}
