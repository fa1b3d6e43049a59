package config

import "time"

// Config holds client configuration values.
type Config struct {
	RedisAddr      string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db" yaml:"redis_db"`
	PresenceTTL    time.Duration `mapstructure:"presence_ttl" yaml:"presence_ttl"`
	StopTimeout    time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	EventBuffer    int           `mapstructure:"event_buffer" yaml:"event_buffer"`
	HistoryPath    string        `mapstructure:"history_path" yaml:"history_path"`
	DefaultChannel string        `mapstructure:"default_channel" yaml:"default_channel"`
	LogLevel       string        `mapstructure:"log_level" yaml:"log_level"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		RedisDB:        0,
		PresenceTTL:    180 * time.Second,
		StopTimeout:    5 * time.Second,
		EventBuffer:    64,
		HistoryPath:    "redischat.db",
		DefaultChannel: "all",
		LogLevel:       "info",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
	if other.RedisPassword != "" {
		c.RedisPassword = other.RedisPassword
	}
	if other.RedisDB != 0 {
		c.RedisDB = other.RedisDB
	}
	if other.PresenceTTL != 0 {
		c.PresenceTTL = other.PresenceTTL
	}
	if other.StopTimeout != 0 {
		c.StopTimeout = other.StopTimeout
	}
	if other.EventBuffer != 0 {
		c.EventBuffer = other.EventBuffer
	}
	if other.HistoryPath != "" {
		c.HistoryPath = other.HistoryPath
	}
	if other.DefaultChannel != "" {
		c.DefaultChannel = other.DefaultChannel
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}
