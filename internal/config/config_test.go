package config

import (
	"strings"
	"testing"
	"time"
)

func defaultConfig() *Config {
	return &Config{
		Host:                "0.0.0.0",
		Port:                8080,
		ParserURL:           "https://rates.emcont.com/",
		ParserInterval:      time.Second,
		ParserTimeout:       500 * time.Millisecond,
		HistoryPeriod:       1800,
		NotifierConcurrency: 5,
		NotifierQueueSize:   100,
		DBConcurrency:       1,
		DBQueueSize:         100,
		WorkerTimeout:       500 * time.Millisecond,
		DB:                  "redis",
		RedisHost:           "redis",
		RedisPort:           6379,
		FrameRateLimit:      10,
		FrameRateBurst:      20,
		MetricsInterval:     15 * time.Second,
		ShutdownGrace:       10 * time.Second,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

func TestValidate_Defaults(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"bad port", func(c *Config) { c.Port = 0 }, "PORT"},
		{"bad history period", func(c *Config) { c.HistoryPeriod = 0 }, "HISTORY_PERIOD"},
		{"bad interval", func(c *Config) { c.ParserInterval = 0 }, "PARSER_INTERVAL"},
		{"bad timeout", func(c *Config) { c.ParserTimeout = 0 }, "PARSER_TIMEOUT"},
		{"bad notifier concurrency", func(c *Config) { c.NotifierConcurrency = 0 }, "NOTIFIER_WORKER_CONCURRENCY"},
		{"bad db queue", func(c *Config) { c.DBQueueSize = 0 }, "DB_QUEUE_SIZE"},
		{"burst below rate", func(c *Config) { c.FrameRateBurst = 5 }, "FRAME_RATE_BURST"},
		{"unknown db", func(c *Config) { c.DB = "cassandra" }, "DB must be"},
		{"unknown log level", func(c *Config) { c.LogLevel = "verbose" }, "LOG_LEVEL"},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.Addr(); got != "0.0.0.0:8080" {
		t.Fatalf("Addr() = %q", got)
	}
	if got := cfg.RedisAddr(); got != "redis:6379" {
		t.Fatalf("RedisAddr() = %q", got)
	}
}
