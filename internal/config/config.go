package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all server configuration.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	// Listen address
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8080"`

	// Upstream poller
	ParserURL      string        `env:"PARSER_URL" envDefault:"https://rates.emcont.com/"`
	ParserInterval time.Duration `env:"PARSER_INTERVAL" envDefault:"1s"`
	ParserTimeout  time.Duration `env:"PARSER_TIMEOUT" envDefault:"500ms"`

	// Retention window in seconds. Under the Redis store it is also the
	// per-key list entry cap.
	HistoryPeriod int `env:"HISTORY_PERIOD" envDefault:"1800"`

	// Worker pools
	NotifierConcurrency int           `env:"NOTIFIER_WORKER_CONCURRENCY" envDefault:"5"`
	NotifierQueueSize   int           `env:"NOTIFIER_QUEUE_SIZE" envDefault:"100"`
	DBConcurrency       int           `env:"DB_WORKER_CONCURRENCY" envDefault:"1"`
	DBQueueSize         int           `env:"DB_QUEUE_SIZE" envDefault:"100"`
	WorkerTimeout       time.Duration `env:"WORKER_TIMEOUT" envDefault:"500ms"`

	// Storage backend: redis or mongo
	DB        string `env:"DB" envDefault:"redis"`
	MongoURI  string `env:"MONGO_URI" envDefault:"mongodb://mongo:27017"`
	RedisHost string `env:"REDIS_HOST" envDefault:"redis"`
	RedisPort int    `env:"REDIS_PORT" envDefault:"6379"`

	// Optional NATS publisher for derived points. Empty disables it.
	NATSURL string `env:"NATS_URL" envDefault:""`

	// Symbol table as id:name pairs
	AvailableSymbols string `env:"AVAILABLE_SYMBOLS" envDefault:"1:EURUSD,2:USDJPY,3:GBPUSD,4:AUDUSD,5:USDCAD"`

	// Inbound frame rate limiting per connection
	FrameRateLimit int `env:"FRAME_RATE_LIMIT" envDefault:"10"`
	FrameRateBurst int `env:"FRAME_RATE_BURST" envDefault:"20"`

	// Monitoring
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"15s"`

	// Shutdown drain bound
	ShutdownGrace time.Duration `env:"SHUTDOWN_GRACE" envDefault:"10s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from .env file and environment variables.
// Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	// .env file is a development convenience; in containers plain
	// environment variables are used directly.
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("No .env file found (using environment variables only)")
		}
	} else if logger != nil {
		logger.Info().Msg("Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be 1-65535, got %d", c.Port)
	}
	if c.HistoryPeriod < 1 {
		return fmt.Errorf("HISTORY_PERIOD must be > 0, got %d", c.HistoryPeriod)
	}
	if c.ParserInterval <= 0 {
		return fmt.Errorf("PARSER_INTERVAL must be > 0, got %s", c.ParserInterval)
	}
	if c.ParserTimeout <= 0 {
		return fmt.Errorf("PARSER_TIMEOUT must be > 0, got %s", c.ParserTimeout)
	}
	if c.NotifierConcurrency < 1 {
		return fmt.Errorf("NOTIFIER_WORKER_CONCURRENCY must be > 0, got %d", c.NotifierConcurrency)
	}
	if c.NotifierQueueSize < 1 {
		return fmt.Errorf("NOTIFIER_QUEUE_SIZE must be > 0, got %d", c.NotifierQueueSize)
	}
	if c.DBConcurrency < 1 {
		return fmt.Errorf("DB_WORKER_CONCURRENCY must be > 0, got %d", c.DBConcurrency)
	}
	if c.DBQueueSize < 1 {
		return fmt.Errorf("DB_QUEUE_SIZE must be > 0, got %d", c.DBQueueSize)
	}
	if c.FrameRateLimit < 1 {
		return fmt.Errorf("FRAME_RATE_LIMIT must be > 0, got %d", c.FrameRateLimit)
	}
	if c.FrameRateBurst < c.FrameRateLimit {
		return fmt.Errorf("FRAME_RATE_BURST (%d) must be >= FRAME_RATE_LIMIT (%d)",
			c.FrameRateBurst, c.FrameRateLimit)
	}

	switch c.DB {
	case "redis", "mongo":
	default:
		return fmt.Errorf("DB must be one of: redis, mongo (got: %s)", c.DB)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RedisAddr returns the Redis endpoint in host:port form.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// LogConfig logs the effective configuration using structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("addr", c.Addr()).
		Str("parser_url", c.ParserURL).
		Dur("parser_interval", c.ParserInterval).
		Dur("parser_timeout", c.ParserTimeout).
		Int("history_period", c.HistoryPeriod).
		Int("notifier_concurrency", c.NotifierConcurrency).
		Int("notifier_queue_size", c.NotifierQueueSize).
		Int("db_concurrency", c.DBConcurrency).
		Int("db_queue_size", c.DBQueueSize).
		Dur("worker_timeout", c.WorkerTimeout).
		Str("db", c.DB).
		Str("nats_url", c.NATSURL).
		Int("frame_rate_limit", c.FrameRateLimit).
		Dur("metrics_interval", c.MetricsInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("Server configuration loaded")
}
