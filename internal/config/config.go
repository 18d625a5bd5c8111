package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all configuration for the tags worker and bot
type Config struct {
	// Worker configuration
	WorkerID string `env:"WORKER_ID" envDefault:"tags-1"`

	// Redis configuration
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASS" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	KeyPrefix     string `env:"REDIS_KEY_PREFIX" envDefault:"tags"`

	// Stream configuration
	InvokeStream  string        `env:"INVOKE_STREAM" envDefault:"tags.invoke"`
	ConsumerGroup string        `env:"CONSUMER_GROUP" envDefault:"tags-workers"`
	ResultStream  string        `env:"RESULT_STREAM" envDefault:"tags.output"`
	BlockTime     time.Duration `env:"BLOCK_TIME" envDefault:"1s"`

	// TagScript limits
	TagScriptLimit int  `env:"TAGSCRIPT_LIMIT" envDefault:"10000"`
	BodyLimit      int  `env:"BODY_LIMIT" envDefault:"2000"`
	MaxDepth       int  `env:"MAX_DEPTH" envDefault:"32"`
	MaxGuildTags   int  `env:"MAX_GUILD_TAGS" envDefault:"250"`
	MaxGlobalTags  int  `env:"MAX_GLOBAL_TAGS" envDefault:"250"`
	DotParameter   bool `env:"DOT_PARAMETER" envDefault:"false"`

	// Discord configuration, the bot frontend is disabled without a token
	DiscordToken  string   `env:"DISCORD_TOKEN"`
	CommandPrefix string   `env:"COMMAND_PREFIX" envDefault:"!"`
	BotOwners     []string `env:"BOT_OWNERS" envSeparator:","`

	// MessagesFile optionally overrides feedback messages, YAML name -> template
	MessagesFile string `env:"MESSAGES_FILE"`

	// Health check configuration
	HealthPort int `env:"HEALTH_PORT" envDefault:"8082"`

	// Logging configuration
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.WorkerID == "" {
		return fmt.Errorf("WORKER_ID is required")
	}

	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	if c.KeyPrefix == "" {
		return fmt.Errorf("REDIS_KEY_PREFIX is required")
	}

	if c.InvokeStream == "" {
		return fmt.Errorf("INVOKE_STREAM is required")
	}

	if c.ConsumerGroup == "" {
		return fmt.Errorf("CONSUMER_GROUP is required")
	}

	if c.ResultStream == "" {
		return fmt.Errorf("RESULT_STREAM is required")
	}

	if c.BlockTime <= 0 {
		return fmt.Errorf("BLOCK_TIME must be positive")
	}

	if c.TagScriptLimit <= 0 {
		return fmt.Errorf("TAGSCRIPT_LIMIT must be positive")
	}

	if c.BodyLimit <= 0 {
		return fmt.Errorf("BODY_LIMIT must be positive")
	}

	if c.MaxDepth <= 0 {
		return fmt.Errorf("MAX_DEPTH must be positive")
	}

	if c.MaxGuildTags < 0 || c.MaxGlobalTags < 0 {
		return fmt.Errorf("MAX_GUILD_TAGS and MAX_GLOBAL_TAGS must be non-negative")
	}

	if c.CommandPrefix == "" {
		return fmt.Errorf("COMMAND_PREFIX is required")
	}

	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("HEALTH_PORT must be between 1 and 65535")
	}

	if !isValidLogLevel(c.LogLevel) {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	return nil
}

// isValidLogLevel checks if the log level is valid
func isValidLogLevel(level string) bool {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	return validLevels[level]
}

// DiscordEnabled reports whether the bot frontend should start
func (c *Config) DiscordEnabled() bool {
	return c.DiscordToken != ""
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{WorkerID=%s, RedisAddr=%s, RedisDB=%d, KeyPrefix=%s, InvokeStream=%s, ConsumerGroup=%s, "+
			"ResultStream=%s, TagScriptLimit=%d, BodyLimit=%d, MaxDepth=%d, MaxGuildTags=%d, MaxGlobalTags=%d, "+
			"Discord=%v, CommandPrefix=%s, HealthPort=%d, LogLevel=%s}",
		c.WorkerID,
		c.RedisAddr,
		c.RedisDB,
		c.KeyPrefix,
		c.InvokeStream,
		c.ConsumerGroup,
		c.ResultStream,
		c.TagScriptLimit,
		c.BodyLimit,
		c.MaxDepth,
		c.MaxGuildTags,
		c.MaxGlobalTags,
		c.DiscordEnabled(),
		c.CommandPrefix,
		c.HealthPort,
		c.LogLevel,
	)
}
