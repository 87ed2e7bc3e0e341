// internal/config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github-events-monitor/internal/model"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DBURL           string        `mapstructure:"DB_URL"`
	APIAddr         string        `mapstructure:"API_ADDR"`
	GithubToken     string        `mapstructure:"GITHUB_TOKEN"`
	FeedURL         string        `mapstructure:"FEED_URL"`
	EventTypes      []string      `mapstructure:"EVENT_TYPES"`
	PollMinInterval time.Duration `mapstructure:"POLL_MIN_INTERVAL"`
	PollMaxInterval time.Duration `mapstructure:"POLL_MAX_INTERVAL"`
	FeedPerPage     int           `mapstructure:"FEED_PER_PAGE"`
	StoreTimeout    time.Duration `mapstructure:"STORE_TIMEOUT"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("API_ADDR", ":8080")
	viper.SetDefault("FEED_URL", "https://api.github.com/events")
	viper.SetDefault("EVENT_TYPES", model.DefaultEventTypes())
	viper.SetDefault("POLL_MIN_INTERVAL", "30s")
	viper.SetDefault("POLL_MAX_INTERVAL", "300s")
	viper.SetDefault("FEED_PER_PAGE", 100)
	viper.SetDefault("STORE_TIMEOUT", "10s")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate required fields. GITHUB_TOKEN stays optional: the public
	// events feed answers unauthenticated requests at a lower rate limit.
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if len(cfg.EventTypes) == 0 {
		return nil, errors.New("EVENT_TYPES must contain at least one event type")
	}
	if cfg.PollMinInterval <= 0 || cfg.PollMaxInterval < cfg.PollMinInterval {
		return nil, errors.New("POLL_MIN_INTERVAL must be positive and no greater than POLL_MAX_INTERVAL")
	}
	if cfg.FeedPerPage <= 0 || cfg.FeedPerPage > 100 {
		return nil, errors.New("FEED_PER_PAGE must be between 1 and 100")
	}
	if cfg.StoreTimeout <= 0 {
		return nil, errors.New("STORE_TIMEOUT must be a positive duration")
	}

	return &cfg, nil
}
