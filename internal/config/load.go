// Package config loads and validates application configuration from
// environment variables and an optional YAML file. Environment variables
// take precedence over file values.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from the environment (prefix SITEGEN_) and an
// optional config.yaml in the working directory, applies defaults, and
// validates the result.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env and defaults carry the load.
	}

	v.SetEnvPrefix("SITEGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Pipeline.MinTextLength >= cfg.Pipeline.MaxTextLength {
		return nil, fmt.Errorf("invalid configuration: min_text_length must be below max_text_length")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("cache.default_ttl", time.Hour)
	v.SetDefault("cache.local_capacity", 100)
	v.SetDefault("cache.breaker_cooldown", 30*time.Second)
	v.SetDefault("cache.breaker_threshold", 3)

	v.SetDefault("pipeline.max_concurrent", 5)
	v.SetDefault("pipeline.generation_timeout", 2*time.Minute)
	v.SetDefault("pipeline.persist_timeout", 15*time.Second)
	v.SetDefault("pipeline.min_text_length", 10)
	v.SetDefault("pipeline.max_text_length", 10000)
	v.SetDefault("pipeline.max_audio_bytes", 25*1024*1024)

	v.SetDefault("transcription.poll_interval", 3*time.Second)
	v.SetDefault("transcription.max_attempts", 60)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
}
