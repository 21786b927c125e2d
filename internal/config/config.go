package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Cache         CacheConfig         `mapstructure:"cache" validate:"required"`
	Pipeline      PipelineConfig      `mapstructure:"pipeline" validate:"required"`
	Transcription TranscriptionConfig `mapstructure:"transcription" validate:"required"`
	LLM           LLMConfig           `mapstructure:"llm"`
}

// ServerConfig contains all HTTP server related settings.
type ServerConfig struct {
	Port      int    `mapstructure:"port"       validate:"required,gt=0,lt=65536"`
	LogLevel  string `mapstructure:"log_level"  validate:"required,oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"required,oneof=json text"`
}

// RedisConfig contains settings for the distributed cache tier. An empty
// address means the service runs with the local tier only.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig tunes the resilient cache layer.
type CacheConfig struct {
	DefaultTTL       time.Duration `mapstructure:"default_ttl"       validate:"required"`
	LocalCapacity    int           `mapstructure:"local_capacity"    validate:"required,gt=0"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"  validate:"required"`
	BreakerThreshold uint32        `mapstructure:"breaker_threshold" validate:"required,gt=0"`
}

// PipelineConfig tunes the request orchestrator.
type PipelineConfig struct {
	MaxConcurrent     int           `mapstructure:"max_concurrent"     validate:"required,gt=0"`
	GenerationTimeout time.Duration `mapstructure:"generation_timeout" validate:"required"`
	PersistTimeout    time.Duration `mapstructure:"persist_timeout"    validate:"required"`
	MinTextLength     int           `mapstructure:"min_text_length"    validate:"required,gt=0"`
	MaxTextLength     int           `mapstructure:"max_text_length"    validate:"required,gt=0"`
	MaxAudioBytes     int           `mapstructure:"max_audio_bytes"    validate:"required,gt=0"`
}

// TranscriptionConfig tunes the transcription poll loop.
type TranscriptionConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"required"`
	MaxAttempts  int           `mapstructure:"max_attempts"  validate:"required,gt=0"`
}

// LLMConfig contains generation collaborator settings. An empty API key makes
// the server fall back to the built-in stub generator.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}
