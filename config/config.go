// Package config loads bot configuration from environment variables.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// LLMConfig holds the language model provider settings.
type LLMConfig struct {
	APIKey      string  `env:"OPENAI_API_KEY,required"`
	BaseURL     string  `env:"OPENAI_BASE_URL"`
	Model       string  `env:"OPENAI_MODEL" envDefault:"gpt-4o"`
	MaxTokens   int     `env:"LLM_MAX_TOKENS" envDefault:"500"`
	Temperature float32 `env:"LLM_TEMPERATURE" envDefault:"0.7"`
}

// ModerationConfig holds the content moderation settings.
type ModerationConfig struct {
	Enabled         bool `env:"MODERATION_ENABLED" envDefault:"true"`
	BlockNSFW       bool `env:"MODERATION_BLOCK_NSFW" envDefault:"true"`
	BlockHarassment bool `env:"MODERATION_BLOCK_HARASSMENT" envDefault:"true"`
	MaxInputLength  int  `env:"MODERATION_MAX_INPUT_LENGTH" envDefault:"5000"`
}

// Config is the complete bot configuration. DatabaseURL is optional; without
// it the bot runs on in-memory storage.
type Config struct {
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	DatabaseURL   string `env:"DATABASE_URL"`
	LLM           LLMConfig
	Moderation    ModerationConfig
}

// LoadConfig reads and validates configuration from the environment.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if cfg.LLM.MaxTokens <= 0 {
		return nil, fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		return nil, fmt.Errorf("LLM_TEMPERATURE must be in [0, 2], got %g", cfg.LLM.Temperature)
	}
	if cfg.Moderation.MaxInputLength <= 0 {
		return nil, fmt.Errorf("MODERATION_MAX_INPUT_LENGTH must be positive, got %d", cfg.Moderation.MaxInputLength)
	}

	return &cfg, nil
}
