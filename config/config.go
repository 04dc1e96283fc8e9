// Package config provides configuration for the concierge service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the concierge configuration.
type Config struct {
	// Server settings
	HTTPPort int `yaml:"http_port"`

	// Database
	DatabaseURL string `yaml:"database_url"`

	// AI assistant backend
	AssistantURL     string        `yaml:"assistant_url"`
	AssistantAPIKey  string        `yaml:"assistant_api_key"`
	AssistantTimeout time.Duration `yaml:"assistant_timeout"`
	Personality      string        `yaml:"personality"`

	// Classification / code issuance backend
	ClassifyURL     string        `yaml:"classify_url"`
	ClassifyTimeout time.Duration `yaml:"classify_timeout"`

	// Networked speech synthesis provider
	SpeechURL     string        `yaml:"speech_url"`
	SpeechTimeout time.Duration `yaml:"speech_timeout"`
	SpeechVoice   string        `yaml:"speech_voice"`

	// Dialogue pacing
	ThinkingDelay time.Duration `yaml:"thinking_delay"`

	// Session janitor
	JanitorSchedule  string        `yaml:"janitor_schedule"`
	SessionRetention time.Duration `yaml:"session_retention"`

	// Logging
	LogLevel string `yaml:"log_level"`
}

// Load loads configuration from the optional CONFIG_FILE and environment
// variables. Environment variables take precedence over the file.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTPPort:         8080,
		DatabaseURL:      "file:concierge.db?cache=shared&mode=rwc",
		AssistantTimeout: 30 * time.Second,
		Personality:      "friendly",
		ClassifyTimeout:  15 * time.Second,
		SpeechTimeout:    10 * time.Second,
		SpeechVoice:      "female",
		ThinkingDelay:    1200 * time.Millisecond,
		JanitorSchedule:  "@hourly",
		SessionRetention: 72 * time.Hour,
		LogLevel:         "info",
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTPPort = getEnvInt("HTTP_PORT", c.HTTPPort)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.AssistantURL = getEnv("ASSISTANT_URL", c.AssistantURL)
	c.AssistantAPIKey = getEnv("ASSISTANT_API_KEY", c.AssistantAPIKey)
	c.AssistantTimeout = getEnvDuration("ASSISTANT_TIMEOUT_MS", c.AssistantTimeout)
	c.Personality = getEnv("PERSONALITY", c.Personality)
	c.ClassifyURL = getEnv("CLASSIFY_URL", c.ClassifyURL)
	c.ClassifyTimeout = getEnvDuration("CLASSIFY_TIMEOUT_MS", c.ClassifyTimeout)
	c.SpeechURL = getEnv("SPEECH_URL", c.SpeechURL)
	c.SpeechTimeout = getEnvDuration("SPEECH_TIMEOUT_MS", c.SpeechTimeout)
	c.SpeechVoice = getEnv("SPEECH_VOICE", c.SpeechVoice)
	c.ThinkingDelay = getEnvDuration("THINKING_DELAY_MS", c.ThinkingDelay)
	c.JanitorSchedule = getEnv("JANITOR_SCHEDULE", c.JanitorSchedule)
	c.SessionRetention = getEnvDuration("SESSION_RETENTION_MS", c.SessionRetention)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return time.Duration(intVal) * time.Millisecond
		}
	}
	return defaultVal
}
