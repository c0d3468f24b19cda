package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, with environment
// variables taking precedence for deployment-specific values.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	NATS struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
	Time struct {
		SourceURL         string `yaml:"source_url"`
		StaleAfterSeconds int    `yaml:"stale_after_seconds"`
	} `yaml:"time"`
	Presence struct {
		TTLSeconds           int `yaml:"ttl_seconds"`
		SweepIntervalSeconds int `yaml:"sweep_interval_seconds"`
	} `yaml:"presence"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the YAML config file and layers environment overrides on
// top. A missing file is not an error; everything has a default.
func loadConfig(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.Port = getEnv("PORT", defaultString(config.Server.Port, "8080"))
	config.NATS.URL = getEnv("NATS_URL", defaultString(config.NATS.URL, "nats://localhost:4222"))
	config.Time.SourceURL = getEnv("TIME_SOURCE_URL", config.Time.SourceURL)
	config.Time.StaleAfterSeconds = getEnvAsInt("TIME_STALE_AFTER_SECONDS", defaultInt(config.Time.StaleAfterSeconds, 300))
	config.Presence.TTLSeconds = getEnvAsInt("PRESENCE_TTL_SECONDS", defaultInt(config.Presence.TTLSeconds, 30))
	config.Presence.SweepIntervalSeconds = getEnvAsInt("PRESENCE_SWEEP_INTERVAL_SECONDS", defaultInt(config.Presence.SweepIntervalSeconds, 10))

	return &config, nil
}

func (c *Config) staleAfter() time.Duration {
	return time.Duration(c.Time.StaleAfterSeconds) * time.Second
}

func (c *Config) presenceTTL() time.Duration {
	return time.Duration(c.Presence.TTLSeconds) * time.Second
}

func (c *Config) presenceSweepInterval() time.Duration {
	return time.Duration(c.Presence.SweepIntervalSeconds) * time.Second
}

func defaultString(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}
