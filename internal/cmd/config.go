package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML file. Environment variables override the
// connection settings; the YAML carries the protocol tuning.
type Config struct {
	Realtime struct {
		PresenceLivenessSec   int `yaml:"presence_liveness_sec"`
		PublishIntervalMs     int `yaml:"publish_interval_ms"`
		SessionAdoptWindowSec int `yaml:"session_adopt_window_sec"`
	} `yaml:"realtime"`
	Corpus struct {
		Dir string `yaml:"dir"`
	} `yaml:"corpus"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
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

func loadConfig(path string) (*Config, error) {
	config := &Config{}
	config.Corpus.Dir = "fixtures"

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return config, nil
}

func (c *Config) presenceLiveness() time.Duration {
	if c.Realtime.PresenceLivenessSec > 0 {
		return time.Duration(c.Realtime.PresenceLivenessSec) * time.Second
	}
	return 60 * time.Second
}

func (c *Config) publishInterval() time.Duration {
	if c.Realtime.PublishIntervalMs > 0 {
		return time.Duration(c.Realtime.PublishIntervalMs) * time.Millisecond
	}
	return 50 * time.Millisecond
}

func (c *Config) adoptWindow() time.Duration {
	if c.Realtime.SessionAdoptWindowSec > 0 {
		return time.Duration(c.Realtime.SessionAdoptWindowSec) * time.Second
	}
	return 5 * time.Second
}
