package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	BaseURL  string `json:"base_url"`
	Token    string `json:"token"`
	Model    string `json:"model"`
	LogLevel string `json:"log_level"`
	History  struct {
		MaxContextTokens int `json:"max_context_tokens"`
		OutputReserve    int `json:"output_reserve"`
	} `json:"history"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.BaseURL = "http://localhost:8000"
	cfg.Model = "gemma3:4b"
	cfg.LogLevel = "info"
	cfg.History.MaxContextTokens = 8192
	cfg.History.OutputReserve = 1024

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if token := os.Getenv("MINDLOOP_TOKEN"); token != "" {
		cfg.Token = token
	}
	if baseURL := os.Getenv("MINDLOOP_BASE_URL"); baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model := os.Getenv("MINDLOOP_MODEL"); model != "" {
		cfg.Model = model
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}

// Save writes the config to path atomically.
func Save(path string, cfg *Config) error {
	return writeDefaults(path, cfg)
}
