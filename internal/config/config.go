// Package config loads and saves the bridge's JSON configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HexSleeves/turnbridge/internal/llm"
)

const (
	DefaultPath      = "turnbridge.json"
	DefaultModel     = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens = 4096
	EnvAPIKey        = "ANTHROPIC_API_KEY"
)

type Config struct {
	APIKey       string `json:"api_key,omitempty"`
	Model        string `json:"model"`
	MaxTokens    int    `json:"max_tokens"`
	BaseURL      string `json:"base_url"`
	APIVersion   string `json:"api_version"`
	UserAgent    string `json:"user_agent"`
	Transport    string `json:"transport"`
	HistoryPath  string `json:"history_path"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	LogLevel     string `json:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Model:       DefaultModel,
		MaxTokens:   DefaultMaxTokens,
		BaseURL:     llm.DefaultBaseURL,
		APIVersion:  llm.DefaultAPIVersion,
		UserAgent:   llm.DefaultUserAgent,
		Transport:   "http",
		HistoryPath: filepath.Join(".turnbridge", "history.db"),
		LogLevel:    "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg as indented JSON with owner-only permissions, since the
// file may hold an API key.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// TransportConfig returns the llm transport settings.
func (c *Config) TransportConfig() llm.TransportConfig {
	return llm.TransportConfig{
		Kind:       c.Transport,
		BaseURL:    c.BaseURL,
		APIVersion: c.APIVersion,
		UserAgent:  c.UserAgent,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.APIVersion == "" {
		c.APIVersion = d.APIVersion
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.Transport == "" {
		c.Transport = d.Transport
	}
	if c.HistoryPath == "" {
		c.HistoryPath = d.HistoryPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if len(c.APIKey) > 8 {
		c.APIKey = c.APIKey[:4] + "…" + c.APIKey[len(c.APIKey)-4:]
	} else if c.APIKey != "" {
		c.APIKey = "…"
	}
	return c
}
