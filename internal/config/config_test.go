package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != DefaultModel {
		t.Errorf("expected default model, got %q", cfg.Model)
	}
	if cfg.MaxTokens != DefaultMaxTokens {
		t.Errorf("expected %d max tokens, got %d", DefaultMaxTokens, cfg.MaxTokens)
	}
	if cfg.BaseURL != "https://api.anthropic.com" || cfg.APIVersion != "2023-06-01" {
		t.Errorf("unexpected endpoint defaults: %s %s", cfg.BaseURL, cfg.APIVersion)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "turnbridge.json")
	cfg := DefaultConfig()
	cfg.APIKey = "sk-test"
	cfg.Model = "claude-haiku"
	cfg.MaxTokens = 256
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.APIKey != "sk-test" || got.Model != "claude-haiku" || got.MaxTokens != 256 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestLoadPartialFileFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	if err := os.WriteFile(path, []byte(`{"model":"m"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "m" {
		t.Errorf("expected model m, got %q", cfg.Model)
	}
	if cfg.MaxTokens != DefaultMaxTokens || cfg.Transport != "http" {
		t.Errorf("expected defaults filled, got %+v", cfg)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{`), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Config{APIKey: "sk-ant-1234567890"}
	r := cfg.Redacted()
	if strings.Contains(r.APIKey, "34567") {
		t.Errorf("expected key to be redacted, got %q", r.APIKey)
	}
	if cfg.APIKey != "sk-ant-1234567890" {
		t.Error("Redacted must not modify the original")
	}
	if (Config{}).Redacted().APIKey != "" {
		t.Error("empty key should stay empty")
	}
}

func TestTransportConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport = "sdk"
	tc := cfg.TransportConfig()
	if tc.Kind != "sdk" || tc.BaseURL != cfg.BaseURL {
		t.Errorf("unexpected transport config %+v", tc)
	}
}
