package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/HexSleeves/turnbridge/internal/config"
)

func newAPIServer(t *testing.T, reply string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": reply}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.BaseURL = baseURL
	cfg.APIKey = "test-key"
	cfg.HistoryPath = filepath.Join(dir, "history.db")
	path := filepath.Join(dir, "turnbridge.json")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save config: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(context.Background(), append([]string{"turnbridge"}, args...))
	return out.String(), err
}

func TestQueryCommand(t *testing.T) {
	srv, calls := newAPIServer(t, "hi there")
	cfgPath := writeConfig(t, t.TempDir(), srv.URL)

	out, err := run(t, "--config", cfgPath, "query", "hello", "world")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.TrimSpace(out) != "hi there" {
		t.Errorf("expected reply, got %q", out)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 API call, got %d", calls.Load())
	}
}

func TestQueryCommandAsync(t *testing.T) {
	srv, _ := newAPIServer(t, "later")
	cfgPath := writeConfig(t, t.TempDir(), srv.URL)

	out, err := run(t, "--config", cfgPath, "query", "--async", "--turn", "2", "hello")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if strings.TrimSpace(out) != "later" {
		t.Errorf("expected reply, got %q", out)
	}
}

func TestQueryCommandMissingKey(t *testing.T) {
	srv, calls := newAPIServer(t, "unused")
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "turnbridge.json")
	cfg := config.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.HistoryPath = "off"
	if err := cfg.Save(cfgPath); err != nil {
		t.Fatal(err)
	}
	t.Setenv(config.EnvAPIKey, "")

	out, err := run(t, "--config", cfgPath, "query", "hello")
	if err == nil {
		t.Fatal("expected error exit for missing key")
	}
	if strings.TrimSpace(out) != "Error: Claude API key not set." {
		t.Errorf("unexpected output %q", out)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no API call, got %d", calls.Load())
	}
}

func TestScriptCommandTurnGate(t *testing.T) {
	srv, calls := newAPIServer(t, "ok")
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir, srv.URL)
	script := filepath.Join(dir, "turns.sh")
	src := `Claude.QueryForTurn 1 'first'
Claude.QueryForTurn 1 'again'
Claude.QueryForTurnAsync 2 'background'
Claude.Shutdown
Claude.HasResponse
Claude.GetResponse
`
	if err := os.WriteFile(script, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := run(t, "--config", cfgPath, "script", script)
	if err != nil {
		t.Fatalf("script: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 result lines, got %d:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], `"ok"`) {
		t.Errorf("expected first reply, got %q", lines[0])
	}
	if !strings.Contains(lines[1], "Only one Claude query allowed per turn.") {
		t.Errorf("expected rate-limit on repeated turn, got %q", lines[1])
	}
	if !strings.Contains(lines[4], "true") || !strings.Contains(lines[5], `"ok"`) {
		t.Errorf("expected queued reply, got %q / %q", lines[4], lines[5])
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 API calls, got %d", calls.Load())
	}
}

func TestHistoryCommand(t *testing.T) {
	srv, _ := newAPIServer(t, "recorded reply")
	cfgPath := writeConfig(t, t.TempDir(), srv.URL)

	if _, err := run(t, "--config", cfgPath, "query", "remember this"); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "--config", cfgPath, "history")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	for _, want := range []string{"remember this", "recorded reply", "complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in history:\n%s", want, out)
		}
	}
}

func TestConfigInitAndSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg", "turnbridge.json")

	if _, err := run(t, "--config", path, "config", "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := run(t, "--config", path, "config", "init"); err == nil {
		t.Error("expected init to refuse an existing file")
	}
	if _, err := run(t, "--config", path, "config", "set-key", "sk-test-123456789"); err != nil {
		t.Fatalf("set-key: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKey != "sk-test-123456789" {
		t.Errorf("expected key saved, got %q", cfg.APIKey)
	}

	out, err := run(t, "--config", path, "config", "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if strings.Contains(out, "sk-test-123456789") {
		t.Error("config show must not print the full key")
	}
	if !strings.Contains(out, config.DefaultModel) {
		t.Errorf("expected model in output:\n%s", out)
	}
}

func TestFlagOverrides(t *testing.T) {
	var gotModel string
	var gotMax float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		gotMax, _ = body["max_tokens"].(float64)
		_, _ = io.WriteString(w, `{"content":[{"type":"text","text":"ok"}]}`)
	}))
	defer srv.Close()
	cfgPath := writeConfig(t, t.TempDir(), srv.URL)

	_, err := run(t, "--config", cfgPath, "--model", "claude-flag", "--max-tokens", "33", "--history", "off", "query", "x")
	if err != nil {
		t.Fatal(err)
	}
	if gotModel != "claude-flag" || gotMax != 33 {
		t.Errorf("expected flag overrides, got model=%q max=%v", gotModel, gotMax)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("expected version in %q", out)
	}
}
