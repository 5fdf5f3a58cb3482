package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr && os.Getenv("HTTP_ADDR") == "" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected model: %s", cfg.LLM.Model)
	}
	if cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != 0.7 || cfg.LLM.TopP == nil || *cfg.LLM.TopP != 0.9 {
		t.Fatalf("unexpected sampling defaults: %v %v", cfg.LLM.Temperature, cfg.LLM.TopP)
	}
	if cfg.Redis.TTL() != 7*24*time.Hour {
		t.Fatalf("unexpected history ttl: %s", cfg.Redis.TTL())
	}
	if len(cfg.LineChannels()) != 2 {
		t.Fatalf("expected two default line channels, got %d", len(cfg.LineChannels()))
	}
}

func TestLoadDecodesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[storage]
upload_dir = "/srv/uploads"

[llm]
temperature = 0.0

[processing]
engine = "parse"
workers = 4

[[line.channels]]
name = "support"
path = "/line/support"
mode = "line-ask"
channel_secret = "s3cret"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Storage.UploadDir != "/srv/uploads" || cfg.Storage.OutputDir != DefaultOutputDir {
		t.Fatalf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Processing.Engine != "parse" || cfg.Processing.Workers != 4 {
		t.Fatalf("unexpected processing config: %+v", cfg.Processing)
	}
	if cfg.LLM.Temperature == nil || *cfg.LLM.Temperature != 0 {
		t.Fatalf("expected explicit zero temperature, got %v", cfg.LLM.Temperature)
	}
	if cfg.LLM.TopP == nil || *cfg.LLM.TopP != 0.9 {
		t.Fatalf("expected default top_p, got %v", cfg.LLM.TopP)
	}
	channels := cfg.LineChannels()
	if len(channels) != 1 || channels[0].Path != "/line/support" || channels[0].ChannelSecret != "s3cret" {
		t.Fatalf("unexpected line channels: %+v", channels)
	}
}

func TestLoadRejectsInvalidToml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[server\naddr="), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestApplyEnvOverridesLineSecrets(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":               "sk-test",
		"LINE_ASK_CHANNEL_SECRET":      "ask-secret",
		"LINE_ASSISTANT_CHANNEL_TOKEN": "assistant-token",
		"REDIS_URL":                    "redis://cache:6379/1",
	}
	cfg := Config{}
	applyEnv(&cfg, func(key string) string { return env[key] })

	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("unexpected api key: %q", cfg.LLM.APIKey)
	}
	if cfg.Redis.URL != "redis://cache:6379/1" {
		t.Fatalf("unexpected redis url: %q", cfg.Redis.URL)
	}
	if cfg.Line.Channels[0].ChannelSecret != "ask-secret" {
		t.Fatalf("unexpected ask secret: %+v", cfg.Line.Channels[0])
	}
	if cfg.Line.Channels[1].ChannelToken != "assistant-token" {
		t.Fatalf("unexpected assistant token: %+v", cfg.Line.Channels[1])
	}
}

func TestParseDurationFallback(t *testing.T) {
	if got := parseDuration("nonsense", "1h"); got != time.Hour {
		t.Fatalf("unexpected fallback: %s", got)
	}
	if got := parseDuration("90s", "1h"); got != 90*time.Second {
		t.Fatalf("unexpected duration: %s", got)
	}
}
