package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultMaxUploadBytes = 64 << 20
	DefaultUploadDir      = "uploads"
	DefaultOutputDir      = "output"
	DefaultRedisURL       = "redis://localhost:6379/0"
	DefaultHistoryTTL     = "168h"
	DefaultKeyPrefix      = "conversation:"
	DefaultLLMProvider    = "openai"
	DefaultLLMModel       = "gpt-4o-mini"
	DefaultLLMTimeout     = "60s"
	DefaultEngine         = "ocr"
	DefaultDPI            = 300
	DefaultPSM            = 6
	DefaultWorkers        = 2
	DefaultRetention      = "1h"
	DefaultPruneSchedule  = "@every 10m"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	Redis      RedisConfig      `toml:"redis"`
	LLM        LLMConfig        `toml:"llm"`
	Processing ProcessingConfig `toml:"processing"`
	Line       LineConfig       `toml:"line"`
	Telegram   TelegramConfig   `toml:"telegram"`
	Discord    DiscordConfig    `toml:"discord"`
	Feishu     FeishuConfig     `toml:"feishu"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr           string `toml:"addr"`
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
}

type StorageConfig struct {
	UploadDir string `toml:"upload_dir"`
	OutputDir string `toml:"output_dir"`
}

type RedisConfig struct {
	URL        string `toml:"url"`
	HistoryTTL string `toml:"history_ttl"`
	KeyPrefix  string `toml:"key_prefix"`
}

// TTL parses HistoryTTL, falling back to the seven day default.
func (c RedisConfig) TTL() time.Duration {
	return parseDuration(c.HistoryTTL, DefaultHistoryTTL)
}

type LLMConfig struct {
	Provider    string   `toml:"provider"`
	APIKey      string   `toml:"api_key"`
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	Temperature *float64 `toml:"temperature"`
	TopP        *float64 `toml:"top_p"`
	MaxRetries  int      `toml:"max_retries"`
	Timeout     string   `toml:"timeout"`
	CacheSize   int      `toml:"cache_size"`
	PromptsFile string   `toml:"prompts_file"`
}

func (c LLMConfig) RequestTimeout() time.Duration {
	return parseDuration(c.Timeout, DefaultLLMTimeout)
}

type ProcessingConfig struct {
	Engine          string   `toml:"engine"`
	DPI             float64  `toml:"dpi"`
	Languages       []string `toml:"languages"`
	PSM             int      `toml:"psm"`
	Workers         int      `toml:"workers"`
	StatusRetention string   `toml:"status_retention"`
	PruneSchedule   string   `toml:"prune_schedule"`
}

func (c ProcessingConfig) Retention() time.Duration {
	return parseDuration(c.StatusRetention, DefaultRetention)
}

type LineConfig struct {
	Channels []LineChannel `toml:"channels"`
}

// LineChannel is one LINE messaging channel served on its own webhook path.
type LineChannel struct {
	Name          string `toml:"name"`
	Path          string `toml:"path"`
	Mode          string `toml:"mode"`
	ChannelSecret string `toml:"channel_secret"`
	ChannelToken  string `toml:"channel_token"`
}

type TelegramConfig struct {
	Enabled       bool   `toml:"enabled"`
	BotToken      string `toml:"bot_token"`
	WebhookSecret string `toml:"webhook_secret"`
	Mode          string `toml:"mode"`
}

type DiscordConfig struct {
	Enabled   bool   `toml:"enabled"`
	PublicKey string `toml:"public_key"`
	BotToken  string `toml:"bot_token"`
	Mode      string `toml:"mode"`
}

type FeishuConfig struct {
	Enabled           bool   `toml:"enabled"`
	AppID             string `toml:"app_id"`
	AppSecret         string `toml:"app_secret"`
	VerificationToken string `toml:"verification_token"`
	EncryptKey        string `toml:"encrypt_key"`
	Mode              string `toml:"mode"`
}

// LineChannels returns the configured LINE channels, or the ask/assistant pair
// when none are declared.
func (c Config) LineChannels() []LineChannel {
	if len(c.Line.Channels) > 0 {
		return c.Line.Channels
	}
	return defaultLineChannels()
}

func defaultLineChannels() []LineChannel {
	return []LineChannel{
		{Name: "ask", Path: "/ask", Mode: "line-ask"},
		{Name: "assistant", Path: "/assistant", Mode: "line-assistant"},
	}
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:           DefaultHTTPAddr,
			MaxUploadBytes: DefaultMaxUploadBytes,
		},
		Storage: StorageConfig{
			UploadDir: DefaultUploadDir,
			OutputDir: DefaultOutputDir,
		},
		Redis: RedisConfig{
			URL:        DefaultRedisURL,
			HistoryTTL: DefaultHistoryTTL,
			KeyPrefix:  DefaultKeyPrefix,
		},
		LLM: LLMConfig{
			Provider:    DefaultLLMProvider,
			Model:       DefaultLLMModel,
			Temperature: floatPtr(0.7),
			TopP:        floatPtr(0.9),
			MaxRetries:  2,
			Timeout:     DefaultLLMTimeout,
			CacheSize:   256,
		},
		Processing: ProcessingConfig{
			Engine:          DefaultEngine,
			DPI:             DefaultDPI,
			Languages:       []string{"chi_tra", "eng"},
			PSM:             DefaultPSM,
			Workers:         DefaultWorkers,
			StatusRetention: DefaultRetention,
			PruneSchedule:   DefaultPruneSchedule,
		},
		Telegram: TelegramConfig{Mode: "telegram"},
		Discord:  DiscordConfig{Mode: "discord"},
		Feishu:   FeishuConfig{Mode: "feishu"},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnv(&cfg, os.Getenv)
	return cfg, nil
}

// applyEnv lets well-known environment variables override file values.
func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.Addr, "HTTP_ADDR")
	set(&cfg.Redis.URL, "REDIS_URL")
	set(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	set(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")
	set(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	set(&cfg.Discord.PublicKey, "DISCORD_PUBLIC_KEY")
	set(&cfg.Discord.BotToken, "DISCORD_BOT_TOKEN")
	set(&cfg.Feishu.AppID, "FEISHU_APP_ID")
	set(&cfg.Feishu.AppSecret, "FEISHU_APP_SECRET")

	if len(cfg.Line.Channels) == 0 {
		cfg.Line.Channels = defaultLineChannels()
	}
	for i := range cfg.Line.Channels {
		ch := &cfg.Line.Channels[i]
		prefix := "LINE_" + strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(ch.Name), "-", "_")) + "_"
		set(&ch.ChannelSecret, prefix+"CHANNEL_SECRET")
		set(&ch.ChannelToken, prefix+"CHANNEL_TOKEN")
	}
}

func parseDuration(raw, fallback string) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

func floatPtr(v float64) *float64 { return &v }
