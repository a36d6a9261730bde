// Package config loads novo-relay settings from the process environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/teslashibe/novo-relay/pkg/audioio"
)

// Defaults.
const (
	DefaultPort          = 8765
	DefaultHost          = "localhost"
	DefaultSampleRate    = 16000
	DefaultAssistantName = "Novo"
	DefaultCaptionModel  = "gpt-4o-mini"
	DefaultGeminiModel   = "gemini-2.0-flash"
	DefaultMaxCaptions   = 4
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is the full runtime configuration.
type Config struct {
	HumeAPIKey    string `mapstructure:"hume_api_key"`
	HumeSecretKey string `mapstructure:"hume_secret_key"` // optional, enables browser access tokens
	HumeConfigID  string `mapstructure:"hume_config_id"`
	HumeURL       string `mapstructure:"hume_url"`

	CaptionBackend string `mapstructure:"caption_backend"` // openai, gemini, none
	CaptionModel   string `mapstructure:"caption_model"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key"`
	GoogleAPIKey   string `mapstructure:"google_api_key"`
	MaxCaptions    int    `mapstructure:"max_captions"`

	CaptureBackend  string `mapstructure:"capture_backend"` // auto, alsa, coreaudio, mock, client, none
	MicDevice       string `mapstructure:"mic_device"`
	SampleRate      int    `mapstructure:"sample_rate"`
	PlaybackCommand string `mapstructure:"playback_command"`

	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	AssistantName string `mapstructure:"assistant_name"`
	LogLevel      string `mapstructure:"log_level"`
}

// Load reads configuration from defaults, an optional env file and the
// environment, in increasing order of precedence. A missing env file is
// not an error.
func Load(envFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("hume_api_key", "")
	v.SetDefault("hume_secret_key", "")
	v.SetDefault("hume_config_id", "")
	v.SetDefault("hume_url", "")
	v.SetDefault("caption_backend", "openai")
	v.SetDefault("caption_model", "")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("google_api_key", "")
	v.SetDefault("max_captions", DefaultMaxCaptions)
	v.SetDefault("capture_backend", "auto")
	v.SetDefault("mic_device", "0")
	v.SetDefault("sample_rate", DefaultSampleRate)
	v.SetDefault("playback_command", "")
	v.SetDefault("host", DefaultHost)
	v.SetDefault("port", DefaultPort)
	v.SetDefault("assistant_name", DefaultAssistantName)
	v.SetDefault("log_level", "info")

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("reading %s: %w", envFile, err)
			}
			slog.Debug("loaded env file", "path", envFile)
		}
	}

	v.AutomaticEnv()
	// The browser build shares its config id under the NEXT_PUBLIC_ name.
	_ = v.BindEnv("hume_config_id", "HUME_CONFIG_ID", "NEXT_PUBLIC_HUME_CONFIG_ID")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.HumeConfigID == "" {
		cfg.HumeConfigID = v.GetString("next_public_hume_config_id")
	}
	cfg.CaptionBackend = strings.ToLower(strings.TrimSpace(cfg.CaptionBackend))
	cfg.CaptureBackend = strings.ToLower(strings.TrimSpace(cfg.CaptureBackend))
	if cfg.CaptionModel == "" {
		cfg.CaptionModel = defaultCaptionModel(cfg.CaptionBackend)
	}

	return &cfg, nil
}

func defaultCaptionModel(backend string) string {
	if backend == "gemini" {
		return DefaultGeminiModel
	}
	return DefaultCaptionModel
}

// Validate checks the mandatory credentials and value ranges.
func (c *Config) Validate() error {
	if c.HumeAPIKey == "" {
		return fmt.Errorf("%w: HUME_API_KEY is required", ErrInvalid)
	}
	if c.HumeConfigID == "" {
		return fmt.Errorf("%w: NEXT_PUBLIC_HUME_CONFIG_ID is required", ErrInvalid)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalid, c.Port)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate must be positive, got %d", ErrInvalid, c.SampleRate)
	}
	switch c.CaptionBackend {
	case "openai", "gemini", "none":
	default:
		return fmt.Errorf("%w: unknown caption backend %q", ErrInvalid, c.CaptionBackend)
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaskedKey returns the first 8 characters of a secret for startup banners.
func MaskedKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:8] + "..."
}

// CaptionKey returns the API key for the configured caption backend.
func (c *Config) CaptionKey() string {
	if c.CaptionBackend == "gemini" {
		return c.GoogleAPIKey
	}
	return c.OpenAIAPIKey
}

// Audio returns the capture and playback settings.
func (c *Config) Audio() audioio.Config {
	a := audioio.DefaultConfig()
	a.Backend = audioio.Backend(c.CaptureBackend)
	a.SampleRate = c.SampleRate
	a.Device = c.MicDevice
	a.PlaybackCommand = c.PlaybackCommand
	return a
}
