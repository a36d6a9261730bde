package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want %d", cfg.Port, DefaultPort)
	}
	if cfg.SampleRate != DefaultSampleRate {
		t.Errorf("SampleRate = %d, want %d", cfg.SampleRate, DefaultSampleRate)
	}
	if cfg.AssistantName != DefaultAssistantName {
		t.Errorf("AssistantName = %q", cfg.AssistantName)
	}
	if cfg.CaptionModel != DefaultCaptionModel {
		t.Errorf("CaptionModel = %q, want %q", cfg.CaptionModel, DefaultCaptionModel)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HUME_API_KEY", "hume-key-123456")
	t.Setenv("HUME_SECRET_KEY", "hume-secret")
	t.Setenv("NEXT_PUBLIC_HUME_CONFIG_ID", "cfg-1")
	t.Setenv("PORT", "9000")
	t.Setenv("MIC_DEVICE", "3")
	t.Setenv("CAPTION_BACKEND", "Gemini")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HumeAPIKey != "hume-key-123456" {
		t.Errorf("HumeAPIKey = %q", cfg.HumeAPIKey)
	}
	if cfg.HumeSecretKey != "hume-secret" {
		t.Errorf("HumeSecretKey = %q", cfg.HumeSecretKey)
	}
	if cfg.HumeConfigID != "cfg-1" {
		t.Errorf("HumeConfigID = %q", cfg.HumeConfigID)
	}
	if cfg.Port != 9000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.MicDevice != "3" {
		t.Errorf("MicDevice = %q", cfg.MicDevice)
	}
	if cfg.CaptionBackend != "gemini" {
		t.Errorf("CaptionBackend = %q", cfg.CaptionBackend)
	}
	if cfg.CaptionModel != DefaultGeminiModel {
		t.Errorf("CaptionModel = %q", cfg.CaptionModel)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "HUME_API_KEY=from-file\nNEXT_PUBLIC_HUME_CONFIG_ID=file-cfg\nASSISTANT_NAME=Eva\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HumeAPIKey != "from-file" {
		t.Errorf("HumeAPIKey = %q", cfg.HumeAPIKey)
	}
	if cfg.HumeConfigID != "file-cfg" {
		t.Errorf("HumeConfigID = %q", cfg.HumeConfigID)
	}
	if cfg.AssistantName != "Eva" {
		t.Errorf("AssistantName = %q", cfg.AssistantName)
	}
}

func TestLoadMissingEnvFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Errorf("missing env file should be ignored, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			HumeAPIKey:     "k",
			HumeConfigID:   "c",
			Port:           DefaultPort,
			SampleRate:     DefaultSampleRate,
			CaptionBackend: "openai",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing api key", func(c *Config) { c.HumeAPIKey = "" }, true},
		{"missing config id", func(c *Config) { c.HumeConfigID = "" }, true},
		{"bad port", func(c *Config) { c.Port = 0 }, true},
		{"bad sample rate", func(c *Config) { c.SampleRate = -1 }, true},
		{"unknown caption backend", func(c *Config) { c.CaptionBackend = "claude" }, true},
		{"no captions", func(c *Config) { c.CaptionBackend = "none" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error should wrap ErrInvalid: %v", err)
			}
		})
	}
}

func TestMaskedKey(t *testing.T) {
	if got := MaskedKey("abcdefghijkl"); got != "abcdefgh..." {
		t.Errorf("MaskedKey = %q", got)
	}
	if got := MaskedKey("abc"); got != "***" {
		t.Errorf("MaskedKey short = %q", got)
	}
}

func TestDerivedSettings(t *testing.T) {
	cfg := &Config{
		CaptionBackend:  "gemini",
		OpenAIAPIKey:    "sk-open",
		GoogleAPIKey:    "g-key",
		CaptureBackend:  "alsa",
		MicDevice:       "2",
		SampleRate:      24000,
		PlaybackCommand: "aplay -q",
	}

	if got := cfg.CaptionKey(); got != "g-key" {
		t.Errorf("CaptionKey() = %q, want g-key", got)
	}
	cfg.CaptionBackend = "openai"
	if got := cfg.CaptionKey(); got != "sk-open" {
		t.Errorf("CaptionKey() = %q, want sk-open", got)
	}

	a := cfg.Audio()
	if a.Backend != "alsa" || a.SampleRate != 24000 || a.Device != "2" || a.PlaybackCommand != "aplay -q" {
		t.Errorf("Audio() = %+v", a)
	}
	if a.Channels != 1 {
		t.Errorf("Channels = %d, want 1", a.Channels)
	}
}
