package conversation

import (
	"log/slog"
	"time"
)

// Hume endpoints.
const (
	DefaultHumeURL  = "wss://api.hume.ai/v0/evi/chat"
	DefaultTokenURL = "https://api.hume.ai/oauth2-cc/token"
)

// Config holds configuration for the conversation client.
type Config struct {
	// APIKey is the authentication key for the service.
	APIKey string

	// SecretKey pairs with APIKey to mint browser access tokens. Optional.
	SecretKey string

	// TokenURL is the client-credentials token endpoint.
	TokenURL string

	// ConfigID selects the server-side session template (voice, prompt, model).
	ConfigID string

	// BaseURL overrides the default WebSocket endpoint.
	BaseURL string

	// SampleRate is the rate of audio passed to SendAudio, in Hz.
	SampleRate int

	// Channels is the channel count of audio passed to SendAudio.
	Channels int

	// Encoding names the PCM encoding announced in session settings.
	Encoding string

	// Timeout is the handshake timeout.
	Timeout time.Duration

	// ReadTimeout bounds the silence between two inbound frames.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single outbound frame.
	WriteTimeout time.Duration

	// EventBuffer is the capacity of the events channel.
	EventBuffer int

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      DefaultHumeURL,
		TokenURL:     DefaultTokenURL,
		SampleRate:   16000,
		Channels:     1,
		Encoding:     "linear16",
		Timeout:      30 * time.Second,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Second,
		EventBuffer:  256,
		Logger:       slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.ConfigID == "" {
		return ErrMissingConfigID
	}
	return nil
}

// Option is a functional option for configuring the client.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithSecretKey sets the secret key used for access tokens.
func WithSecretKey(key string) Option {
	return func(c *Config) {
		c.SecretKey = key
	}
}

// WithTokenURL sets the token endpoint. Empty keeps the default.
func WithTokenURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.TokenURL = url
		}
	}
}

// WithConfigID sets the session template id.
func WithConfigID(id string) Option {
	return func(c *Config) {
		c.ConfigID = id
	}
}

// WithBaseURL sets the WebSocket endpoint. Empty keeps the default.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		if url != "" {
			c.BaseURL = url
		}
	}
}

// WithSampleRate sets the input audio sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithTimeout sets the handshake timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithReadTimeout sets the inbound idle timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
