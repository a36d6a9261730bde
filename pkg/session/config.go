package session

import (
	"log/slog"
	"time"

	"github.com/teslashibe/novo-relay/pkg/audioio"
	"github.com/teslashibe/novo-relay/pkg/metrics"
	"github.com/teslashibe/novo-relay/pkg/vision"
)

// Config holds coordinator configuration.
type Config struct {
	// AssistantName appears in the display line of context injections.
	AssistantName string

	// MaxCaptions bounds concurrent captioning calls per session.
	MaxCaptions int64

	// CaptionTimeout bounds a single captioning call.
	CaptionTimeout time.Duration

	// Captioner describes images. Nil means every caption is a fallback.
	Captioner vision.Captioner

	// NewSource opens the microphone for a session. Nil disables capture.
	NewSource func() (audioio.Source, error)

	// ClientAudio, when set, makes the browser the capture source:
	// audio_input messages are resampled from ClientAudioRate and forwarded.
	ClientAudio     *audioio.Config
	ClientAudioRate int

	// NewSink opens local playback. Nil drains the relay buffer silently.
	NewSink func() (audioio.Sink, error)

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AssistantName:  "Novo",
		MaxCaptions:    4,
		CaptionTimeout: 20 * time.Second,
		Logger:         slog.Default(),
	}
}

// Apply applies options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Option configures a Coordinator.
type Option func(*Config)

// WithAssistantName sets the name used in injection display lines.
func WithAssistantName(name string) Option {
	return func(c *Config) {
		if name != "" {
			c.AssistantName = name
		}
	}
}

// WithMaxCaptions bounds concurrent captioning calls.
func WithMaxCaptions(n int64) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxCaptions = n
		}
	}
}

// WithCaptionTimeout bounds a single captioning call.
func WithCaptionTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CaptionTimeout = d
	}
}

// WithCaptioner sets the image captioner.
func WithCaptioner(captioner vision.Captioner) Option {
	return func(c *Config) {
		c.Captioner = captioner
	}
}

// WithSource sets the microphone factory.
func WithSource(open func() (audioio.Source, error)) Option {
	return func(c *Config) {
		c.NewSource = open
	}
}

// WithClientAudio takes capture audio from the browser instead of a device.
func WithClientAudio(cfg audioio.Config, inputRate int) Option {
	return func(c *Config) {
		c.ClientAudio = &cfg
		c.ClientAudioRate = inputRate
	}
}

// WithSink sets the local playback factory.
func WithSink(open func() (audioio.Sink, error)) Option {
	return func(c *Config) {
		c.NewSink = open
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}
