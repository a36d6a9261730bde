// Package vision turns images into short natural-language captions.
//
// Captions are best-effort context for the conversation. Backends report
// failures as errors wrapping ErrCaption; Fallback converts those into a
// fixed caption so callers never have to handle them.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/novo-relay/internal/httpc"
)

// DefaultPrompt asks for a short, friendly description of a webcam image.
const DefaultPrompt = "Briefly describe what you see in this image in 1-2 sentences. " +
	"Focus on the person and their surroundings. Be warm and friendly."

// PicturePrompt is used for photos the user chose to share.
const PicturePrompt = "Briefly describe what you see in this image in 1-2 sentences. " +
	"Focus on the main subject. Be warm and friendly."

// Backend names.
const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
	BackendNone   = "none"
)

// Sentinel errors.
var (
	// ErrCaption wraps any failure to produce a caption.
	ErrCaption = errors.New("vision: caption failed")

	// ErrNoAPIKey is returned when a backend is created without credentials.
	ErrNoAPIKey = errors.New("vision: API key required")

	// ErrEmptyImage is returned for zero-length input.
	ErrEmptyImage = errors.New("vision: empty image")

	// ErrUnsupportedImage is returned for input that does not sniff as an image.
	ErrUnsupportedImage = errors.New("vision: unsupported image format")
)

// Captioner describes images.
type Captioner interface {
	// Describe returns a caption for a JPEG, PNG or WebP image.
	Describe(ctx context.Context, image []byte) (string, error)
}

// Prompter is implemented by captioners that accept a prompt per call.
// An empty prompt means the configured one.
type Prompter interface {
	DescribePrompt(ctx context.Context, image []byte, prompt string) (string, error)
}

// Config holds settings shared by all caption backends.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Prompt     string
	MaxTokens  int
	MaxEdge    int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Prompt:    DefaultPrompt,
		MaxTokens: 100,
		MaxEdge:   DefaultMaxEdge,
		Timeout:   15 * time.Second,
		Logger:    slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

func (c *Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return httpc.NewClient(c.Timeout)
}

// Option is a functional option for caption backends.
type Option func(*Config)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithModel sets the model. Empty keeps the backend default.
func WithModel(model string) Option {
	return func(c *Config) {
		if model != "" {
			c.Model = model
		}
	}
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithPrompt replaces the caption prompt.
func WithPrompt(prompt string) Option {
	return func(c *Config) { c.Prompt = prompt }
}

// WithMaxTokens limits the caption length.
func WithMaxTokens(n int) Option {
	return func(c *Config) { c.MaxTokens = n }
}

// WithMaxEdge sets the longest image edge sent upstream. Zero disables resizing.
func WithMaxEdge(px int) Option {
	return func(c *Config) { c.MaxEdge = px }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) { c.HTTPClient = client }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// New creates a captioner for the named backend. BackendNone returns a nil
// Captioner and no error.
func New(ctx context.Context, backend string, opts ...Option) (Captioner, error) {
	switch strings.ToLower(backend) {
	case BackendOpenAI, "":
		c, err := NewOpenAI(opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendGemini:
		c, err := NewGemini(ctx, opts...)
		if err != nil {
			return nil, err
		}
		return c, nil
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("vision: unsupported backend %q", backend)
	}
}
