package vision

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is the Gemini model used when none is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// Gemini captions images with the Gemini API.
type Gemini struct {
	client *genai.Client
	config *Config
	logger *slog.Logger
}

// NewGemini creates a Gemini captioner.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Model = DefaultGeminiModel
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient(),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("vision: creating gemini client: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Gemini{
		client: client,
		config: cfg,
		logger: logger.With("component", "vision", "backend", BackendGemini),
	}, nil
}

// Describe implements Captioner.
func (g *Gemini) Describe(ctx context.Context, image []byte) (string, error) {
	return g.DescribePrompt(ctx, image, "")
}

// DescribePrompt implements Prompter.
func (g *Gemini) DescribePrompt(ctx context.Context, image []byte, prompt string) (string, error) {
	if prompt == "" {
		prompt = g.config.Prompt
	}
	if len(image) == 0 {
		return "", fmt.Errorf("%w: %w", ErrCaption, ErrEmptyImage)
	}

	data, mime, err := prepare(image, g.config.MaxEdge)
	if err != nil {
		return "", err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(data, mime),
		}, genai.RoleUser),
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.config.Model, contents, &genai.GenerateContentConfig{
		MaxOutputTokens: int32(g.config.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("%w: gemini: %v", ErrCaption, err)
	}

	caption := strings.TrimSpace(resp.Text())
	if caption == "" {
		return "", fmt.Errorf("%w: gemini returned an empty caption", ErrCaption)
	}

	g.logger.Debug("caption ready", "model", g.config.Model, "image_bytes", len(data))
	return caption, nil
}
