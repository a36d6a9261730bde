package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultOpenAIModel is a cheap vision-capable chat model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAI captions images with the chat completions API.
type OpenAI struct {
	client openai.Client
	config *Config
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI captioner.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = DefaultOpenAIModel
	cfg.Apply(opts...)

	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(cfg.httpClient()),
		option.WithMaxRetries(1),
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OpenAI{
		client: openai.NewClient(reqOpts...),
		config: cfg,
		logger: logger.With("component", "vision", "backend", BackendOpenAI),
	}, nil
}

// Describe implements Captioner.
func (o *OpenAI) Describe(ctx context.Context, image []byte) (string, error) {
	return o.DescribePrompt(ctx, image, "")
}

// DescribePrompt implements Prompter.
func (o *OpenAI) DescribePrompt(ctx context.Context, image []byte, prompt string) (string, error) {
	if prompt == "" {
		prompt = o.config.Prompt
	}
	if len(image) == 0 {
		return "", fmt.Errorf("%w: %w", ErrCaption, ErrEmptyImage)
	}

	data, mime, err := prepare(image, o.config.MaxEdge)
	if err != nil {
		return "", err
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL,
				}),
			}),
		},
		MaxCompletionTokens: openai.Int(int64(o.config.MaxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: openai status %d: %v", ErrCaption, apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("%w: openai: %v", ErrCaption, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: openai returned no choices", ErrCaption)
	}
	caption := strings.TrimSpace(resp.Choices[0].Message.Content)
	if caption == "" {
		return "", fmt.Errorf("%w: openai returned an empty caption", ErrCaption)
	}

	o.logger.Debug("caption ready",
		"model", o.config.Model,
		"image_bytes", len(data),
		"total_tokens", resp.Usage.TotalTokens,
	)
	return caption, nil
}
