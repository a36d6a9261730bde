package vision

import (
	"context"
	"log/slog"
)

// Captions used when no description can be produced.
const (
	FallbackCaption    = "I can see you now!"
	UnavailableCaption = "I can see you but image description is not available."
)

// Fallback wraps a Captioner so that Describe never fails.
type Fallback struct {
	backend Captioner
	logger  *slog.Logger
}

// NewFallback wraps backend. A nil backend always yields UnavailableCaption.
func NewFallback(backend Captioner, logger *slog.Logger) *Fallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{backend: backend, logger: logger.With("component", "vision")}
}

// Describe implements Captioner. The returned error is always nil.
func (f *Fallback) Describe(ctx context.Context, image []byte) (string, error) {
	caption, _ := f.Caption(ctx, image)
	return caption, nil
}

// Caption returns a caption and whether it came from the backend rather
// than a fallback string.
func (f *Fallback) Caption(ctx context.Context, image []byte) (string, bool) {
	return f.CaptionPrompt(ctx, image, "")
}

// CaptionPrompt is Caption with a prompt override. Backends that are not
// Prompters use their configured prompt.
func (f *Fallback) CaptionPrompt(ctx context.Context, image []byte, prompt string) (string, bool) {
	if f.backend == nil {
		return UnavailableCaption, false
	}
	var caption string
	var err error
	if p, ok := f.backend.(Prompter); ok && prompt != "" {
		caption, err = p.DescribePrompt(ctx, image, prompt)
	} else {
		caption, err = f.backend.Describe(ctx, image)
	}
	if err != nil {
		f.logger.Warn("caption failed, using fallback", "error", err)
		return FallbackCaption, false
	}
	if caption == "" {
		return FallbackCaption, false
	}
	return caption, true
}

var _ Captioner = (*Fallback)(nil)
