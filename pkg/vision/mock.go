package vision

import (
	"context"
	"sync"
)

// Mock is a Captioner for tests.
type Mock struct {
	mu sync.Mutex

	// DescribeFunc overrides Describe. Defaults to returning Caption.
	DescribeFunc func(ctx context.Context, image []byte) (string, error)

	// Caption is returned when DescribeFunc is nil.
	Caption string

	// Images holds every image passed to Describe.
	Images [][]byte

	// Prompts holds the prompt of every call; empty for plain Describe.
	Prompts []string
}

// NewMock creates a Mock that returns caption.
func NewMock(caption string) *Mock {
	return &Mock{Caption: caption}
}

// Describe implements Captioner.
func (m *Mock) Describe(ctx context.Context, image []byte) (string, error) {
	return m.DescribePrompt(ctx, image, "")
}

// DescribePrompt implements Prompter.
func (m *Mock) DescribePrompt(ctx context.Context, image []byte, prompt string) (string, error) {
	m.mu.Lock()
	m.Images = append(m.Images, image)
	m.Prompts = append(m.Prompts, prompt)
	fn := m.DescribeFunc
	caption := m.Caption
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, image)
	}
	return caption, nil
}

// Calls returns how many times Describe was called.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Images)
}

var (
	_ Captioner = (*Mock)(nil)
	_ Captioner = (*OpenAI)(nil)
	_ Captioner = (*Gemini)(nil)
	_ Prompter  = (*Mock)(nil)
	_ Prompter  = (*OpenAI)(nil)
	_ Prompter  = (*Gemini)(nil)
)
