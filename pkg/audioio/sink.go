package audioio

import (
	"context"
	"io"
)

// Sink plays audio clips to a speaker or other output.
type Sink interface {
	// Start prepares the sink for playback.
	Start(ctx context.Context) error

	// Write plays one clip. It blocks until the clip has finished playing,
	// the context is cancelled or Clear is called.
	Write(ctx context.Context, clip []byte) error

	// Clear stops the clip currently playing.
	Clear() error

	// Name returns the backend name.
	Name() string

	// Close releases all resources. After Close, Write fails.
	io.Closer
}

// SinkStats contains statistics about an audio sink.
type SinkStats struct {
	ClipsWritten int64  `json:"clips_written"`
	BytesWritten int64  `json:"bytes_written"`
	Interrupted  int64  `json:"interrupted"`
	Running      bool   `json:"running"`
	Backend      string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}

// DiscardSink accepts and drops every clip.
type DiscardSink struct{}

func (DiscardSink) Start(context.Context) error         { return nil }
func (DiscardSink) Write(context.Context, []byte) error { return nil }
func (DiscardSink) Clear() error                        { return nil }
func (DiscardSink) Name() string                        { return "discard" }
func (DiscardSink) Close() error                        { return nil }

var _ Sink = DiscardSink{}
