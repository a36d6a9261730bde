package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

// PushSource is a Source fed by Push, used when the connected client
// streams its own microphone audio.
type PushSource struct {
	cfg       Config
	inputRate int
	resampler *Resampler
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
	queue   chunkQueue

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// NewPushSource creates a push source. Pushed PCM16 at inputRate is
// resampled to cfg.SampleRate; zero means no resampling.
func NewPushSource(cfg Config, inputRate int, logger *slog.Logger) *PushSource {
	if logger == nil {
		logger = slog.Default()
	}
	if inputRate <= 0 {
		inputRate = cfg.SampleRate
	}
	return &PushSource{
		cfg:       cfg,
		inputRate: inputRate,
		resampler: NewResampler(inputRate, cfg.SampleRate),
		logger:    logger.With("component", "capture", "backend", BackendClient),
		queue:     newChunkQueue(100),
	}
}

// Start marks the source as running. Chunks pushed before Start are dropped.
func (p *PushSource) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return io.ErrClosedPipe
	}
	p.running = true
	return nil
}

// Push queues one chunk of PCM16 audio. It never blocks; chunks are dropped
// when the reader falls behind or the source is not running.
func (p *PushSource) Push(pcm []byte) {
	if len(pcm) < 2 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	chunk := AudioChunk{
		Samples:    p.resampler.Process(BytesToSamples(pcm)),
		SampleRate: p.cfg.SampleRate,
		Channels:   p.cfg.Channels,
	}
	if len(chunk.Samples) == 0 {
		return
	}
	if p.queue.offer(chunk) {
		p.chunksRead.Add(1)
		p.samplesRead.Add(int64(len(chunk.Samples)))
	} else {
		p.overruns.Add(1)
	}
}

// Stop ends the stream for good; Reads return io.EOF once drained.
func (p *PushSource) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.running = false
	close(p.queue.ch)
	return nil
}

// Read returns the next pushed chunk.
func (p *PushSource) Read(ctx context.Context) (AudioChunk, error) {
	return p.queue.read(ctx)
}

// Config returns the audio configuration.
func (p *PushSource) Config() Config {
	return p.cfg
}

// Name returns "client".
func (p *PushSource) Name() string {
	return string(BackendClient)
}

// Close is Stop; a push source cannot be restarted.
func (p *PushSource) Close() error {
	return p.Stop()
}

// Stats returns source statistics.
func (p *PushSource) Stats() SourceStats {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	return SourceStats{
		ChunksRead:  p.chunksRead.Load(),
		SamplesRead: p.samplesRead.Load(),
		Overruns:    p.overruns.Load(),
		Running:     running,
		Backend:     string(BackendClient),
	}
}

var _ SourceWithStats = (*PushSource)(nil)
