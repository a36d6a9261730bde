// Package audio decouples the arrival of synthesized speech from its playback.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/novo-relay/pkg/audioio"
)

// ErrClosed is returned by Next once the buffer has been closed.
var ErrClosed = errors.New("audio: buffer closed")

// Buffer is an ordered queue of audio clips feeding an optional sink.
//
// Put never blocks the producer. Next yields clips in FIFO order. Close
// drops whatever has not been played yet and stops the sink immediately.
type Buffer struct {
	sink   audioio.Sink
	logger *slog.Logger

	mu     sync.Mutex
	queue  [][]byte
	closed bool
	notify chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	pumpDone  chan struct{}
	started   atomic.Bool

	clipsIn     atomic.Int64
	clipsPlayed atomic.Int64
	clipsDrop   atomic.Int64
}

// NewBuffer creates a buffer. A nil sink makes the buffer a pure queue
// drained through Next.
func NewBuffer(sink audioio.Sink, logger *slog.Logger) *Buffer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Buffer{
		sink:     sink,
		logger:   logger.With("component", "audio-buffer"),
		notify:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		pumpDone: make(chan struct{}),
	}
}

// Put appends a clip. It is a no-op after Close.
func (b *Buffer) Put(clip []byte) {
	if len(clip) == 0 {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, clip)
	b.mu.Unlock()

	b.clipsIn.Add(1)

	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Next removes and returns the oldest clip, waiting until one is available.
func (b *Buffer) Next(ctx context.Context) ([]byte, error) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrClosed
		}
		if len(b.queue) > 0 {
			clip := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return clip, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.done:
			return nil, ErrClosed
		case <-b.notify:
		}
	}
}

// Len returns the number of clips waiting.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Start launches the playback pump that writes queued clips to the sink.
// It does nothing when the buffer has no sink or is already started.
func (b *Buffer) Start(ctx context.Context) error {
	if b.sink == nil {
		return nil
	}
	if !b.started.CompareAndSwap(false, true) {
		return nil
	}
	if err := b.sink.Start(ctx); err != nil {
		b.started.Store(false)
		return err
	}
	go b.pump(ctx)
	return nil
}

func (b *Buffer) pump(ctx context.Context) {
	defer close(b.pumpDone)

	for {
		clip, err := b.Next(ctx)
		if err != nil {
			return
		}
		if err := b.sink.Write(ctx, clip); err != nil {
			if b.isClosed() || ctx.Err() != nil {
				return
			}
			b.logger.Warn("playback failed", "error", err)
			continue
		}
		b.clipsPlayed.Add(1)
	}
}

func (b *Buffer) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Close discards unplayed clips and releases the sink. It is safe to call
// more than once and always returns nil; sink errors are logged.
func (b *Buffer) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		dropped := len(b.queue)
		b.queue = nil
		b.mu.Unlock()

		b.clipsDrop.Add(int64(dropped))

		close(b.done)

		if b.sink != nil {
			if err := b.sink.Clear(); err != nil {
				b.logger.Warn("sink clear failed", "error", err)
			}
			if err := b.sink.Close(); err != nil {
				b.logger.Warn("sink close failed", "error", err)
			}
			if b.started.Load() {
				<-b.pumpDone
			}
		}

		b.logger.Debug("audio buffer closed",
			"clips_in", b.clipsIn.Load(),
			"clips_played", b.clipsPlayed.Load(),
			"clips_dropped", dropped,
		)
	})
	return nil
}

// Stats summarizes buffer activity.
type Stats struct {
	ClipsIn      int64 `json:"clips_in"`
	ClipsPlayed  int64 `json:"clips_played"`
	ClipsDropped int64 `json:"clips_dropped"`
	Queued       int   `json:"queued"`
}

// Stats returns buffer counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		ClipsIn:      b.clipsIn.Load(),
		ClipsPlayed:  b.clipsPlayed.Load(),
		ClipsDropped: b.clipsDrop.Load(),
		Queued:       b.Len(),
	}
}
