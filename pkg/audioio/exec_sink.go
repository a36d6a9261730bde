package audioio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// ExecSink plays each clip by running a command with the clip on stdin.
type ExecSink struct {
	logger *slog.Logger
	name   string
	args   []string

	mu      sync.Mutex
	running bool
	closed  bool
	current context.CancelFunc

	clipsWritten atomic.Int64
	bytesWritten atomic.Int64
	interrupted  atomic.Int64
}

// NewExecSink creates a sink from a command line such as "aplay -q".
func NewExecSink(command string, logger *slog.Logger) (*ExecSink, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("playback command is empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecSink{
		logger: logger.With("component", "playback", "command", fields[0]),
		name:   fields[0],
		args:   fields[1:],
	}, nil
}

// Start verifies the playback command exists.
func (s *ExecSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if _, err := exec.LookPath(s.name); err != nil {
		return fmt.Errorf("%s not found: %w", s.name, err)
	}
	s.running = true
	return nil
}

// Write plays one clip and waits for the command to exit.
func (s *ExecSink) Write(ctx context.Context, clip []byte) error {
	if len(clip) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.closed || !s.running {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	playCtx, cancel := context.WithCancel(ctx)
	s.current = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
		cancel()
	}()

	cmd := exec.CommandContext(playCtx, s.name, s.args...)
	cmd.Stdin = bytes.NewReader(clip)
	err := cmd.Run()

	s.clipsWritten.Add(1)
	s.bytesWritten.Add(int64(len(clip)))

	if playCtx.Err() != nil {
		s.interrupted.Add(1)
		return playCtx.Err()
	}
	if err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	return nil
}

// Clear stops the clip that is playing, if any.
func (s *ExecSink) Clear() error {
	s.mu.Lock()
	cancel := s.current
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

// Name returns "exec".
func (s *ExecSink) Name() string {
	return "exec"
}

// Close stops playback permanently.
func (s *ExecSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.running = false
	s.mu.Unlock()

	return s.Clear()
}

// Stats returns sink statistics.
func (s *ExecSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		ClipsWritten: s.clipsWritten.Load(),
		BytesWritten: s.bytesWritten.Load(),
		Interrupted:  s.interrupted.Load(),
		Running:      running,
		Backend:      "exec",
	}
}

var _ SinkWithStats = (*ExecSink)(nil)
