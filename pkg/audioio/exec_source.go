package audioio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
)

// ExecSource captures raw PCM16 from a command's stdout.
type ExecSource struct {
	cfg     Config
	logger  *slog.Logger
	backend Backend
	name    string
	args    []string

	mu      sync.Mutex
	running bool
	closed  bool
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	queue   chunkQueue
	done    chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// CaptureCommand returns the command line that records mono PCM16 for backend.
func CaptureCommand(backend Backend, cfg Config) (string, []string, error) {
	rate := strconv.Itoa(cfg.SampleRate)
	channels := strconv.Itoa(cfg.Channels)
	device := cfg.DeviceName(backend)

	switch backend {
	case BackendALSA:
		return "arecord", []string{
			"-q", "-D", device,
			"-f", "S16_LE", "-r", rate, "-c", channels,
			"-t", "raw",
		}, nil
	case BackendCoreAudio:
		return "ffmpeg", []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", device,
			"-ac", channels, "-ar", rate,
			"-f", "s16le", "-",
		}, nil
	default:
		return "", nil, fmt.Errorf("no capture command for backend %s", backend)
	}
}

// NewExecSource creates a capture source for the ALSA or CoreAudio backend.
func NewExecSource(backend Backend, cfg Config, logger *slog.Logger) (*ExecSource, error) {
	name, args, err := CaptureCommand(backend, cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return newCommandSource(backend, cfg, logger, name, args), nil
}

func newCommandSource(backend Backend, cfg Config, logger *slog.Logger, name string, args []string) *ExecSource {
	return &ExecSource{
		cfg:     cfg,
		logger:  logger.With("component", "capture", "backend", backend),
		backend: backend,
		name:    name,
		args:    args,
	}
}

// Start launches the capture command.
func (s *ExecSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	if _, err := exec.LookPath(s.name); err != nil {
		return fmt.Errorf("%s not found: %w", s.name, err)
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(cmdCtx, s.name, s.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", s.name, err)
	}

	s.cmd = cmd
	s.cancel = cancel
	s.queue = newChunkQueue(50)
	s.done = make(chan struct{})
	s.running = true

	go s.captureLoop(stdout, s.queue, s.done)

	s.logger.Info("audio capture started",
		"device", s.cfg.DeviceName(s.backend),
		"sample_rate", s.cfg.SampleRate,
	)
	return nil
}

func (s *ExecSource) captureLoop(stdout io.Reader, q chunkQueue, done chan struct{}) {
	defer close(done)
	defer close(q.ch)

	buf := make([]byte, s.cfg.BufferBytes())
	for {
		if _, err := io.ReadFull(stdout, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				s.logger.Debug("capture read ended", "error", err)
			}
			return
		}

		var chunk AudioChunk
		chunk.FromBytes(buf, s.cfg.SampleRate, s.cfg.Channels)
		if q.offer(chunk) {
			s.chunksRead.Add(1)
			s.samplesRead.Add(int64(len(chunk.Samples)))
		} else {
			s.overruns.Add(1)
		}
	}
}

// Stop kills the capture command.
func (s *ExecSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cmd, cancel, done := s.cmd, s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	_ = cmd.Wait()

	s.logger.Info("audio capture stopped",
		"chunks", s.chunksRead.Load(),
		"overruns", s.overruns.Load(),
	)
	return nil
}

// Read returns the next captured chunk.
func (s *ExecSource) Read(ctx context.Context) (AudioChunk, error) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q.ch == nil {
		return AudioChunk{}, io.EOF
	}
	return q.read(ctx)
}

// Config returns the audio configuration.
func (s *ExecSource) Config() Config {
	return s.cfg
}

// Name returns the backend name.
func (s *ExecSource) Name() string {
	return string(s.backend)
}

// Close stops capture permanently.
func (s *ExecSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.Stop()
}

// Stats returns source statistics.
func (s *ExecSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     string(s.backend),
	}
}

var _ SourceWithStats = (*ExecSource)(nil)
