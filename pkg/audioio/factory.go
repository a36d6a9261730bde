package audioio

import (
	"fmt"
	"log/slog"
	"runtime"
)

// NewSource creates a capture source for cfg.Backend. BackendAuto picks the
// platform backend; BackendNone returns a nil Source and no error.
// BackendClient sources are created with NewPushSource instead.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.ResolveBackend()

	logger.Info("creating audio source",
		"backend", backend,
		"device", cfg.DeviceName(backend),
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	switch backend {
	case BackendNone:
		return nil, nil
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendALSA, BackendCoreAudio:
		src, err := NewExecSource(backend, cfg, logger)
		if err != nil {
			return nil, err
		}
		return src, nil
	case BackendClient:
		return nil, fmt.Errorf("backend %s is created per session", backend)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// NewSink creates the playback sink. An empty PlaybackCommand yields a
// DiscardSink.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if cfg.PlaybackCommand == "" {
		return DiscardSink{}, nil
	}
	sink, err := NewExecSink(cfg.PlaybackCommand, logger)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// AvailableBackends returns the capture backends usable on this platform.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock, BackendClient, BackendNone}

	switch runtime.GOOS {
	case "linux":
		backends = append(backends, BackendALSA)
	case "darwin":
		backends = append(backends, BackendCoreAudio)
	}

	return backends
}
