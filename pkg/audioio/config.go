// Package audioio provides microphone capture and speaker playback.
//
// Capture backends:
//   - ALSA (Linux) via arecord
//   - CoreAudio (macOS) via ffmpeg's avfoundation input
//   - Client: PCM pushed in by the browser over the relay socket
//   - Mock: synthetic audio for tests
//
// Playback runs an external command per audio clip (for example
// "aplay -q" or "ffplay -nodisp -autoexit -loglevel quiet -").
package audioio

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects ALSA on Linux and CoreAudio on macOS.
	BackendAuto Backend = "auto"
	// BackendALSA captures with arecord.
	BackendALSA Backend = "alsa"
	// BackendCoreAudio captures with ffmpeg avfoundation.
	BackendCoreAudio Backend = "coreaudio"
	// BackendClient takes PCM pushed by the connected client.
	BackendClient Backend = "client"
	// BackendMock generates synthetic audio.
	BackendMock Backend = "mock"
	// BackendNone disables capture.
	BackendNone Backend = "none"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which capture backend to use.
	Backend Backend `json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels.
	Channels int `json:"channels"`

	// BufferDuration is the length of one captured chunk.
	BufferDuration time.Duration `json:"buffer_duration"`

	// Device identifies the capture device. A bare index such as "1" is
	// expanded per platform; anything else is passed through unchanged.
	Device string `json:"device"`

	// PlaybackCommand is run once per audio clip with the clip on stdin.
	// Empty disables local playback.
	PlaybackCommand string `json:"playback_command"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 20 * time.Millisecond,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	return nil
}

// BufferSize returns the number of samples per channel in one chunk.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of one chunk in bytes.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}

// ResolveBackend maps BackendAuto to the platform backend.
func (c *Config) ResolveBackend() Backend {
	if c.Backend == "" || c.Backend == BackendAuto {
		return detectBestBackend(runtime.GOOS)
	}
	return c.Backend
}

// DeviceName returns the device string the capture tool expects.
func (c *Config) DeviceName(backend Backend) string {
	dev := strings.TrimSpace(c.Device)
	idx, err := strconv.Atoi(dev)
	isIndex := err == nil && idx >= 0

	switch backend {
	case BackendALSA:
		if dev == "" {
			return "default"
		}
		if isIndex {
			return fmt.Sprintf("plughw:%d,0", idx)
		}
	case BackendCoreAudio:
		if dev == "" {
			return ":0"
		}
		if isIndex {
			return ":" + dev
		}
	}
	return dev
}

func detectBestBackend(goos string) Backend {
	switch goos {
	case "linux":
		return BackendALSA
	case "darwin":
		return BackendCoreAudio
	default:
		return BackendMock
	}
}
