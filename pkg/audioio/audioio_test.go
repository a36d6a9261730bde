package audioio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"testing"
	"time"
)

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDeviceName(t *testing.T) {
	tests := []struct {
		backend Backend
		device  string
		want    string
	}{
		{BackendALSA, "", "default"},
		{BackendALSA, "2", "plughw:2,0"},
		{BackendALSA, "hw:1,0", "hw:1,0"},
		{BackendCoreAudio, "", ":0"},
		{BackendCoreAudio, "1", ":1"},
		{BackendCoreAudio, ":MacBook Pro Microphone", ":MacBook Pro Microphone"},
		{BackendMock, "3", "3"},
	}

	for _, tt := range tests {
		t.Run(string(tt.backend)+"/"+tt.device, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Device = tt.device
			if got := cfg.DeviceName(tt.backend); got != tt.want {
				t.Errorf("DeviceName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCaptureCommand(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Device = "1"

	name, args, err := CaptureCommand(BackendALSA, cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"-q", "-D", "plughw:1,0", "-f", "S16_LE", "-r", "16000", "-c", "1", "-t", "raw"}
	if name != "arecord" || len(args) != len(want) {
		t.Fatalf("got %s %v", name, args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d = %q, want %q", i, args[i], want[i])
		}
	}

	name, args, err = CaptureCommand(BackendCoreAudio, cfg)
	if err != nil || name != "ffmpeg" || args[len(args)-1] != "-" {
		t.Errorf("coreaudio command = %s %v, %v", name, args, err)
	}

	if _, _, err := CaptureCommand(BackendMock, cfg); err == nil {
		t.Error("mock backend has no capture command")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.BufferBytes() != 640 {
		t.Errorf("BufferBytes() = %d, want 640", cfg.BufferBytes())
	}

	bad := cfg
	bad.SampleRate = 0
	if bad.Validate() == nil {
		t.Error("zero sample rate should be invalid")
	}
	bad = cfg
	bad.Channels = 0
	if bad.Validate() == nil {
		t.Error("zero channels should be invalid")
	}
}

func TestDetectBestBackend(t *testing.T) {
	if detectBestBackend("linux") != BackendALSA {
		t.Error("linux should use ALSA")
	}
	if detectBestBackend("darwin") != BackendCoreAudio {
		t.Error("darwin should use CoreAudio")
	}
	if detectBestBackend("windows") != BackendMock {
		t.Error("other platforms should fall back to mock")
	}
}

func TestNewSource(t *testing.T) {
	cfg := testConfig()

	cfg.Backend = BackendNone
	src, err := NewSource(cfg, nil)
	if err != nil || src != nil {
		t.Errorf("none backend = %v, %v", src, err)
	}

	cfg.Backend = BackendMock
	src, err = NewSource(cfg, nil)
	if err != nil || src.Name() != "mock" {
		t.Errorf("mock backend = %v, %v", src, err)
	}

	cfg.Backend = BackendClient
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("client backend is not created by NewSource")
	}

	cfg.Backend = "pulse"
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestNewSink(t *testing.T) {
	sink, err := NewSink(DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := sink.(DiscardSink); !ok {
		t.Errorf("empty command should give DiscardSink, got %T", sink)
	}

	cfg := DefaultConfig()
	cfg.PlaybackCommand = "aplay -q"
	sink, err = NewSink(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	if es, ok := sink.(*ExecSink); !ok || es.name != "aplay" || es.args[0] != "-q" {
		t.Errorf("sink = %#v", sink)
	}
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecSourceReadsChunks(t *testing.T) {
	requireShell(t)

	cfg := testConfig() // 10ms at 16kHz = 320 bytes per chunk
	src := newCommandSource(BackendALSA, cfg, quiet(), "sh", []string{"-c", "head -c 960 /dev/zero"})
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	chunks := 0
	for {
		chunk, err := src.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if len(chunk.Samples) != 160 {
			t.Errorf("chunk has %d samples, want 160", len(chunk.Samples))
		}
		chunks++
	}
	if chunks != 3 {
		t.Errorf("read %d chunks, want 3", chunks)
	}
	if err := src.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestExecSourceStopKillsCommand(t *testing.T) {
	requireShell(t)

	src := newCommandSource(BackendALSA, testConfig(), quiet(), "sh", []string{"-c", "exec sleep 30"})
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		_ = src.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not stop the capture command")
	}
	if src.Stats().Running {
		t.Error("source still running after Close")
	}
}

func TestExecSinkClearInterrupts(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}

	sink, err := NewExecSink("sleep 30", quiet())
	if err != nil {
		t.Fatal(err)
	}

	if err := sink.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	errc := make(chan error, 1)
	go func() { errc <- sink.Write(context.Background(), []byte("RIFF")) }()

	time.Sleep(100 * time.Millisecond)
	_ = sink.Clear()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Write() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Clear did not interrupt playback")
	}
	if sink.Stats().Interrupted != 1 {
		t.Errorf("Interrupted = %d", sink.Stats().Interrupted)
	}

	_ = sink.Close()
	if err := sink.Write(context.Background(), []byte{1}); err != io.ErrClosedPipe {
		t.Errorf("Write after Close = %v", err)
	}
}

func TestExecSinkPlaysClip(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	sink, err := NewExecSink("cat", quiet())
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := sink.Write(context.Background(), []byte("clip")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if sink.Stats().ClipsWritten != 1 {
		t.Errorf("ClipsWritten = %d", sink.Stats().ClipsWritten)
	}
	if _, err := NewExecSink("   ", nil); err == nil {
		t.Error("blank command should fail")
	}
}

func TestPushSource(t *testing.T) {
	cfg := DefaultConfig()
	p := NewPushSource(cfg, 48000, quiet())

	p.Push(make([]byte, 1920)) // dropped, not started
	if err := p.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.Push(make([]byte, 1920)) // 960 samples at 48kHz
	p.Push([]byte{1})          // too short

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	chunk, err := p.Read(ctx)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(chunk.Samples) != 320 || chunk.SampleRate != 16000 {
		t.Errorf("chunk = %d samples at %d Hz", len(chunk.Samples), chunk.SampleRate)
	}

	_ = p.Close()
	_ = p.Close()
	if _, err := p.Read(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("Read after Close = %v, want io.EOF", err)
	}
	p.Push(make([]byte, 100)) // must not panic
	if err := p.Start(ctx); err != io.ErrClosedPipe {
		t.Errorf("Start after Close = %v", err)
	}
	if p.Stats().ChunksRead != 1 {
		t.Errorf("ChunksRead = %d", p.Stats().ChunksRead)
	}
}
