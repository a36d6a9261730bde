// novo-voice: talk to the assistant from a terminal, no browser needed.
// The microphone feeds the conversation and replies play through a local
// command. Type "/photo <file>" to show a picture, "/camera <file>" to
// simulate turning on the camera, "/quit" to leave.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/novo-relay/internal/config"
	"github.com/teslashibe/novo-relay/internal/log"
	"github.com/teslashibe/novo-relay/pkg/audioio"
	"github.com/teslashibe/novo-relay/pkg/conversation"
	"github.com/teslashibe/novo-relay/pkg/protocol"
	"github.com/teslashibe/novo-relay/pkg/session"
	"github.com/teslashibe/novo-relay/pkg/vision"
)

var (
	envFile = flag.String("env", ".env", "Env file to load if present")
	debug   = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "novo-voice: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	} else if cfg.LogLevel == "info" {
		cfg.LogLevel = "warn"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "novo-voice: %v\n", err)
		os.Exit(1)
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, err := conversation.NewHume(
		conversation.WithAPIKey(cfg.HumeAPIKey),
		conversation.WithConfigID(cfg.HumeConfigID),
		conversation.WithBaseURL(cfg.HumeURL),
		conversation.WithSampleRate(cfg.SampleRate),
		conversation.WithLogger(logger),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "novo-voice: %v\n", err)
		os.Exit(1)
	}

	a := cfg.Audio()
	if a.ResolveBackend() == audioio.BackendClient {
		fmt.Fprintln(os.Stderr, "novo-voice: CAPTURE_BACKEND=client needs a browser; use novo-relay")
		os.Exit(1)
	}
	a.Backend = a.ResolveBackend()
	if a.PlaybackCommand == "" {
		a.PlaybackCommand = defaultPlayer(runtime.GOOS)
	}

	var captioner vision.Captioner
	if c, err := vision.New(ctx, cfg.CaptionBackend,
		vision.WithAPIKey(cfg.CaptionKey()),
		vision.WithModel(cfg.CaptionModel),
		vision.WithLogger(logger),
	); err != nil {
		logger.Warn("image captions unavailable", "error", err)
	} else if c != nil {
		captioner = c
	}

	term := newTerminal(os.Stdout, cfg.AssistantName)
	go term.readCommands(os.Stdin, logger)

	coord := session.New("terminal", term, dialer,
		session.WithLogger(logger),
		session.WithAssistantName(cfg.AssistantName),
		session.WithCaptioner(captioner),
		session.WithSource(func() (audioio.Source, error) { return audioio.NewSource(a, logger) }),
		session.WithSink(func() (audioio.Sink, error) { return audioio.NewSink(a, logger) }),
	)

	fmt.Printf("🎙️  novo-voice (%s capture, playback: %s)\n", a.Backend, a.PlaybackCommand)
	fmt.Println("   Speak to start. /photo <file>, /camera <file>, /quit")
	fmt.Println()

	if err := coord.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "novo-voice: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("👋 Goodbye!")
}

func defaultPlayer(goos string) string {
	if goos == "darwin" {
		return "ffplay -nodisp -autoexit -loglevel quiet -"
	}
	return "aplay -q"
}

// terminal is a session.ClientConn backed by stdin and stdout.
type terminal struct {
	out       io.Writer
	assistant string

	msgs      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newTerminal(out io.Writer, assistant string) *terminal {
	return &terminal{
		out:       out,
		assistant: assistant,
		msgs:      make(chan []byte, 8),
		done:      make(chan struct{}),
	}
}

// ReadMessage drains queued commands before reporting the close.
func (t *terminal) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-t.msgs:
		return websocket.TextMessage, msg, nil
	default:
	}
	select {
	case msg := <-t.msgs:
		return websocket.TextMessage, msg, nil
	case <-t.done:
		return 0, nil, io.EOF
	}
}

func (t *terminal) WriteMessage(_ int, data []byte) error {
	var frame struct {
		Type        protocol.MessageType `json:"type"`
		Content     string               `json:"content"`
		Message     string               `json:"message"`
		Description string               `json:"description"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		return err
	}

	switch frame.Type {
	case protocol.TypeConnected:
		fmt.Fprintln(t.out, "✅ Connected")
	case protocol.TypeUserMessage:
		fmt.Fprintf(t.out, "🗣️  You: %s\n", stripContext(frame.Content))
	case protocol.TypeAssistantMessage:
		fmt.Fprintf(t.out, "🤖 %s: %s\n", t.assistant, frame.Content)
	case protocol.TypeUserInterruption:
		fmt.Fprintln(t.out, "✋ (interrupted)")
	case protocol.TypePictureProcessed:
		fmt.Fprintf(t.out, "📷 %s\n", frame.Description)
	case protocol.TypeError:
		fmt.Fprintf(t.out, "❌ %s\n", frame.Message)
	}
	return nil
}

func (t *terminal) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

// readCommands turns typed commands into client messages.
func (t *terminal) readCommands(in io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")

		var msgs []protocol.ClientMessage
		switch cmd {
		case "":
			continue
		case "/quit":
			_ = t.Close()
			return
		case "/photo", "/camera":
			img, err := os.ReadFile(strings.TrimSpace(arg))
			if err != nil {
				fmt.Fprintf(t.out, "❌ %v\n", err)
				continue
			}
			if cmd == "/photo" {
				msgs = append(msgs, protocol.NewClientMessage(protocol.TypePicture, img))
			} else {
				msgs = append(msgs,
					protocol.ClientMessage{Type: protocol.TypeCameraEnabled},
					protocol.NewClientMessage(protocol.TypeFaceFrame, img))
			}
		default:
			fmt.Fprintln(t.out, "commands: /photo <file>, /camera <file>, /quit")
			continue
		}

		for _, m := range msgs {
			data, err := json.Marshal(m)
			if err != nil {
				logger.Warn("encode command", "error", err)
				continue
			}
			select {
			case t.msgs <- data:
			case <-t.done:
				return
			}
		}
	}
}

// stripContext hides the injected context prefix from transcript lines.
func stripContext(content string) string {
	if !strings.HasPrefix(content, "[SYSTEM CONTEXT:") {
		return content
	}
	if i := strings.Index(content, "]"); i >= 0 {
		return strings.TrimSpace(content[i+1:])
	}
	return content
}
