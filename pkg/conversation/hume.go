package conversation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// topEmotions is how many prosody scores are kept per user message.
const topEmotions = 3

// Hume dials Hume EVI chat sessions.
type Hume struct {
	config *Config
	tokens *tokenIssuer
	logger *slog.Logger
}

// NewHume creates a Hume dialer with the given options.
func NewHume(opts ...Option) (*Hume, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Hume{
		config: cfg,
		tokens: newTokenIssuer(cfg),
		logger: logger.With("component", "hume"),
	}, nil
}

// Connect opens a chat session and announces the audio format.
func (h *Hume) Connect(ctx context.Context) (Session, error) {
	if err := h.config.Validate(); err != nil {
		return nil, err
	}

	endpoint, err := h.endpoint()
	if err != nil {
		return nil, NewConnectionError("bad endpoint", err, false)
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: h.config.Timeout,
	}

	h.logger.Info("connecting to Hume EVI", "config_id", h.config.ConfigID)

	conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
				return nil, fmt.Errorf("%w: handshake returned HTTP %d", ErrAuthFailed, resp.StatusCode)
			}
			connErr := NewConnectionError(
				fmt.Sprintf("dial failed with status %d", resp.StatusCode),
				err,
				resp.StatusCode >= 500,
			)
			connErr.StatusCode = resp.StatusCode
			return nil, connErr
		}
		return nil, NewConnectionError("dial failed", err, true)
	}

	s := &humeSession{
		conn:   conn,
		config: h.config,
		logger: h.logger,
		events: make(chan Event, h.config.EventBuffer),
		done:   make(chan struct{}),
	}

	settings := sessionSettings{Type: "session_settings"}
	settings.Audio.Encoding = h.config.Encoding
	settings.Audio.SampleRate = h.config.SampleRate
	settings.Audio.Channels = h.config.Channels
	if err := s.write(settings); err != nil {
		_ = conn.Close()
		return nil, NewConnectionError("session settings", err, true)
	}

	go s.readLoop()

	h.logger.Info("connected to Hume EVI")
	return s, nil
}

func (h *Hume) endpoint() (string, error) {
	u, err := url.Parse(h.config.BaseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("api_key", h.config.APIKey)
	q.Set("config_id", h.config.ConfigID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// humeSession is one live EVI chat.
type humeSession struct {
	conn   *websocket.Conn
	config *Config
	logger *slog.Logger

	writeMu sync.Mutex

	events chan Event
	done   chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	errMu sync.Mutex
	err   error

	framesSent     atomic.Int64
	framesReceived atomic.Int64
}

// Outbound frames.

type sessionSettings struct {
	Type  string `json:"type"`
	Audio struct {
		Encoding   string `json:"encoding"`
		SampleRate int    `json:"sample_rate"`
		Channels   int    `json:"channels"`
	} `json:"audio"`
}

type audioInput struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type userInput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SendAudio implements Session.
func (s *humeSession) SendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	return s.write(audioInput{
		Type: "audio_input",
		Data: base64.StdEncoding.EncodeToString(pcm),
	})
}

// SendContext implements Session.
func (s *humeSession) SendContext(text string) error {
	return s.write(userInput{Type: "user_input", Text: text})
}

// Events implements Session.
func (s *humeSession) Events() <-chan Event {
	return s.events
}

// Err implements Session.
func (s *humeSession) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// Close implements Session.
func (s *humeSession) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)

		s.writeMu.Lock()
		_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		if err := s.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.closeErr = err
		}
		s.logger.Info("session closed",
			"frames_sent", s.framesSent.Load(),
			"frames_received", s.framesReceived.Load(),
		)
	})
	return s.closeErr
}

func (s *humeSession) write(v any) error {
	if s.closed.Load() {
		return ErrNotConnected
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.config.WriteTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	if err := s.conn.WriteJSON(v); err != nil {
		if s.closed.Load() {
			return ErrNotConnected
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	s.framesSent.Add(1)
	return nil
}

func (s *humeSession) setErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// readLoop decodes inbound frames until the connection ends, then closes
// the events channel.
func (s *humeSession) readLoop() {
	defer close(s.events)

	for {
		if s.config.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}

		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("connection closed by server")
				return
			}
			s.logger.Warn("read error", "error", err)
			s.setErr(NewConnectionError("read failed", err, true))
			return
		}

		s.framesReceived.Add(1)

		ev, err := decodeEvent(data)
		if err != nil {
			s.logger.Warn("failed to parse message", "error", err)
			continue
		}
		if ev.Type == EventUnknown {
			s.logger.Debug("unhandled message", "type", ev.Tag)
		}

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

// wireEvent covers every inbound EVI frame the relay understands. The
// "message" field is an object for chat messages and a string for errors.
type wireEvent struct {
	Type    string          `json:"type"`
	ChatID  string          `json:"chat_id"`
	Data    string          `json:"data"`
	Message json.RawMessage `json:"message"`
	Code    string          `json:"code"`
	Models  struct {
		Prosody struct {
			Scores map[string]float64 `json:"scores"`
		} `json:"prosody"`
	} `json:"models"`
}

type wireChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func decodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if w.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrInvalidMessage)
	}

	ev := Event{Type: EventType(w.Type), Tag: w.Type}

	switch ev.Type {
	case EventChatMetadata:
		ev.ChatID = w.ChatID

	case EventUserMessage, EventAssistantMessage:
		var m wireChatMessage
		if len(w.Message) > 0 {
			if err := json.Unmarshal(w.Message, &m); err != nil {
				return Event{}, fmt.Errorf("%w: %s message: %v", ErrInvalidMessage, w.Type, err)
			}
		}
		ev.Text = m.Content
		if ev.Type == EventUserMessage {
			ev.Emotions = strongest(w.Models.Prosody.Scores, topEmotions)
		}

	case EventAudioOutput:
		ev.Data = w.Data

	case EventAssistantEnd, EventUserInterruption:

	case EventError:
		var msg string
		if len(w.Message) > 0 {
			if err := json.Unmarshal(w.Message, &msg); err != nil {
				msg = string(w.Message)
			}
		}
		ev.Message = msg
		ev.Code = w.Code

	default:
		ev.Type = EventUnknown
	}

	return ev, nil
}

// strongest returns the n highest scores, highest first.
func strongest(scores map[string]float64, n int) []Emotion {
	if len(scores) == 0 {
		return nil
	}
	out := make([]Emotion, 0, len(scores))
	for name, score := range scores {
		out = append(out, Emotion{Name: name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
