// Package session runs one browser client's conversation.
//
// A Coordinator owns the gateway connection, the audio relay buffer and the
// camera debounce for a single client. While active it runs three
// activities side by side:
//
//   - capture forwarding: microphone chunks go to the gateway
//   - event relay: gateway events become client frames
//   - client handling: camera and picture messages become context injections
//
// The client closing its connection stops the session. Teardown runs every
// step even when an earlier one fails, logging rather than returning errors.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"

	"github.com/teslashibe/novo-relay/pkg/audio"
	"github.com/teslashibe/novo-relay/pkg/audioio"
	"github.com/teslashibe/novo-relay/pkg/conversation"
	"github.com/teslashibe/novo-relay/pkg/metrics"
	"github.com/teslashibe/novo-relay/pkg/protocol"
	"github.com/teslashibe/novo-relay/pkg/vision"
)

// ErrAlreadyStarted is returned when Run is called twice.
var ErrAlreadyStarted = errors.New("session: already started")

// State is a coordinator lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Reasons a session stops.
const (
	ReasonClientClosed  = "client_closed"
	ReasonGatewayError  = "gateway_error"
	ReasonGatewayClosed = "gateway_closed"
	ReasonShutdown      = "shutdown"
)

type captionKind string

const (
	captionFace    captionKind = "face"
	captionPicture captionKind = "picture"
)

// Coordinator runs a single client session.
type Coordinator struct {
	id        string
	cfg       *Config
	dialer    conversation.Dialer
	conn      ClientConn
	client    *clientWriter
	captioner *vision.Fallback
	metrics   *metrics.Metrics
	logger    *slog.Logger

	camera    Debounce
	captions  *semaphore.Weighted
	captionWG sync.WaitGroup

	state atomic.Int32

	mu       sync.Mutex
	gateway  conversation.Session
	buffer   *audio.Buffer
	push     *audioio.PushSource
	chatID   string
	emotions []conversation.Emotion
	started  time.Time
	ignored  map[string]bool

	stop       chan struct{}
	stopOnce   sync.Once
	stopReason string
	done       chan struct{}
}

// New creates a coordinator for one client connection.
func New(id string, conn ClientConn, dialer conversation.Dialer, opts ...Option) *Coordinator {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	logger := cfg.Logger.With("component", "session", "session_id", id)

	return &Coordinator{
		id:        id,
		cfg:       cfg,
		dialer:    dialer,
		conn:      conn,
		client:    newClientWriter(conn),
		captioner: vision.NewFallback(cfg.Captioner, logger),
		metrics:   cfg.Metrics,
		logger:    logger,
		captions:  semaphore.NewWeighted(cfg.MaxCaptions),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the session id.
func (c *Coordinator) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) setState(s State) {
	old := State(c.state.Swap(int32(s)))
	if old != s {
		c.logger.Debug("state change", "from", old, "to", s)
	}
}

// Done is closed when Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Stop asks a running session to tear down. Safe to call at any time.
func (c *Coordinator) Stop() {
	c.signalStop(ReasonShutdown)
}

func (c *Coordinator) signalStop(reason string) {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		c.stopReason = reason
		c.mu.Unlock()
		close(c.stop)
	})
}

// Run connects to the gateway and relays until the client goes away, the
// gateway fails, ctx is cancelled or Stop is called. It returns an error
// only when the handshake fails.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateIdle), int32(StateConnecting)) {
		return ErrAlreadyStarted
	}
	defer close(c.done)

	c.logger.Info("session connecting")

	gw, err := c.dialer.Connect(ctx)
	if err != nil {
		c.metrics.RecordHandshake(handshakeResult(err))
		c.logger.Error("gateway handshake failed", "error", err)
		if serr := c.client.send(protocol.NewError(clientError(err))); serr != nil {
			c.logger.Debug("could not report handshake failure", "error", serr)
		}
		if cerr := c.client.close(); cerr != nil {
			c.logger.Debug("client close failed", "error", cerr)
		}
		c.setState(StateClosed)
		return err
	}
	c.metrics.RecordHandshake("ok")

	buffer := audio.NewBuffer(c.openSink(), c.logger)
	src := c.openSource()

	c.mu.Lock()
	c.gateway = gw
	c.buffer = buffer
	c.started = time.Now()
	c.mu.Unlock()

	c.setState(StateActive)
	c.metrics.RecordSessionStart()
	c.logger.Info("session active")

	// Nothing else may reach the client before this frame.
	c.send(protocol.NewConnected())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := buffer.Start(runCtx); err != nil {
		c.logger.Warn("local playback unavailable", "error", err)
	}

	captureCtx, stopCapture := context.WithCancel(runCtx)
	captureDone := make(chan struct{})
	go c.forwardCapture(captureCtx, gw, src, captureDone)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.signalStop(c.relayEvents(runCtx, gw))
	}()
	go func() {
		defer wg.Done()
		c.signalStop(c.readClient(runCtx))
	}()

	select {
	case <-c.stop:
	case <-ctx.Done():
		c.signalStop(ReasonShutdown)
	}

	c.setState(StateClosing)
	c.teardown(stopCapture, captureDone, buffer, gw)

	cancel()
	wg.Wait()
	c.captionWG.Wait()

	c.mu.Lock()
	reason, started := c.stopReason, c.started
	c.mu.Unlock()

	c.setState(StateClosed)
	c.metrics.RecordSessionEnd(reason, time.Since(started))
	c.logger.Info("session closed",
		"reason", reason,
		"duration", time.Since(started).Round(time.Millisecond),
		"frames_sent", c.client.sent.Load(),
	)
	return nil
}

// teardown runs every step even when earlier ones fail.
func (c *Coordinator) teardown(stopCapture context.CancelFunc, captureDone <-chan struct{}, buffer *audio.Buffer, gw conversation.Session) {
	stopCapture()
	<-captureDone

	if err := buffer.Close(); err != nil {
		c.logger.Warn("buffer close failed", "error", err)
	}
	if err := gw.Close(); err != nil {
		c.logger.Warn("gateway close failed", "error", err)
	}
	if err := c.client.close(); err != nil {
		c.logger.Debug("client close failed", "error", err)
	}
}

func (c *Coordinator) openSink() audioio.Sink {
	if c.cfg.NewSink == nil {
		return audioio.DiscardSink{}
	}
	sink, err := c.cfg.NewSink()
	if err != nil {
		c.logger.Warn("playback device unavailable", "error", err)
		return audioio.DiscardSink{}
	}
	if sink == nil {
		return audioio.DiscardSink{}
	}
	return sink
}

func (c *Coordinator) openSource() audioio.Source {
	if c.cfg.ClientAudio != nil {
		push := audioio.NewPushSource(*c.cfg.ClientAudio, c.cfg.ClientAudioRate, c.logger)
		c.mu.Lock()
		c.push = push
		c.mu.Unlock()
		return push
	}
	if c.cfg.NewSource == nil {
		return nil
	}
	src, err := c.cfg.NewSource()
	if err != nil {
		c.logger.Warn("capture device unavailable", "error", err)
		return nil
	}
	return src
}

// send delivers a frame to the client. Failures are logged; a dead client
// is noticed by the reader.
func (c *Coordinator) send(f protocol.Frame) {
	if err := c.client.send(f); err != nil {
		if errors.Is(err, errClientClosed) {
			return
		}
		c.logger.Debug("client send failed", "type", f.FrameType(), "error", err)
	}
}

// =============================================================================
// Capture forwarding
// =============================================================================

func (c *Coordinator) forwardCapture(ctx context.Context, gw conversation.Session, src audioio.Source, done chan<- struct{}) {
	defer close(done)
	defer c.recoverActivity("capture")

	if src == nil {
		c.logger.Debug("no capture source")
		return
	}
	defer func() {
		if err := src.Close(); err != nil {
			c.logger.Warn("capture close failed", "error", err)
		}
	}()

	if err := src.Start(ctx); err != nil {
		c.logger.Warn("capture unavailable", "source", src.Name(), "error", err)
		return
	}
	c.logger.Info("capture forwarding started", "source", src.Name())

	var failures int
	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				c.logger.Warn("capture read failed", "error", err)
			}
			return
		}

		pcm := chunk.Bytes()
		if err := gw.SendAudio(pcm); err != nil {
			if conversation.IsNotConnected(err) {
				return
			}
			failures++
			if failures == 1 || failures%100 == 0 {
				c.logger.Warn("audio send failed", "failures", failures, "error", err)
			}
			continue
		}
		c.metrics.RecordAudio("in", len(pcm))
	}
}

// =============================================================================
// Gateway event relay
// =============================================================================

// relayEvents forwards gateway events until the stream ends, an error
// event arrives or ctx is cancelled. It returns the stop reason.
func (c *Coordinator) relayEvents(ctx context.Context, gw conversation.Session) (reason string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event relay panicked", "panic", r)
			reason = ReasonGatewayError
		}
	}()

	events := gw.Events()
	for {
		select {
		case <-ctx.Done():
			return ReasonShutdown
		case ev, ok := <-events:
			if !ok {
				if err := gw.Err(); err != nil {
					c.logger.Warn("gateway connection lost", "error", err)
				} else {
					c.logger.Info("gateway closed")
				}
				return ReasonGatewayClosed
			}
			if c.handleEvent(ev) {
				return ReasonGatewayError
			}
		}
	}
}

// handleEvent maps one gateway event to client frames. It reports whether
// the session must stop.
func (c *Coordinator) handleEvent(ev conversation.Event) (stop bool) {
	c.metrics.RecordGatewayEvent(string(ev.Type))

	switch ev.Type {
	case conversation.EventChatMetadata:
		c.mu.Lock()
		c.chatID = ev.ChatID
		c.mu.Unlock()
		c.logger.Info("chat started", "chat_id", ev.ChatID)
		c.send(protocol.NewChatMetadata(ev.ChatID))

	case conversation.EventUserMessage:
		c.mu.Lock()
		c.emotions = ev.Emotions
		c.mu.Unlock()
		c.logger.Debug("user said", "text", ev.Text, "emotions", len(ev.Emotions))
		c.send(protocol.NewUserMessage(ev.Text))

	case conversation.EventAssistantMessage:
		c.logger.Debug("assistant said", "text", ev.Text)
		c.send(protocol.NewAssistantMessage(ev.Text))

	case conversation.EventAudioOutput:
		pcm, err := ev.Audio()
		if err != nil {
			c.logger.Warn("undecodable audio from gateway", "error", err)
		} else {
			c.buffer.Put(pcm)
			c.metrics.RecordAudio("out", len(pcm))
		}
		c.send(protocol.NewAudioOutput(ev.Data))
		c.send(protocol.NewSpeakingStart())

	case conversation.EventAssistantEnd:
		c.send(protocol.NewSpeakingEnd())

	case conversation.EventUserInterruption:
		c.send(protocol.NewUserInterruption())

	case conversation.EventError:
		msg := ev.Message
		if msg == "" {
			msg = "conversation service error"
		}
		c.logger.Error("gateway error", "message", msg, "code", ev.Code)
		c.send(protocol.NewError(msg))
		return true

	default:
		c.logIgnored("gateway event", ev.Tag)
	}
	return false
}

// =============================================================================
// Client message handling
// =============================================================================

// readClient handles client messages until the connection ends.
func (c *Coordinator) readClient(ctx context.Context) (reason string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("client handler panicked", "panic", r)
			reason = ReasonClientClosed
		}
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.client.isClosed() {
				c.logger.Info("client disconnected", "error", err)
			}
			return ReasonClientClosed
		}
		if msgType == websocket.BinaryMessage {
			c.pushAudio(data)
			continue
		}
		c.handleClientMessage(ctx, data)
	}
}

func (c *Coordinator) handleClientMessage(ctx context.Context, data []byte) {
	msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		c.logger.Warn("ignoring malformed client message", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeCameraEnabled:
		c.camera.Arm()
		c.logger.Debug("camera enabled")

	case protocol.TypeCameraDisabled:
		c.camera.Disarm()
		c.logger.Debug("camera disabled")

	case protocol.TypeFaceFrame:
		if !c.camera.Fire() {
			break
		}
		c.spawnCaption(ctx, captionFace, msg)

	case protocol.TypePicture:
		c.spawnCaption(ctx, captionPicture, msg)

	case protocol.TypeAudioInput:
		pcm, err := msg.Payload()
		if err != nil {
			c.logger.Debug("ignoring audio_input", "error", err)
			break
		}
		c.pushAudio(pcm)

	default:
		c.logIgnored("client message", string(msg.Type))
		c.metrics.RecordClientMessage("unknown")
		return
	}
	c.metrics.RecordClientMessage(string(msg.Type))
}

// logIgnored reports an unhandled tag at Info the first time it is seen in
// this session and at Debug afterwards.
func (c *Coordinator) logIgnored(kind, tag string) {
	key := kind + "/" + tag
	c.mu.Lock()
	if c.ignored == nil {
		c.ignored = make(map[string]bool)
	}
	seen := c.ignored[key]
	c.ignored[key] = true
	c.mu.Unlock()

	if seen {
		c.logger.Debug("ignoring "+kind, "tag", tag)
		return
	}
	c.logger.Info("ignoring "+kind, "tag", tag)
}

func (c *Coordinator) pushAudio(pcm []byte) {
	c.mu.Lock()
	push := c.push
	c.mu.Unlock()
	if push == nil {
		return
	}
	push.Push(pcm)
}

// spawnCaption captions the message image off the reader goroutine. An
// undecodable image goes straight to the fallback caption.
func (c *Coordinator) spawnCaption(ctx context.Context, kind captionKind, msg *protocol.ClientMessage) {
	img, err := msg.Payload()
	if err != nil {
		c.logger.Warn("undecodable image, using fallback caption", "kind", kind, "error", err)
		img = nil
	}

	c.captionWG.Add(1)
	go c.caption(ctx, kind, img)
}

func (c *Coordinator) caption(ctx context.Context, kind captionKind, img []byte) {
	defer c.captionWG.Done()
	defer c.recoverActivity("caption")

	if err := c.captions.Acquire(ctx, 1); err != nil {
		return
	}
	defer c.captions.Release(1)

	start := time.Now()
	desc, fresh := vision.FallbackCaption, false
	if len(img) > 0 {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.CaptionTimeout)
		desc, fresh = c.captioner.Caption(cctx, img)
		cancel()
	}
	c.metrics.RecordCaption(string(kind), fresh, time.Since(start))
	c.logger.Info("image captioned", "kind", kind, "fresh", fresh, "took", time.Since(start).Round(time.Millisecond))

	if ctx.Err() != nil {
		c.logger.Debug("session ended before caption was delivered", "kind", kind)
		return
	}

	inj := CameraInjection(desc, c.cfg.AssistantName)
	if kind == captionPicture {
		inj = PictureInjection(desc, c.cfg.AssistantName)
	}
	if err := c.inject(inj); err != nil {
		c.logger.Warn("context injection failed", "kind", kind, "error", err)
	}

	if kind == captionPicture {
		c.send(protocol.NewPictureProcessed(desc))
	}
}

func (c *Coordinator) inject(inj Injection) error {
	c.mu.Lock()
	gw := c.gateway
	c.mu.Unlock()
	if gw == nil {
		return conversation.ErrNotConnected
	}
	return gw.SendContext(inj.Text())
}

func (c *Coordinator) recoverActivity(name string) {
	if r := recover(); r != nil {
		c.logger.Error("activity panicked", "activity", name, "panic", r)
	}
}

// =============================================================================
// Introspection
// =============================================================================

// Info is a snapshot of a session for the sessions API.
type Info struct {
	ID        string                 `json:"id"`
	State     string                 `json:"state"`
	ChatID    string                 `json:"chat_id,omitempty"`
	Camera    string                 `json:"camera"`
	StartedAt time.Time              `json:"started_at,omitempty"`
	Emotions  []conversation.Emotion `json:"emotions,omitempty"`
	Buffer    *audio.Stats           `json:"buffer,omitempty"`
}

// Info returns a snapshot of the session.
func (c *Coordinator) Info() Info {
	c.mu.Lock()
	info := Info{
		ID:        c.id,
		ChatID:    c.chatID,
		StartedAt: c.started,
		Emotions:  append([]conversation.Emotion(nil), c.emotions...),
	}
	buffer := c.buffer
	c.mu.Unlock()

	info.State = c.State().String()
	info.Camera = c.camera.State().String()
	if buffer != nil {
		stats := buffer.Stats()
		info.Buffer = &stats
	}
	return info
}

// Emotions returns the strongest emotions from the last user message.
func (c *Coordinator) Emotions() []conversation.Emotion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]conversation.Emotion(nil), c.emotions...)
}

func handshakeResult(err error) string {
	switch {
	case conversation.IsAuthError(err):
		return "auth_failed"
	case conversation.IsConfigError(err):
		return "config_error"
	default:
		return "unreachable"
	}
}

// clientError turns a handshake failure into text for the client.
func clientError(err error) string {
	switch {
	case conversation.IsAuthError(err):
		return "Authentication with the conversation service failed"
	case conversation.IsConfigError(err):
		return fmt.Sprintf("Conversation service is not configured: %v", err)
	default:
		return "Could not connect to the conversation service"
	}
}
