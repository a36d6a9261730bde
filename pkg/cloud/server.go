// Package cloud serves browser clients over WebSocket, one relay session
// per connection, plus the REST, health and metrics endpoints around them.
package cloud

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	gofiberws "github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/novo-relay/pkg/conversation"
	"github.com/teslashibe/novo-relay/pkg/hub"
	"github.com/teslashibe/novo-relay/pkg/metrics"
	"github.com/teslashibe/novo-relay/pkg/protocol"
	"github.com/teslashibe/novo-relay/pkg/session"
	"github.com/teslashibe/novo-relay/pkg/vision"
)

// ErrSessionNotFound is returned for unknown session ids.
var ErrSessionNotFound = errors.New("cloud: session not found")

// TokenIssuer mints short-lived credentials that let a browser open its
// own connection to the conversation service.
type TokenIssuer interface {
	AccessToken(ctx context.Context) (string, error)
	ConfigID() string
}

// connection is a registered client session.
type connection struct {
	coord     *session.Coordinator
	userID    string
	connected time.Time
}

// Server accepts client connections and runs a session for each.
type Server struct {
	dialer      conversation.Dialer
	sessionOpts []session.Option
	monitor     *hub.Hub
	metrics     *metrics.Metrics
	tokens      TokenIssuer
	backend     vision.Captioner
	captioner   *vision.Fallback
	assistant   string
	base        *slog.Logger
	logger      *slog.Logger
	version     string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[string]*connection

	sessionsTotal     atomic.Uint64
	handshakeFailures atomic.Uint64
}

// Option configures a Server.
type Option func(*Server)

// WithSessionOptions passes options to every session coordinator.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// WithMonitor publishes session lifecycle events to a hub.
func WithMonitor(h *hub.Hub) Option {
	return func(s *Server) {
		s.monitor = h
	}
}

// WithMetrics records Prometheus metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTokenIssuer serves browser access tokens on /api/hume/access-token.
func WithTokenIssuer(t TokenIssuer) Option {
	return func(s *Server) {
		s.tokens = t
	}
}

// WithCaptioner sets the captioner behind /api/vision/analyze.
func WithCaptioner(c vision.Captioner) Option {
	return func(s *Server) {
		s.backend = c
	}
}

// WithAssistantName sets the name used in analyze context strings.
func WithAssistantName(name string) Option {
	return func(s *Server) {
		if name != "" {
			s.assistant = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewServer creates a server that dials the conversation service through
// dialer for every client.
func NewServer(dialer conversation.Dialer, opts ...Option) *Server {
	s := &Server{
		dialer:    dialer,
		logger:    slog.Default(),
		version:   "dev",
		assistant: session.DefaultConfig().AssistantName,
		sessions:  make(map[string]*connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.base = s.logger
	s.logger = s.logger.With("component", "server")
	s.captioner = vision.NewFallback(s.backend, s.base)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// RegisterRoutes registers WebSocket routes on a Fiber app. Clients may
// connect on "/" or "/ws"; monitors on "/ws/monitor".
func (s *Server) RegisterRoutes(app *fiber.App) {
	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	client := websocket.New(s.handleClient)

	if s.monitor != nil {
		app.Get("/ws/monitor", gofiberws.New(s.monitor.Serve))
	}
	app.Get("/ws", client)
	app.Get("/", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return client(c)
		}
		return c.JSON(fiber.Map{
			"service":   "novo-relay",
			"version":   s.version,
			"websocket": "/ws",
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"version":  s.version,
			"sessions": s.SessionCount(),
		})
	})

	if s.metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}
}

// RegisterAPIRoutes registers REST routes for session management, browser
// access tokens and stateless image analysis.
func (s *Server) RegisterAPIRoutes(api fiber.Router) {
	api.Get("/hume/access-token", s.handleAccessToken)
	api.Post("/vision/analyze", s.handleAnalyze)

	sessions := api.Group("/sessions")

	sessions.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"sessions": s.SessionInfos(),
			"count":    s.SessionCount(),
		})
	})

	sessions.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.GetStats())
	})

	sessions.Get("/:id", func(c *fiber.Ctx) error {
		info, err := s.SessionInfo(c.Params("id"))
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(info)
	})

	sessions.Delete("/:id", func(c *fiber.Ctx) error {
		if err := s.StopSession(c.Params("id")); err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"status": "stopping"})
	})
}

func (s *Server) handleAccessToken(c *fiber.Ctx) error {
	if s.tokens == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "access tokens are not configured",
		})
	}

	token, err := s.tokens.AccessToken(c.UserContext())
	if err != nil {
		s.logger.Warn("access token failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"error":   "Failed to generate access token",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"accessToken": token,
			"configId":    s.tokens.ConfigID(),
		},
	})
}

// AnalyzeRequest is the body of POST /api/vision/analyze.
type AnalyzeRequest struct {
	Image     string `json:"image"`
	ImageData string `json:"imageData"`
	Type      string `json:"type"` // camera_frame, picture or empty
	Prompt    string `json:"prompt"`
}

// Analyze types.
const (
	AnalyzeCameraFrame = "camera_frame"
	AnalyzePicture     = "picture"
)

// handleAnalyze captions one image without a session. Camera frames and
// pictures also get the context string a session would inject.
func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	var req AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Invalid request body"})
	}

	data := req.Image
	if data == "" {
		data = req.ImageData
	}
	if data == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Image data required"})
	}
	img, err := (&protocol.ClientMessage{Type: protocol.TypePicture, Data: data}).Payload()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "Image data is not valid base64"})
	}

	prompt := req.Prompt
	switch req.Type {
	case AnalyzeCameraFrame:
		prompt = vision.DefaultPrompt
	case AnalyzePicture:
		prompt = vision.PicturePrompt
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), session.DefaultConfig().CaptionTimeout)
	defer cancel()
	start := time.Now()
	caption, fresh := s.captioner.CaptionPrompt(ctx, img, prompt)
	s.metrics.RecordCaption("analyze", fresh, time.Since(start))

	result := fiber.Map{
		"analysis": caption,
		"fresh":    fresh,
	}
	switch req.Type {
	case AnalyzeCameraFrame:
		result["context"] = session.CameraInjection(caption, s.assistant).Text()
	case AnalyzePicture:
		result["context"] = session.PictureInjection(caption, s.assistant).Text()
	}
	return c.JSON(fiber.Map{"success": true, "data": result})
}

// handleClient runs one relay session for the lifetime of the connection.
func (s *Server) handleClient(c *websocket.Conn) {
	id := uuid.NewString()
	userID := c.Query("userId")

	opts := append([]session.Option{
		session.WithLogger(s.base),
		session.WithMetrics(s.metrics),
	}, s.sessionOpts...)
	coord := session.New(id, c, s.dialer, opts...)

	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	s.sessions[id] = &connection{coord: coord, userID: userID, connected: time.Now()}
	count := len(s.sessions)
	s.mu.Unlock()
	s.sessionsTotal.Add(1)

	s.logger.Info("client connected", "session_id", id, "user_id", userID, "sessions", count)
	s.publish(hub.Event{Type: hub.EventSessionStarted, SessionID: id, UserID: userID, Sessions: count})

	err := coord.Run(s.ctx)
	if err != nil {
		s.handshakeFailures.Add(1)
	}
	info := coord.Info()

	s.mu.Lock()
	delete(s.sessions, id)
	count = len(s.sessions)
	s.mu.Unlock()

	ended := hub.Event{Type: hub.EventSessionEnded, SessionID: id, UserID: userID, ChatID: info.ChatID, Sessions: count}
	if err != nil {
		ended.Error = err.Error()
	}
	s.publish(ended)
	s.logger.Info("client disconnected", "session_id", id, "sessions", count)
}

func (s *Server) publish(ev hub.Event) {
	if s.monitor != nil {
		s.monitor.Publish(ev)
	}
}

// StopSession asks a session to tear down.
func (s *Server) StopSession(id string) error {
	s.mu.RLock()
	conn, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return ErrSessionNotFound
	}
	conn.coord.Stop()
	return nil
}

// Shutdown stops every session and waits for them to finish or for ctx
// to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SessionInfo describes a live session.
type SessionInfo struct {
	session.Info
	UserID    string    `json:"user_id,omitempty"`
	Connected time.Time `json:"connected"`
}

// SessionInfo returns one session by id.
func (s *Server) SessionInfo(id string) (SessionInfo, error) {
	s.mu.RLock()
	conn, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return SessionInfo{}, ErrSessionNotFound
	}
	return conn.info(), nil
}

// SessionInfos returns all live sessions, oldest first.
func (s *Server) SessionInfos() []SessionInfo {
	s.mu.RLock()
	conns := make([]*connection, 0, len(s.sessions))
	for _, c := range s.sessions {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(conns))
	for _, c := range conns {
		infos = append(infos, c.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Connected.Before(infos[j].Connected) })
	return infos
}

func (c *connection) info() SessionInfo {
	return SessionInfo{Info: c.coord.Info(), UserID: c.userID, Connected: c.connected}
}

// Stats contains server statistics
type Stats struct {
	Sessions          int    `json:"sessions"`
	SessionsTotal     uint64 `json:"sessions_total"`
	HandshakeFailures uint64 `json:"handshake_failures"`
	Monitors          int    `json:"monitors"`
}

// GetStats returns server statistics
func (s *Server) GetStats() Stats {
	stats := Stats{
		Sessions:          s.SessionCount(),
		SessionsTotal:     s.sessionsTotal.Load(),
		HandshakeFailures: s.handshakeFailures.Load(),
	}
	if s.monitor != nil {
		stats.Monitors = s.monitor.ClientCount()
	}
	return stats
}
