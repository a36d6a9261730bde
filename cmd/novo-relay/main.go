// novo-relay: WebSocket relay between the browser client and Hume EVI.
// Each browser connection gets its own conversation; webcam and photo
// messages are captioned and injected as context.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/novo-relay/internal/config"
	"github.com/teslashibe/novo-relay/internal/log"
	"github.com/teslashibe/novo-relay/pkg/audioio"
	"github.com/teslashibe/novo-relay/pkg/cloud"
	"github.com/teslashibe/novo-relay/pkg/conversation"
	"github.com/teslashibe/novo-relay/pkg/hub"
	"github.com/teslashibe/novo-relay/pkg/metrics"
	"github.com/teslashibe/novo-relay/pkg/session"
	"github.com/teslashibe/novo-relay/pkg/vision"
)

var (
	version = "0.1.0"
	envFile = flag.String("env", ".env", "Env file to load if present")
	debug   = flag.Bool("debug", false, "Enable debug logging and request logs")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "novo-relay: %v\n", err)
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "novo-relay: %v\n", err)
		fmt.Fprintln(os.Stderr, "Set HUME_API_KEY and NEXT_PUBLIC_HUME_CONFIG_ID in the environment or .env")
		os.Exit(1)
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	if err := run(cfg, logger); err != nil {
		logger.Error("relay stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialer, err := conversation.NewHume(
		conversation.WithAPIKey(cfg.HumeAPIKey),
		conversation.WithSecretKey(cfg.HumeSecretKey),
		conversation.WithConfigID(cfg.HumeConfigID),
		conversation.WithBaseURL(cfg.HumeURL),
		conversation.WithSampleRate(cfg.SampleRate),
		conversation.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	captioner := newCaptioner(ctx, cfg, logger)
	sessionOpts := []session.Option{
		session.WithAssistantName(cfg.AssistantName),
		session.WithMaxCaptions(int64(cfg.MaxCaptions)),
		session.WithCaptioner(captioner),
	}
	sessionOpts = append(sessionOpts, audioOptions(cfg, logger)...)

	m := metrics.New("novo")
	monitor := hub.New("monitor", logger)

	server := cloud.NewServer(dialer,
		cloud.WithSessionOptions(sessionOpts...),
		cloud.WithMonitor(monitor),
		cloud.WithCaptioner(captioner),
		cloud.WithAssistantName(cfg.AssistantName),
		cloud.WithTokenIssuer(dialer),
		cloud.WithMetrics(m),
		cloud.WithLogger(logger),
		cloud.WithVersion(version),
	)

	app := fiber.New(fiber.Config{
		AppName:               "novo-relay",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))
	if *debug {
		app.Use(fiberlogger.New())
	}

	server.RegisterRoutes(app)
	server.RegisterAPIRoutes(app.Group("/api"))

	logger.Info("novo-relay starting",
		"version", version,
		"hume_key", config.MaskedKey(cfg.HumeAPIKey),
		"config_id", cfg.HumeConfigID,
		"captions", cfg.CaptionBackend,
		"capture", cfg.CaptureBackend,
		"assistant", cfg.AssistantName,
		"access_tokens", cfg.HumeSecretKey != "",
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		monitor.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("listening",
			"websocket", fmt.Sprintf("ws://%s/ws", cfg.Addr()),
			"health", fmt.Sprintf("http://%s/health", cfg.Addr()),
		)
		if err := app.Listen(cfg.Addr()); err != nil {
			return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(sctx); err != nil {
			logger.Warn("sessions did not stop in time", "error", err)
		}
		return app.ShutdownWithContext(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("goodbye")
	return nil
}

// newCaptioner returns nil when captions are disabled or misconfigured;
// sessions then fall back to fixed captions.
func newCaptioner(ctx context.Context, cfg *config.Config, logger *slog.Logger) vision.Captioner {
	c, err := vision.New(ctx, cfg.CaptionBackend,
		vision.WithAPIKey(cfg.CaptionKey()),
		vision.WithModel(cfg.CaptionModel),
		vision.WithLogger(logger),
	)
	if err != nil {
		logger.Warn("image captions unavailable", "backend", cfg.CaptionBackend, "error", err)
		return nil
	}
	if c == nil {
		logger.Info("image captions disabled")
	}
	return c
}

func audioOptions(cfg *config.Config, logger *slog.Logger) []session.Option {
	a := cfg.Audio()

	var opts []session.Option
	switch backend := a.ResolveBackend(); backend {
	case audioio.BackendNone:
		logger.Info("microphone capture disabled")
	case audioio.BackendClient:
		opts = append(opts, session.WithClientAudio(a, a.SampleRate))
	default:
		a.Backend = backend
		opts = append(opts, session.WithSource(func() (audioio.Source, error) {
			return audioio.NewSource(a, logger)
		}))
	}

	if a.PlaybackCommand != "" {
		opts = append(opts, session.WithSink(func() (audioio.Sink, error) {
			return audioio.NewSink(a, logger)
		}))
	}
	return opts
}
