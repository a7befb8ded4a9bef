package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"

	"github.com/gosuda/turingarena/internal/api/ws"
	"github.com/gosuda/turingarena/internal/arena"
	"github.com/gosuda/turingarena/internal/config"
	"github.com/gosuda/turingarena/internal/ledger"
	"github.com/gosuda/turingarena/internal/notify"
	"github.com/gosuda/turingarena/internal/responder"
	"github.com/gosuda/turingarena/internal/server"
	"github.com/gosuda/turingarena/internal/store/memory"
	redisstore "github.com/gosuda/turingarena/internal/store/redis"
	"github.com/gosuda/turingarena/internal/turn"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	// Initialize structured logging from environment.
	logLevel := os.Getenv("ARENA_LOG_LEVEL")
	level, parseErr := zerolog.ParseLevel(logLevel)
	if parseErr != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	logFormat := os.Getenv("ARENA_LOG_FORMAT")
	if logFormat == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	ctx := context.Background()

	// Load configuration from environment.
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Event fan-out: Redis when configured, in-process otherwise.
	var pubsub ws.PubSub
	if cfg.Redis.Addr != "" {
		redisPubSub, redisErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if redisErr != nil {
			return redisErr
		}
		defer redisPubSub.Close()
		pubsub = redisPubSub
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis pub/sub")
	} else {
		memPubSub := memory.New()
		defer memPubSub.Close()
		pubsub = memPubSub
		log.Info().Msg("using in-process pub/sub")
	}

	responderKind, responders, err := buildResponders(ctx, cfg)
	if err != nil {
		return err
	}
	factory := responders.Factory(responderKind)
	log.Info().Str("kind", responderKind).Strs("available", responders.Available()).Msg("responders ready")

	settler := buildSettler(cfg)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hub := ws.NewHub(pubsub,
		ws.WithChatRate(cfg.Server.ChatRate, cfg.Server.ChatBurst),
		ws.WithOriginPatterns(originPatterns(cfg.Server.CORSOrigins)),
	)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		hub.Run(ctx)
	}()

	scheduler := turn.NewScheduler()

	registry, err := arena.NewRegistry(gameConfig(cfg.Game), hub, factory, settler, scheduler)
	if err != nil {
		return err
	}

	srv := server.New(ctx, cfg, registry, hub)

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}
	registry.Stop()
	if shutdownErr := scheduler.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}
	<-hubDone

	log.Info().Msg("stopped")
	return nil
}

// buildResponders registers every available responder backend and returns
// the kind to use: genai when an API key is configured, scripted otherwise.
func buildResponders(ctx context.Context, cfg *config.Config) (string, *responder.Registry, error) {
	delays := responder.DelayRange{Min: cfg.Game.ReplyDelayMin, Max: cfg.Game.ReplyDelayMax}

	registry := responder.NewRegistry()
	scripted := responder.NewScripted(responder.ScriptedConfig{
		Chance: cfg.Responder.ScriptedChance,
		Delays: delays,
	})
	registry.Register("scripted", scripted.Factory)

	if cfg.Responder.GenAIAPIKey == "" {
		return "scripted", registry, nil
	}

	gen, err := responder.NewGenAI(ctx, cfg.Responder.GenAIAPIKey, responder.GenAIConfig{
		Model:   cfg.Responder.GenAIModel,
		Timeout: cfg.Responder.Timeout,
		Delays:  delays,
	})
	if err != nil {
		return "", nil, fmt.Errorf("responders: %w", err)
	}
	registry.Register("genai", gen.Factory)
	return "genai", registry, nil
}

// buildSettler picks the ledger backend and attaches Slack reporting when
// configured.
func buildSettler(cfg *config.Config) *ledger.Settler {
	var client ledger.Client = ledger.LogClient{}
	if cfg.Ledger.URL != "" {
		client = ledger.NewHTTPClient(ledger.HTTPConfig{
			URL:        cfg.Ledger.URL,
			Secret:     cfg.Ledger.Secret,
			HTTPClient: &http.Client{Timeout: cfg.Ledger.Timeout},
		})
	}

	opts := []ledger.SettlerOption{ledger.WithTimeout(cfg.Ledger.Timeout)}
	if cfg.Slack.BotToken != "" {
		messenger := notify.NewSlackMessenger(slacklib.New(cfg.Slack.BotToken))
		opts = append(opts, ledger.WithReporter(notify.New(messenger, cfg.Slack.Channel)))
		log.Info().Str("channel", cfg.Slack.Channel).Msg("slack settlement notifications enabled")
	}
	return ledger.NewSettler(client, opts...)
}

func gameConfig(g config.GameConfig) arena.Config {
	return arena.Config{
		Seats:           g.Seats,
		Responders:      g.Responders,
		SessionLength:   g.SessionLength,
		SettlementDelay: g.SettlementDelay,
		Jitter:          responder.DelayRange{Min: g.JitterMin, Max: g.JitterMax},
		Topic:           g.Topic,
		Names:           g.Names,
	}
}

// originPatterns reduces CORS origins to the host patterns the WebSocket
// handshake matches against.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, origin)
	}
	return patterns
}
