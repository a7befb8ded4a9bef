package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	Game      GameConfig
	Redis     RedisConfig
	Responder ResponderConfig
	Ledger    LedgerConfig
	Slack     SlackConfig
}

// ServerConfig holds HTTP and WebSocket settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	ChatRate     float64 // chat commands per second per connection
	ChatBurst    int
}

// GameConfig holds the parameters of every session.
type GameConfig struct {
	Seats           int
	Responders      int
	SessionLength   time.Duration
	SettlementDelay time.Duration
	JitterMin       time.Duration
	JitterMax       time.Duration
	ReplyDelayMin   time.Duration
	ReplyDelayMax   time.Duration
	Topic           string
	Names           []string
}

// RedisConfig holds Redis connection settings. An empty Addr selects the
// in-process pub/sub.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ResponderConfig selects and tunes the responder backend. An empty
// GenAIAPIKey selects the scripted responder.
type ResponderConfig struct {
	GenAIAPIKey    string //nolint:gosec // G117: model API key config
	GenAIModel     string
	Timeout        time.Duration
	ScriptedChance float64
}

// LedgerConfig holds the settlement relay settings. An empty URL selects the
// log-only ledger.
type LedgerConfig struct {
	URL     string
	Secret  string //nolint:gosec // G117: relay signing secret config
	Timeout time.Duration
}

// SlackConfig holds settlement notification settings.
type SlackConfig struct {
	BotToken string
	Channel  string
}

// Load reads configuration from environment variables.
// Defaults reproduce the two-human, four-responder game with no external
// services.
func Load() (*Config, error) {
	readTimeout, err := getEnvDuration("ARENA_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("ARENA_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	chatRate, err := getEnvFloat("ARENA_WS_RATE", 2)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	chatBurst, err := getEnvInt("ARENA_WS_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	seats, err := getEnvInt("ARENA_SEATS", 2)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	responders, err := getEnvInt("ARENA_RESPONDERS", 4)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sessionLength, err := getEnvDuration("ARENA_SESSION_LENGTH", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	settlementDelay, err := getEnvDuration("ARENA_SETTLEMENT_DELAY", 3*time.Minute + 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	jitterMin, err := getEnvDuration("ARENA_JITTER_MIN", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	jitterMax, err := getEnvDuration("ARENA_JITTER_MAX", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	replyDelayMin, err := getEnvDuration("ARENA_REPLY_DELAY_MIN", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	replyDelayMax, err := getEnvDuration("ARENA_REPLY_DELAY_MAX", 12*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	responderTimeout, err := getEnvDuration("ARENA_RESPONDER_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ledgerTimeout, err := getEnvDuration("ARENA_LEDGER_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("ARENA_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	scriptedChance, err := getEnvFloat("ARENA_SCRIPTED_CHANCE", 0.35)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:         getEnv("ARENA_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("ARENA_CORS_ORIGINS", []string{"http://localhost:3000"}),
			ChatRate:     chatRate,
			ChatBurst:    chatBurst,
		},
		Game: GameConfig{
			Seats:           seats,
			Responders:      responders,
			SessionLength:   sessionLength,
			SettlementDelay: settlementDelay,
			JitterMin:       jitterMin,
			JitterMax:       jitterMax,
			ReplyDelayMin:   replyDelayMin,
			ReplyDelayMax:   replyDelayMax,
			Topic:           getEnv("ARENA_TOPIC", "What do you think about Turing arena?"),
			Names:           getEnvList("ARENA_NAMES", []string{"Bletchley", "Enigma", "Ultra", "Christopher", "Halting", "Athena"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("ARENA_REDIS_ADDR", ""),
			Password: getEnv("ARENA_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Responder: ResponderConfig{
			GenAIAPIKey:    getEnv("ARENA_GENAI_API_KEY", ""),
			GenAIModel:     getEnv("ARENA_GENAI_MODEL", "gemini-2.0-flash"),
			Timeout:        responderTimeout,
			ScriptedChance: scriptedChance,
		},
		Ledger: LedgerConfig{
			URL:     getEnv("ARENA_LEDGER_URL", ""),
			Secret:  getEnv("ARENA_LEDGER_SECRET", ""),
			Timeout: ledgerTimeout,
		},
		Slack: SlackConfig{
			BotToken: getEnv("ARENA_SLACK_BOT_TOKEN", ""),
			Channel:  getEnv("ARENA_SLACK_CHANNEL", ""),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("ARENA_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("ARENA_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.ChatRate <= 0 {
		return fmt.Errorf("ARENA_WS_RATE must be positive, got %g", c.Server.ChatRate)
	}
	if c.Server.ChatBurst < 1 {
		return fmt.Errorf("ARENA_WS_BURST must be >= 1, got %d", c.Server.ChatBurst)
	}

	// Game bounds.
	if c.Game.Seats < 1 {
		return fmt.Errorf("ARENA_SEATS must be >= 1, got %d", c.Game.Seats)
	}
	if c.Game.Responders < 0 {
		return fmt.Errorf("ARENA_RESPONDERS must be >= 0, got %d", c.Game.Responders)
	}
	if c.Game.SessionLength <= 0 {
		return fmt.Errorf("ARENA_SESSION_LENGTH must be positive, got %s", c.Game.SessionLength)
	}
	if c.Game.SettlementDelay < c.Game.SessionLength {
		return fmt.Errorf("ARENA_SETTLEMENT_DELAY (%s) must not be shorter than ARENA_SESSION_LENGTH (%s)",
			c.Game.SettlementDelay, c.Game.SessionLength)
	}
	if c.Game.JitterMin < 0 || c.Game.JitterMax < c.Game.JitterMin {
		return fmt.Errorf("ARENA_JITTER_MIN/MAX must satisfy 0 <= min <= max, got %s/%s", c.Game.JitterMin, c.Game.JitterMax)
	}
	if c.Game.ReplyDelayMin < 0 || c.Game.ReplyDelayMax < c.Game.ReplyDelayMin {
		return fmt.Errorf("ARENA_REPLY_DELAY_MIN/MAX must satisfy 0 <= min <= max, got %s/%s", c.Game.ReplyDelayMin, c.Game.ReplyDelayMax)
	}
	if need := c.Game.Seats + c.Game.Responders; len(c.Game.Names) < need {
		return fmt.Errorf("ARENA_NAMES must list at least %d names, got %d", need, len(c.Game.Names))
	}

	if c.Responder.Timeout <= 0 {
		return fmt.Errorf("ARENA_RESPONDER_TIMEOUT must be positive, got %s", c.Responder.Timeout)
	}
	if c.Responder.ScriptedChance < 0 || c.Responder.ScriptedChance > 1 {
		return fmt.Errorf("ARENA_SCRIPTED_CHANCE must be within [0, 1], got %g", c.Responder.ScriptedChance)
	}

	// The relay verifies a signed token, so the secret is required with a URL.
	if c.Ledger.URL != "" {
		if len(c.Ledger.Secret) < 32 {
			return errors.New("ARENA_LEDGER_SECRET must be at least 32 characters when ARENA_LEDGER_URL is set")
		}
		if c.Ledger.Timeout <= 0 {
			return fmt.Errorf("ARENA_LEDGER_TIMEOUT must be positive, got %s", c.Ledger.Timeout)
		}
	} else {
		log.Warn().Msg("ARENA_LEDGER_URL is not set; settlements will only be logged")
	}

	if (c.Slack.BotToken == "") != (c.Slack.Channel == "") {
		return errors.New("ARENA_SLACK_BOT_TOKEN and ARENA_SLACK_CHANNEL must be set together")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
