package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hustleforge/hustleforge/internal/chunk"
	"github.com/hustleforge/hustleforge/internal/flow"
	"github.com/hustleforge/hustleforge/internal/genai"
	"github.com/hustleforge/hustleforge/internal/messaging"
	"github.com/hustleforge/hustleforge/internal/store"
	"github.com/hustleforge/hustleforge/internal/util"
)

// Default configuration constants
const (
	// BackendTelegram selects the Telegram long-polling transport.
	BackendTelegram = "telegram"
	// BackendTwilio selects the Twilio webhook transport.
	BackendTwilio = "twilio"
	// DefaultWebhookAddr is the listen address for the Twilio webhook server.
	DefaultWebhookAddr = ":8080"
	// DefaultShutdownTimeout bounds webhook server shutdown.
	DefaultShutdownTimeout = 5 * time.Second
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	if err := run(config, flags); err != nil {
		slog.Error("HustleForge failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("HustleForge exited successfully")
}

// Config holds environment configuration
type Config struct {
	Backend       string
	BotToken      string
	Provider      string
	GeminiKey     string
	OpenAIKey     string
	Model         string
	WebhookAddr   string
	PollTimeout   time.Duration
	GenTimeout    time.Duration
	MaxMessageLen int
	UpsellList    []string
}

// Flags holds command line flag values
type Flags struct {
	backend     *string
	botToken    *string
	provider    *string
	apiKey      *string
	model       *string
	webhookAddr *string
}

// initializeLogger sets up structured logging at the level named by
// $LOG_LEVEL (debug, info, warn, error; default info). $LOG_JSON switches
// the output format to JSON for log collectors.
func initializeLogger() {
	slog.SetDefault(slog.New(newLogHandler(os.Stdout)))
}

func newLogHandler(w io.Writer) slog.Handler {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if util.ParseBoolEnv("LOG_JSON", false) {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		Backend:       os.Getenv("MESSAGING_BACKEND"),
		BotToken:      os.Getenv("TELEGRAM_BOT_TOKEN"),
		Provider:      os.Getenv("GENAI_PROVIDER"),
		GeminiKey:     os.Getenv("GEMINI_API_KEY"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		Model:         os.Getenv("GENAI_MODEL"),
		WebhookAddr:   os.Getenv("WEBHOOK_ADDR"),
		PollTimeout:   util.ParseDurationEnv("POLL_TIMEOUT", messaging.DefaultPollTimeout),
		GenTimeout:    util.ParseDurationEnv("GENAI_TIMEOUT", flow.DefaultGenTimeout),
		MaxMessageLen: util.ParseIntEnv("MAX_MESSAGE_LEN", chunk.DefaultMaxLen),
		UpsellList:    util.ParseListEnv("UPSELL_TRIGGERS", flow.DefaultUpsellTriggers),
	}

	if config.Backend == "" {
		config.Backend = BackendTelegram
	}
	if config.WebhookAddr == "" {
		config.WebhookAddr = DefaultWebhookAddr
	}

	slog.Debug("environment variables loaded",
		"MESSAGING_BACKEND", config.Backend,
		"TELEGRAM_BOT_TOKEN_SET", config.BotToken != "",
		"GENAI_PROVIDER", config.Provider,
		"GEMINI_API_KEY_SET", config.GeminiKey != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"WEBHOOK_ADDR", config.WebhookAddr,
		"POLL_TIMEOUT", config.PollTimeout,
		"GENAI_TIMEOUT", config.GenTimeout,
		"MAX_MESSAGE_LEN", config.MaxMessageLen,
		"UPSELL_TRIGGERS", strings.Join(config.UpsellList, ","))

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		backend:     flag.String("backend", config.Backend, "messaging backend: telegram or twilio (overrides $MESSAGING_BACKEND)"),
		botToken:    flag.String("bot-token", config.BotToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		provider:    flag.String("provider", config.Provider, "generative provider: gemini or openai (overrides $GENAI_PROVIDER)"),
		apiKey:      flag.String("api-key", "", "generative API key (overrides $GEMINI_API_KEY or $OPENAI_API_KEY)"),
		model:       flag.String("model", config.Model, "generative model ID (overrides $GENAI_MODEL)"),
		webhookAddr: flag.String("webhook-addr", config.WebhookAddr, "Twilio webhook listen address (overrides $WEBHOOK_ADDR)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"backend", *flags.backend,
		"botTokenSet", *flags.botToken != "",
		"provider", *flags.provider,
		"apiKeySet", *flags.apiKey != "",
		"model", *flags.model,
		"webhookAddr", *flags.webhookAddr)

	return flags
}

// run wires the transport, the generation client and the conversation
// engine, then blocks until shutdown.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := genai.NewClient(ctx, *flags.provider, resolveAPIKey(config, *flags.provider, *flags.apiKey), *flags.model)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}
	if closer, ok := gen.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				slog.Warn("failed to close generation client", "error", err)
			}
		}()
	}

	msg, webhook, err := buildMessagingService(config, flags)
	if err != nil {
		return fmt.Errorf("failed to create messaging service: %w", err)
	}

	sessions := store.NewInMemorySessionStore()
	engine := flow.New(sessions, gen, msg,
		flow.WithGenTimeout(config.GenTimeout),
		flow.WithMaxMessageLen(config.MaxMessageLen),
		flow.WithUpsellTriggers(config.UpsellList),
	)

	if err := msg.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}

	var server *http.Server
	if webhook != nil {
		mux := http.NewServeMux()
		mux.Handle("/webhook/twilio", webhook)
		server = &http.Server{Addr: *flags.webhookAddr, Handler: mux}
		go func() {
			slog.Info("webhook server listening", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("webhook server failed", "error", err)
				stop()
			}
		}()
	}

	slog.Info("HustleForge running", "backend", *flags.backend)
	engine.Run(ctx)

	if server != nil {
		sctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			slog.Warn("webhook server shutdown failed", "error", err)
		}
	}
	if err := msg.Stop(); err != nil {
		slog.Warn("messaging service stop failed", "error", err)
	}
	return nil
}

// resolveAPIKey picks the generative API key for the selected provider:
// the -api-key flag wins, then the provider's key from the environment.
func resolveAPIKey(config Config, provider, flagKey string) string {
	if flagKey != "" {
		return flagKey
	}
	if strings.ToLower(strings.TrimSpace(provider)) == genai.ProviderOpenAI {
		return config.OpenAIKey
	}
	return config.GeminiKey
}

// buildMessagingService constructs the configured transport. The Twilio
// backend also returns the webhook handler that feeds it inbound messages.
func buildMessagingService(config Config, flags Flags) (messaging.Service, http.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(*flags.backend)) {
	case "", BackendTelegram:
		if *flags.botToken == "" {
			return nil, nil, fmt.Errorf("bot token must be provided")
		}
		svc, err := messaging.NewTelegramService(*flags.botToken, config.PollTimeout)
		if err != nil {
			return nil, nil, err
		}
		return svc, nil, nil
	case BackendTwilio:
		svc, err := messaging.NewTwilioService()
		if err != nil {
			return nil, nil, err
		}
		return svc, messaging.InboundWebhookHandler(svc), nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging backend %q", *flags.backend)
	}
}
