package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/olegiv/go-logger"

	"github.com/olegiv/nginx-log-chat-go/internal/accesslog"
	"github.com/olegiv/nginx-log-chat-go/internal/ai"
	"github.com/olegiv/nginx-log-chat-go/internal/chat"
	"github.com/olegiv/nginx-log-chat-go/internal/config"
	"github.com/olegiv/nginx-log-chat-go/internal/console"
	internalerrors "github.com/olegiv/nginx-log-chat-go/internal/errors"
	"github.com/olegiv/nginx-log-chat-go/internal/journal"
	"github.com/olegiv/nginx-log-chat-go/internal/logging"
	"github.com/olegiv/nginx-log-chat-go/internal/notification"
	"github.com/olegiv/nginx-log-chat-go/internal/spelling"
	"github.com/olegiv/nginx-log-chat-go/internal/stats"
)

const (
	exitSuccess           = 0
	exitFailure           = 1
	exitSourceUnavailable = 2
	exitEmptyStore        = 3
)

// connectionCheckTimeout bounds the startup connection check of HTTP backends.
const connectionCheckTimeout = 5 * time.Second

// Version information - injected at build time via ldflags
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	program := filepath.Base(os.Args[0])

	cli, err := config.ParseCLI(program, args, stderr)
	if err != nil {
		return exitFailure
	}
	if cli.ShowHelp {
		return exitSuccess
	}
	if cli.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "nginx-chat %s\n", version)
		if gitCommit != "unknown" {
			_, _ = fmt.Fprintf(stdout, "  commit: %s\n", gitCommit)
		}
		if buildTime != "unknown" {
			_, _ = fmt.Fprintf(stdout, "  built:  %s\n", buildTime)
		}
		return exitSuccess
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWithCLI(cli)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	// Console logging stays off by default so log lines do not interleave
	// with the prompt.
	baseLog := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		LogDir:     cfg.LogDir,
		Filename:   "nginx-chat.log",
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    cfg.LogConsole,
	})
	log := logging.NewSecure(baseLog)
	defer func() {
		if err := log.Close(); err != nil {
			_, _ = fmt.Fprintf(stderr, "Failed to close logger: %v\n", err)
		}
	}()

	log.Info().
		Str("version", version).
		Str("path", cfg.AccessLogPath).
		Str("provider", cfg.LLMProvider).
		Str("model", cfg.GetLLMModel()).
		Msg("Starting NGINX Log Chat")

	if err := runChat(ctx, cfg, log, stdin, stdout); err != nil {
		switch {
		case errors.Is(err, accesslog.ErrSourceUnavailable):
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			log.Error().Err(err).Msg("Access log unavailable")
			return exitSourceUnavailable
		case errors.Is(err, accesslog.ErrEmptyStore):
			_, _ = fmt.Fprintf(stderr, "No valid log entries found in %s\n", cfg.AccessLogPath)
			log.Error().Err(err).Msg("Nothing to analyse")
			return exitEmptyStore
		default:
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", internalerrors.SanitizeError(err))
			log.Error().Err(err).Msg("Session failed")
			return exitFailure
		}
	}

	return exitSuccess
}

func runChat(ctx context.Context, cfg *config.Config, log *logging.SecureLogger, stdin io.Reader, stdout io.Writer) error {
	// 1. Load the snapshot
	store, err := accesslog.LoadFile(cfg.AccessLogPath, cfg.LogLimit, cfg.MaxLogBytes())
	if err != nil {
		return err
	}
	log.Debug().
		Int("scanned", store.Scanned()).
		Int("parsed", store.Len()).
		Int("dropped", store.Dropped()).
		Msg("Access log loaded")
	if store.Len() == 0 {
		return fmt.Errorf("%w: %s", accesslog.ErrEmptyStore, cfg.AccessLogPath)
	}

	// 2. Optional anomaly alert
	if cfg.HasTelegramAlerts() {
		sendStartupAlert(cfg, store, log)
	}

	// 3. Reasoning backend
	provider, err := newProvider(cfg, log)
	if err != nil {
		return err
	}
	backend := ai.NewBackend(provider, time.Duration(cfg.AITimeoutSeconds)*time.Second)
	checkConnection(ctx, provider, log)

	// 4. Session transcript
	transcript, err := journal.New(cfg.AccessLogPath, store.Len(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}
	defer func() {
		if err := transcript.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close journal")
		}
	}()

	var corrector *spelling.Corrector
	if cfg.EnableSpellcheck {
		corrector = spelling.New()
	}

	out := console.New(stdout, console.Options{Markdown: cfg.RenderMarkdown})
	session, err := chat.New(chat.Config{
		Store:     store,
		Backend:   backend,
		Console:   out,
		Provider:  provider.GetProviderName(),
		Corrector: corrector,
		Journal:   transcript,
		Log:       log,
	})
	if err != nil {
		return err
	}

	out.Banner(cfg.AccessLogPath, store.Len())
	log.Info().Str("session", transcript.SessionID()).Int("records", store.Len()).Msg("Session started")

	return session.Run(ctx, stdin)
}

func newProvider(cfg *config.Config, log *logging.SecureLogger) (ai.Provider, error) {
	provider, err := ai.NewProvider(ai.ProviderConfig{
		Type:            ai.ProviderType(cfg.LLMProvider),
		TimeoutSeconds:  cfg.AITimeoutSeconds,
		MaxTokens:       cfg.AIMaxTokens,
		OllamaBinary:    cfg.OllamaBinary,
		OllamaModel:     cfg.OllamaModel,
		OllamaBaseURL:   cfg.OllamaBaseURL,
		LMStudioBaseURL: cfg.LMStudioBaseURL,
		LMStudioModel:   cfg.LMStudioModel,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		ClaudeModel:     cfg.ClaudeModel,
		ProxyURL:        cfg.GetProxyURL(true),
	})
	if err != nil {
		return nil, err
	}

	event := log.Info().Str("provider", provider.GetProviderName())
	if model, ok := provider.GetModelInfo()["model"].(string); ok {
		event = event.Str("model", model)
	}
	if cfg.AnthropicAPIKey != "" && cfg.LLMProvider == string(ai.ProviderAnthropic) {
		event = event.Str("api_key", internalerrors.MaskCredential(cfg.AnthropicAPIKey))
	}
	event.Msg("AI provider initialized")

	return provider, nil
}

// checkConnection tests HTTP backends once. A failure only warns: the
// backend may come up before the first question.
func checkConnection(ctx context.Context, provider ai.Provider, log *logging.SecureLogger) {
	checker, ok := provider.(ai.ConnectionChecker)
	if !ok {
		return
	}
	checkCtx, cancel := context.WithTimeout(ctx, connectionCheckTimeout)
	defer cancel()

	if err := checker.CheckConnection(checkCtx); err != nil {
		log.Warn().Err(err).Str("provider", provider.GetProviderName()).Msg("AI backend is not reachable yet")
	}
}

func sendStartupAlert(cfg *config.Config, store *accesslog.Store, log *logging.SecureLogger) {
	anomalies := stats.Detect(store)
	if anomalies.Empty() {
		log.Debug().Msg("No anomalies, Telegram alert skipped")
		return
	}

	client, err := notification.NewTelegramClient(notification.TelegramConfig{
		BotToken:      cfg.TelegramBotToken,
		AlertsChannel: cfg.TelegramAlertsChannel,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Telegram client")
		return
	}
	defer func() { _ = client.Close() }()

	sent, err := client.SendAnomalyAlert(notification.Alert{
		Source:    cfg.AccessLogPath,
		Requests:  store.Len(),
		Anomalies: anomalies,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to send Telegram anomaly alert")
		return
	}
	log.Info().Bool("sent", sent).Int("server_errors", anomalies.ServerErrors.Total()).Msg("Telegram anomaly alert processed")
}
